package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/herdctl/herdctl/pkg/backend"
	"github.com/herdctl/herdctl/pkg/backend/supervisor"
	"github.com/herdctl/herdctl/pkg/backend/systemd"
	"github.com/herdctl/herdctl/pkg/config"
	"github.com/herdctl/herdctl/pkg/model"
	"github.com/herdctl/herdctl/pkg/registry"
	"github.com/herdctl/herdctl/pkg/types"
)

// source is one registered configuration, fully expanded: its loaded file,
// the desired instances derived from it, and the backend its units live in.
type source struct {
	Name      string
	File      *config.File
	Adapter   backend.Adapter
	Instances []types.ServiceInstance
}

func openRegistry() (*registry.Registry, error) {
	return registry.Open(config.StateDirs(flagStateDir))
}

// loadSources loads every registered configuration. With autoRegister set
// and nothing registered yet, the first configuration found on the search
// path is registered on the fly so a fresh checkout works without an
// explicit register step.
func loadSources(autoRegister bool) ([]*source, error) {
	reg, err := openRegistry()
	if err != nil {
		return nil, err
	}

	entries, err := reg.List()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 && autoRegister {
		entry, err := autoRegisterSource(reg)
		if err != nil {
			return nil, err
		}
		entries = []registry.ConfigSource{entry}
	}
	if len(entries) == 0 {
		return nil, types.NewConfigurationError(
			"no configuration registered; run 'herdctl register <config-file>' first")
	}

	sources := make([]*source, 0, len(entries))
	for _, entry := range entries {
		src, err := loadSource(entry)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func autoRegisterSource(reg *registry.Registry) (registry.ConfigSource, error) {
	for _, candidate := range config.SearchPaths(flagConfigFile) {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		f, err := config.Load(candidate)
		if err != nil {
			return registry.ConfigSource{}, err
		}
		return reg.Register(candidate, declaredName(f))
	}
	return registry.ConfigSource{}, types.NewConfigurationError(
		"no configuration registered and none found on the search path")
}

// declaredName maps the configuration's instance name to a registration
// request: the placeholder default means "let the registry pick".
func declaredName(f *config.File) string {
	if f.Settings.InstanceName == config.DefaultInstanceName {
		return ""
	}
	return f.Settings.InstanceName
}

func loadSource(entry registry.ConfigSource) (*source, error) {
	f, err := config.Load(entry.Path)
	if err != nil {
		return nil, err
	}

	descriptors, err := config.LoadRouting(f.Settings.RoutingFile)
	if err != nil {
		return nil, err
	}
	defs, err := config.ServiceDefinitions(f, descriptors)
	if err != nil {
		return nil, err
	}
	instances, err := model.ExpandAll(entry.InstanceName, defs)
	if err != nil {
		return nil, err
	}

	adapter, err := newAdapter(f)
	if err != nil {
		return nil, err
	}

	return &source{
		Name:      entry.InstanceName,
		File:      f,
		Adapter:   adapter,
		Instances: instances,
	}, nil
}

func newAdapter(f *config.File) (backend.Adapter, error) {
	switch f.Settings.ProcessManager {
	case "systemd":
		return systemd.New(systemd.Config{}), nil
	case "supervisor":
		base := filepath.Join(config.StateDirs(flagStateDir)[0], "supervisor")
		return supervisor.New(supervisor.Config{
			ConfDir:    filepath.Join(base, "conf.d"),
			ConfigFile: filepath.Join(base, "supervisord.conf"),
			LogDir:     f.Settings.LogDir,
		}), nil
	default:
		return nil, types.NewConfigurationError(
			"unknown process_manager %q in %s (expected systemd or supervisor)",
			f.Settings.ProcessManager, f.Path)
	}
}

// selectInstances filters the sources' instances by service or unit
// references, keeping the per-source grouping since each source may use a
// different backend. Empty refs select everything. A reference can be a bare
// service name ("web"), a group name ("shop-web") or a concrete unit name
// ("shop-web@1").
func selectInstances(sources []*source, refs []string) (map[*source][]types.ServiceInstance, error) {
	selected := make(map[*source][]types.ServiceInstance, len(sources))
	if len(refs) == 0 {
		for _, src := range sources {
			selected[src] = src.Instances
		}
		return selected, nil
	}

	for _, ref := range refs {
		matched := false
		for _, src := range sources {
			for _, inst := range src.Instances {
				if inst.Service == ref || inst.GroupName() == ref || inst.UnitName() == ref {
					selected[src] = append(selected[src], inst)
					matched = true
				}
			}
		}
		if !matched {
			return nil, fmt.Errorf("no service or unit matches %q", ref)
		}
	}
	return selected, nil
}

// unitNamesOf returns the distinct unit names of the given instances in
// order.
func unitNamesOf(instances []types.ServiceInstance) []string {
	seen := make(map[string]struct{}, len(instances))
	names := make([]string, 0, len(instances))
	for _, inst := range instances {
		name := inst.UnitName()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
