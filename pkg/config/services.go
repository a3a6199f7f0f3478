package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/herdctl/herdctl/pkg/types"
)

// ServiceDefinitions expands a loaded configuration into the desired set of
// logical services. Dynamic handler instances discovered from the routing
// file are passed in as descriptors so the routing format stays outside this
// package's callers.
//
// Validation here is fail-before-apply: any problem surfaces as a
// ConfigurationError before a backend is touched.
func ServiceDefinitions(f *File, descriptors []types.InstanceDescriptor) ([]types.ServiceDefinition, error) {
	var defs []types.ServiceDefinition
	s := &f.Settings

	if webEnabled(s.Web) {
		def, err := webDefinition(f)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	if boolOr(s.Worker.Enable, true) {
		defs = append(defs, workerDefinition(f))
		if boolOr(s.Worker.EnableScheduler, true) {
			defs = append(defs, schedulerDefinition(f))
		}
	}

	if s.Uploader.Enable {
		def, err := uploaderDefinition(f)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	if s.Proxy.Enable {
		defs = append(defs, proxyDefinition(f))
	}

	handlerDefs, err := handlerDefinitions(f)
	if err != nil {
		return nil, err
	}
	defs = append(defs, handlerDefs...)

	for _, d := range descriptors {
		defs = append(defs, descriptorDefinition(f, d))
	}

	return defs, nil
}

func webEnabled(web WebList) bool {
	for _, w := range web {
		if boolOr(w.Enable, true) {
			return true
		}
	}
	return false
}

func webDefinition(f *File) (types.ServiceDefinition, error) {
	s := &f.Settings
	first := s.Web[0]

	preload := boolOr(first.Preload, true)
	graceful := types.GracefulRestart
	if !preload {
		// Without preload the server can re-exec workers on SIGHUP while
		// holding the listening socket.
		graceful = types.GracefulSignal
	}
	if len(s.Web) > 1 {
		graceful = types.GracefulRolling
	}

	preloadArg := ""
	if preload {
		preloadArg = " --preload"
	}
	command := fmt.Sprintf("%swebd --bind {bind} --workers %d --timeout %d%s {extra_args}",
		binPrefix(s), first.Workers, first.Timeout, preloadArg)

	replicas := make([]types.ReplicaSettings, len(s.Web))
	for i, w := range s.Web {
		if !boolOr(w.Enable, true) {
			return types.ServiceDefinition{}, types.NewConfigurationError(
				"web replica %d is disabled; disable the whole service or remove the entry", i)
		}
		// The command line and graceful method are shared across the
		// replica group, so the settings they derive from must agree.
		if w.Workers != first.Workers || w.Timeout != first.Timeout ||
			boolOr(w.Preload, true) != preload || w.RestartTimeout != first.RestartTimeout {
			return types.ServiceDefinition{}, types.NewConfigurationError(
				"web replica %d diverges from replica 0 (workers, timeout, preload and restart_timeout must match); only bind, environment and extra_args may vary per replica", i)
		}
		replicas[i] = types.ReplicaSettings{
			Bind:        w.Bind,
			Environment: w.Environment,
			ExtraArgs:   w.ExtraArgs,
		}
	}

	return types.ServiceDefinition{
		Name:            "web",
		Enabled:         true,
		Replicable:      true,
		CommandTemplate: command,
		Environment:     baseEnvironment(f),
		WorkingDir:      s.AppRoot,
		Umask:           s.Umask,
		Graceful:        graceful,
		RestartTimeout:  time.Duration(first.RestartTimeout) * time.Second,
		StartTimeout:    DefaultWebStartTimeout,
		StopTimeout:     DefaultWebStopTimeout,
		Replicas:        replicas,
	}, nil
}

func workerDefinition(f *File) types.ServiceDefinition {
	s := &f.Settings
	command := fmt.Sprintf("%staskd worker --concurrency %d --loglevel %s --queues %s {extra_args}",
		binPrefix(s), s.Worker.Concurrency, s.Worker.LogLevel, s.Worker.Queues)
	return types.ServiceDefinition{
		Name:            "worker",
		Enabled:         true,
		CommandTemplate: command,
		Environment:     mergeEnv(baseEnvironment(f), s.Worker.Environment),
		WorkingDir:      s.AppRoot,
		Umask:           s.Umask,
		Graceful:        types.GracefulRestart,
		StartTimeout:    DefaultStartTimeout,
		StopTimeout:     DefaultStopTimeout,
		Replicas:        []types.ReplicaSettings{{ExtraArgs: s.Worker.ExtraArgs}},
	}
}

func schedulerDefinition(f *File) types.ServiceDefinition {
	s := &f.Settings
	command := fmt.Sprintf("%staskd beat --loglevel %s --schedule %s/beat-schedule",
		binPrefix(s), s.Worker.LogLevel, s.DataDir)
	return types.ServiceDefinition{
		Name:            "scheduler",
		Enabled:         true,
		CommandTemplate: command,
		Environment:     mergeEnv(baseEnvironment(f), s.Worker.Environment),
		WorkingDir:      s.AppRoot,
		Umask:           s.Umask,
		Graceful:        types.GracefulRestart,
		StartTimeout:    DefaultStartTimeout,
		StopTimeout:     DefaultStopTimeout,
		Replicas:        []types.ReplicaSettings{{}},
	}
}

func uploaderDefinition(f *File) (types.ServiceDefinition, error) {
	s := &f.Settings
	if f.App.ExternalURL == "" {
		return types.ServiceDefinition{}, types.NewConfigurationError(
			"the uploader requires external_url in the app section of %s", f.Path)
	}
	if s.Uploader.UploadDir == "" {
		return types.ServiceDefinition{}, types.NewConfigurationError(
			"the uploader requires upload_dir in the herd section of %s", f.Path)
	}
	command := fmt.Sprintf("%suploadd -host %s -port %d -upload-dir %s -hooks %s/api/upload/hooks {extra_args}",
		binPrefix(s), s.Uploader.Host, s.Uploader.Port, s.Uploader.UploadDir,
		strings.TrimRight(f.App.ExternalURL, "/"))
	return types.ServiceDefinition{
		Name:            "uploader",
		Enabled:         true,
		CommandTemplate: command,
		Environment:     mergeEnv(baseEnvironment(f), s.Uploader.Environment),
		WorkingDir:      s.AppRoot,
		Umask:           s.Umask,
		Graceful:        types.GracefulNone,
		StartTimeout:    DefaultStartTimeout,
		StopTimeout:     DefaultStopTimeout,
		Replicas: []types.ReplicaSettings{{
			Bind:      fmt.Sprintf("%s:%d", s.Uploader.Host, s.Uploader.Port),
			ExtraArgs: s.Uploader.ExtraArgs,
		}},
	}, nil
}

func proxyDefinition(f *File) types.ServiceDefinition {
	s := &f.Settings
	verbose := ""
	if s.Proxy.Verbose {
		verbose = " --verbose"
	}
	command := fmt.Sprintf("%sproxyd --ip %s --port %d --sessions %s%s",
		binPrefix(s), s.Proxy.IP, s.Proxy.Port, s.Proxy.Sessions, verbose)
	return types.ServiceDefinition{
		Name:            "proxy",
		Enabled:         true,
		CommandTemplate: command,
		Environment:     mergeEnv(baseEnvironment(f), s.Proxy.Environment),
		WorkingDir:      s.AppRoot,
		Umask:           s.Umask,
		Graceful:        types.GracefulRestart,
		StartTimeout:    DefaultStartTimeout,
		StopTimeout:     DefaultStopTimeout,
		Replicas: []types.ReplicaSettings{{
			Bind: fmt.Sprintf("%s:%d", s.Proxy.IP, s.Proxy.Port),
		}},
	}
}

// handlerDefinitions expands the handlers map. An entry with processes > 1
// becomes one replicated definition; a name ending in a digit with a single
// process is taken as an explicit handler name and kept verbatim.
func handlerDefinitions(f *File) ([]types.ServiceDefinition, error) {
	s := &f.Settings
	names := make([]string, 0, len(s.Handlers))
	for name := range s.Handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	var defs []types.ServiceDefinition
	for _, name := range names {
		h := s.Handlers[name]
		if h.Processes < 1 {
			return nil, types.NewConfigurationError("handler %s: processes must be >= 1", name)
		}
		replicas := make([]types.ReplicaSettings, h.Processes)
		for i := range replicas {
			replicas[i] = types.ReplicaSettings{Environment: h.Environment}
		}
		poolArgs := ""
		for _, pool := range h.Pools {
			poolArgs += fmt.Sprintf(" --attach-to-pool=%s", pool)
		}
		defs = append(defs, types.ServiceDefinition{
			Name:            name,
			Enabled:         true,
			Replicable:      true,
			CommandTemplate: fmt.Sprintf("%shandlerd --name {name}%s", binPrefix(s), poolArgs),
			NameTemplate:    h.NameTemplate,
			Environment:     baseEnvironment(f),
			WorkingDir:      s.AppRoot,
			Umask:           s.Umask,
			Graceful:        types.GracefulRestart,
			StartTimeout:    DefaultStartTimeout,
			StopTimeout:     DefaultStopTimeout,
			Replicas:        replicas,
		})
	}
	return defs, nil
}

func descriptorDefinition(f *File, d types.InstanceDescriptor) types.ServiceDefinition {
	s := &f.Settings
	return types.ServiceDefinition{
		Name:            d.Name,
		Enabled:         true,
		CommandTemplate: fmt.Sprintf("%shandlerd --name {name}", binPrefix(s)),
		Environment:     mergeEnv(baseEnvironment(f), d.Environment),
		WorkingDir:      s.AppRoot,
		Umask:           s.Umask,
		Graceful:        types.GracefulRestart,
		StartTimeout:    DefaultStartTimeout,
		StopTimeout:     DefaultStopTimeout,
		Replicas:        []types.ReplicaSettings{{}},
	}
}

func binPrefix(s *Settings) string {
	if s.BinDir == "" {
		return ""
	}
	return strings.TrimRight(s.BinDir, "/") + "/"
}

func baseEnvironment(f *File) map[string]string {
	env := map[string]string{
		"APP_CONFIG_FILE": f.Path,
	}
	if f.Settings.BinDir != "" {
		env["PATH"] = strings.TrimRight(f.Settings.BinDir, "/") + ":/usr/local/bin:/usr/bin:/bin"
	}
	return env
}

func mergeEnv(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
