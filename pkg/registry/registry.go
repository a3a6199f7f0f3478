package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/herdctl/herdctl/pkg/log"
)

const registryFile = "registry.yaml"

// DefaultInstanceName is assigned to the first registered source when its
// configuration declares no instance name.
const DefaultInstanceName = "_default_"

// ConfigSource is one registered configuration file and the instance name
// its services are installed under.
type ConfigSource struct {
	InstanceName string `yaml:"instance_name"`
	Path         string `yaml:"path"`
}

// DuplicateInstanceError reports an instance name collision between two
// different configuration paths.
type DuplicateInstanceError struct {
	Name         string
	ExistingPath string
}

func (e *DuplicateInstanceError) Error() string {
	return fmt.Sprintf("instance name %q is already registered for %s", e.Name, e.ExistingPath)
}

// Registry persists the set of registered configuration sources in a state
// directory. Registration is pure bookkeeping; it installs nothing.
type Registry struct {
	path   string
	logger zerolog.Logger
}

// Open locates the registry file in the given state directories, preferring
// the first directory that already holds one. New registrations land in the
// first directory.
func Open(stateDirs []string) (*Registry, error) {
	if len(stateDirs) == 0 {
		return nil, fmt.Errorf("no state directories")
	}
	for _, dir := range stateDirs {
		candidate := filepath.Join(dir, registryFile)
		if _, err := os.Stat(candidate); err == nil {
			return &Registry{path: candidate, logger: log.WithComponent("registry")}, nil
		}
	}
	return &Registry{
		path:   filepath.Join(stateDirs[0], registryFile),
		logger: log.WithComponent("registry"),
	}, nil
}

type registryDoc struct {
	Sources []ConfigSource `yaml:"sources"`
}

func (r *Registry) load() (registryDoc, error) {
	var doc registryDoc
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("corrupt registry %s: %w", r.path, err)
	}
	return doc, nil
}

func (r *Registry) save(doc registryDoc) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0o644)
}

// List returns the registered sources sorted by instance name.
func (r *Registry) List() ([]ConfigSource, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(doc.Sources, func(i, j int) bool {
		return doc.Sources[i].InstanceName < doc.Sources[j].InstanceName
	})
	return doc.Sources, nil
}

// Register records a configuration path under an instance name. When name is
// empty, the first source ever registered gets DefaultInstanceName and later
// ones get a generated unique name. Re-registering the same path is a no-op;
// registering a taken name for a different path fails without modifying the
// registry.
func (r *Registry) Register(path, name string) (ConfigSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ConfigSource{}, err
	}

	doc, err := r.load()
	if err != nil {
		return ConfigSource{}, err
	}

	for _, src := range doc.Sources {
		if src.Path == abs {
			r.logger.Warn().Str("path", abs).Str("instance", src.InstanceName).
				Msg("configuration already registered")
			return src, nil
		}
	}

	if name == "" {
		if len(doc.Sources) == 0 {
			name = DefaultInstanceName
		} else {
			name = "src-" + uuid.NewString()[:8]
		}
	}
	for _, src := range doc.Sources {
		if src.InstanceName == name {
			return ConfigSource{}, &DuplicateInstanceError{Name: name, ExistingPath: src.Path}
		}
	}

	source := ConfigSource{InstanceName: name, Path: abs}
	doc.Sources = append(doc.Sources, source)
	if err := r.save(doc); err != nil {
		return ConfigSource{}, err
	}
	r.logger.Info().Str("instance", name).Str("path", abs).Msg("registered configuration")
	return source, nil
}

// Deregister removes a source by configuration path or instance name and
// returns it. Removing an unknown source is an error so callers never
// silently tear down nothing.
func (r *Registry) Deregister(ref string) (ConfigSource, error) {
	doc, err := r.load()
	if err != nil {
		return ConfigSource{}, err
	}

	abs, _ := filepath.Abs(ref)
	for i, src := range doc.Sources {
		if src.InstanceName == ref || src.Path == ref || src.Path == abs {
			doc.Sources = append(doc.Sources[:i], doc.Sources[i+1:]...)
			if err := r.save(doc); err != nil {
				return ConfigSource{}, err
			}
			r.logger.Info().Str("instance", src.InstanceName).Msg("deregistered configuration")
			return src, nil
		}
	}
	return ConfigSource{}, fmt.Errorf("no registered configuration matches %q", ref)
}

// Lookup returns the source registered under an instance name.
func (r *Registry) Lookup(name string) (ConfigSource, bool, error) {
	doc, err := r.load()
	if err != nil {
		return ConfigSource{}, false, err
	}
	for _, src := range doc.Sources {
		if src.InstanceName == name {
			return src, true, nil
		}
	}
	return ConfigSource{}, false, nil
}
