package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/herdctl/herdctl/pkg/types"
)

// File is one loaded configuration source.
type File struct {
	// Path is the absolute path of the source file.
	Path string

	Settings Settings
	App      AppConfig
}

type document struct {
	Herd *Settings  `yaml:"herd"`
	App  *AppConfig `yaml:"app"`
}

// Load reads and normalizes one configuration file. Unset settings receive
// defaults and relative directories resolve against the application root.
func Load(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.NewConfigurationError("%s: %v", abs, err)
	}
	if doc.Herd == nil && doc.App == nil {
		return nil, types.NewConfigurationError("%s does not look like a herdctl configuration file", abs)
	}

	f := &File{Path: abs}
	if doc.Herd != nil {
		f.Settings = *doc.Herd
	}
	if doc.App != nil {
		f.App = *doc.App
	}
	f.Settings.applyDefaults()

	if f.Settings.AppRoot == "" {
		// Fall back to the directory holding the config file's parent,
		// matching the common <root>/config/herd.yml layout.
		f.Settings.AppRoot = filepath.Dir(filepath.Dir(abs))
	}
	f.Settings.LogDir = resolveDir(f.Settings.LogDir, f.Settings.AppRoot, "")
	f.Settings.DataDir = resolveDir(f.Settings.DataDir, f.Settings.AppRoot, "var")
	if f.Settings.RoutingFile != "" && !filepath.IsAbs(f.Settings.RoutingFile) {
		f.Settings.RoutingFile = filepath.Join(f.Settings.AppRoot, f.Settings.RoutingFile)
	}

	return f, nil
}

func resolveDir(dir, root, fallback string) string {
	if dir == "" {
		dir = fallback
	}
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

// SearchPaths returns the candidate configuration file paths in resolution
// order: the explicit argument, the HERD_CONFIG_FILE list, well-known paths
// under the current directory, then privileged system paths. Callers load
// every existing entry; the first one is the display default.
func SearchPaths(explicit string) []string {
	if explicit != "" {
		return splitList(explicit)
	}
	if env := os.Getenv(EnvConfigFile); env != "" {
		return splitList(env)
	}
	return []string{
		filepath.Join("config", "herd.yml"),
		filepath.Join("config", "herd.yml.sample"),
		"/etc/herdctl/herd.yml",
	}
}

// StateDirs returns candidate state directories: the explicit argument, the
// HERD_STATE_DIR list, then the per-user default.
func StateDirs(explicit string) []string {
	if explicit != "" {
		return splitList(explicit)
	}
	if env := os.Getenv(EnvStateDir); env != "" {
		return splitList(env)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return []string{filepath.Join(xdg, "herdctl")}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return []string{filepath.Join(home, ".config", "herdctl")}
}

func splitList(v string) []string {
	parts := strings.Split(v, string(os.PathListSeparator))
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
