package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/herdctl/herdctl/pkg/types"
)

type routingDocument struct {
	Handling struct {
		Processes map[string]*struct {
			Environment map[string]string `yaml:"environment"`
		} `yaml:"processes"`
	} `yaml:"handling"`
}

// LoadRouting parses an external job-routing file and returns the handler
// process names it declares as instance descriptors. A missing file is not
// an error: routing configuration is optional.
func LoadRouting(path string) ([]types.InstanceDescriptor, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading routing file: %w", err)
	}

	var doc routingDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.NewConfigurationError("%s: %v", path, err)
	}

	names := make([]string, 0, len(doc.Handling.Processes))
	for name := range doc.Handling.Processes {
		names = append(names, name)
	}
	sort.Strings(names)

	descriptors := make([]types.InstanceDescriptor, 0, len(names))
	for _, name := range names {
		d := types.InstanceDescriptor{Name: name}
		if opts := doc.Handling.Processes[name]; opts != nil {
			d.Environment = opts.Environment
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}
