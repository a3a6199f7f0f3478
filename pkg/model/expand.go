package model

import (
	"strconv"
	"strings"

	"github.com/herdctl/herdctl/pkg/types"
)

// Expand materializes the service instances of one definition. It is a pure
// function: index order follows declaration order and repeated calls over an
// unchanged definition produce identical instances, so fingerprints are
// stable across passes.
func Expand(source string, def types.ServiceDefinition) ([]types.ServiceInstance, error) {
	count := def.ReplicaCount()
	if count > 1 && !def.Replicable {
		return nil, types.NewConfigurationError(
			"service %s does not support replication but declares %d replicas", def.Name, count)
	}

	replicas := def.Replicas
	if len(replicas) == 0 {
		replicas = []types.ReplicaSettings{{}}
	}

	instances := make([]types.ServiceInstance, 0, count)
	for i, rs := range replicas {
		inst := types.ServiceInstance{
			Source:         source,
			Service:        def.Name,
			Index:          i,
			Replicated:     count > 1,
			Environment:    resolveEnvironment(def.Environment, rs.Environment),
			Bind:           rs.Bind,
			WorkingDir:     def.WorkingDir,
			Umask:          def.Umask,
			Graceful:       def.Graceful,
			RestartTimeout: def.RestartTimeout,
			StartTimeout:   def.StartTimeout,
			StopTimeout:    def.StopTimeout,
		}
		inst.Command = resolveCommand(def, inst, rs)
		instances = append(instances, inst)
	}
	return instances, nil
}

// ExpandAll expands every enabled definition, rejecting duplicate service
// names. Disabled definitions expand to nothing, which slates their
// installed units for removal during reconciliation.
func ExpandAll(source string, defs []types.ServiceDefinition) ([]types.ServiceInstance, error) {
	seen := make(map[string]struct{}, len(defs))
	var instances []types.ServiceInstance
	for _, def := range defs {
		if _, dup := seen[def.Name]; dup {
			return nil, types.NewConfigurationError("duplicate service name: %s", def.Name)
		}
		seen[def.Name] = struct{}{}
		if !def.Enabled {
			continue
		}
		expanded, err := Expand(source, def)
		if err != nil {
			return nil, err
		}
		instances = append(instances, expanded...)
	}
	return instances, nil
}

// resolveCommand substitutes the per-instance placeholders in a command
// template. The instance name placeholder resolves through the definition's
// name template for replicated services.
func resolveCommand(def types.ServiceDefinition, inst types.ServiceInstance, rs types.ReplicaSettings) string {
	name := inst.Service
	if inst.Replicated {
		nameTemplate := def.NameTemplate
		if nameTemplate == "" {
			nameTemplate = "{name}_{process}"
		}
		name = strings.NewReplacer(
			"{name}", inst.Service,
			"{process}", strconv.Itoa(inst.Index),
		).Replace(nameTemplate)
	}
	r := strings.NewReplacer(
		"{bind}", rs.Bind,
		"{name}", name,
		"{index}", strconv.Itoa(inst.Index),
		"{extra_args}", rs.ExtraArgs,
	)
	return strings.Join(strings.Fields(r.Replace(def.CommandTemplate)), " ")
}

func resolveEnvironment(base, replica map[string]string) map[string]string {
	env := make(map[string]string, len(base)+len(replica))
	for k, v := range base {
		env[k] = v
	}
	for k, v := range replica {
		env[k] = v
	}
	return env
}
