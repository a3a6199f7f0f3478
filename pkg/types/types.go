package types

import (
	"fmt"
	"time"
)

// GracefulMethod describes how a service can be restarted without dropping
// traffic.
type GracefulMethod string

const (
	// GracefulRestart stops the unit and starts it again. There is a brief
	// unavailability window.
	GracefulRestart GracefulMethod = "restart"

	// GracefulSignal reloads the process in place via a signal. The process
	// holds its listening socket open across the reload.
	GracefulSignal GracefulMethod = "signal"

	// GracefulRolling restarts replicas one at a time, confirming health
	// between steps.
	GracefulRolling GracefulMethod = "rolling"

	// GracefulNone means the service has no graceful restart path and is
	// skipped by graceful operations.
	GracefulNone GracefulMethod = "none"
)

// ReplicaSettings holds the per-replica portion of a service definition.
type ReplicaSettings struct {
	Bind        string
	Environment map[string]string
	ExtraArgs   string
}

// ServiceDefinition is one named logical service from the desired
// configuration. Replicated services carry one ReplicaSettings entry per
// replica; the replica count is len(Replicas).
type ServiceDefinition struct {
	Name       string
	Enabled    bool
	Replicable bool

	// CommandTemplate is the command line with {bind}, {name}, {index} and
	// {extra_args} placeholders, resolved per replica during expansion.
	CommandTemplate string

	// NameTemplate controls how the {name} placeholder expands for
	// replicated services. It may reference {name} and {process} and
	// defaults to "{name}_{process}".
	NameTemplate string

	Environment map[string]string
	WorkingDir  string
	Umask       string

	Graceful       GracefulMethod
	RestartTimeout time.Duration
	StartTimeout   time.Duration
	StopTimeout    time.Duration

	Replicas []ReplicaSettings
}

// ReplicaCount returns the number of replicas, never less than 1.
func (d ServiceDefinition) ReplicaCount() int {
	if len(d.Replicas) == 0 {
		return 1
	}
	return len(d.Replicas)
}

// ServiceInstance is one replica of a ServiceDefinition, materialized fresh
// on every reconciliation pass. Identity derives from (Source, Service,
// Index) only.
type ServiceInstance struct {
	// Source is the instance name of the configuration source that defines
	// this service.
	Source string

	Service    string
	Index      int
	Replicated bool

	Command     string
	Environment map[string]string
	Bind        string
	WorkingDir  string
	Umask       string

	Graceful       GracefulMethod
	RestartTimeout time.Duration
	StartTimeout   time.Duration
	StopTimeout    time.Duration
}

// UnitName returns the deterministic unit name for this instance. Replicated
// services are addressed as name@index.
func (si ServiceInstance) UnitName() string {
	if si.Replicated {
		return fmt.Sprintf("%s-%s@%d", si.Source, si.Service, si.Index)
	}
	return fmt.Sprintf("%s-%s", si.Source, si.Service)
}

// GroupName returns the unit name shared by all replicas of the instance's
// service, used when an operation should fan out to the whole group.
func (si ServiceInstance) GroupName() string {
	return fmt.Sprintf("%s-%s", si.Source, si.Service)
}

// InstanceDescriptor names one dynamically discovered service instance, for
// example from an external job-routing file.
type InstanceDescriptor struct {
	Name        string
	Environment map[string]string
}

// InstalledUnit is the process manager's view of one unit it owns.
type InstalledUnit struct {
	UnitName    string
	Fingerprint string
	Enabled     bool
	Running     bool
}

// RunState is the coarse run state of a unit as reported by a backend.
type RunState string

const (
	RunStateRunning RunState = "running"
	RunStateStopped RunState = "stopped"
	RunStateFailed  RunState = "failed"
	RunStateUnknown RunState = "unknown"
)

// UnitStatus is the current runtime status of one unit.
type UnitStatus struct {
	UnitName string
	State    RunState
	PID      int
	Detail   string
}

// ReconciliationPlan is the result of diffing desired instances against
// installed units. The three sets are disjoint. It is computed per pass and
// never persisted.
type ReconciliationPlan struct {
	Add    []ServiceInstance
	Remove []string
	Update []ServiceInstance
}

// Empty reports whether the plan contains no changes.
func (p ReconciliationPlan) Empty() bool {
	return len(p.Add) == 0 && len(p.Remove) == 0 && len(p.Update) == 0
}

// Summary returns a one-line human readable description of the plan.
func (p ReconciliationPlan) Summary() string {
	return fmt.Sprintf("%d added, %d removed, %d updated", len(p.Add), len(p.Remove), len(p.Update))
}

// RestartState is the per-instance state during a rolling restart.
type RestartState string

const (
	RestartPending  RestartState = "pending"
	RestartStopping RestartState = "stopping"
	RestartStarting RestartState = "starting"
	RestartProbing  RestartState = "probing-health"
	RestartHealthy  RestartState = "healthy"
	RestartTimedOut RestartState = "timed-out"
)

// RestartStep is one instance's slot in a RestartPlan.
type RestartStep struct {
	Index    int
	UnitName string
	State    RestartState

	// Deadline is the point by which the instance must probe healthy once
	// its restart has been issued. Zero until the step begins.
	Deadline time.Time
}

// RestartPlan is the ordered restart sequence for one replicated service.
type RestartPlan struct {
	Service string
	Steps   []RestartStep
}
