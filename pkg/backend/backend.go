package backend

import (
	"context"
	"time"

	"github.com/herdctl/herdctl/pkg/types"
)

// Kind identifies a process manager backend.
type Kind string

const (
	KindSystemd    Kind = "systemd"
	KindSupervisor Kind = "supervisor"
)

// UnitPrefix marks every unit herdctl owns. Backends never list, modify or
// remove units without it, so third-party units are never touched.
const UnitPrefix = "herd-"

// LogLine is one line from a followed unit log.
type LogLine struct {
	Unit string
	Line string
	Time time.Time
}

// Adapter is the seam between the reconciliation core and a concrete
// process manager. Install and Remove stage changes; Apply commits them and
// must be called exactly once per reconciliation pass, after all staged
// operations, because some backends batch configuration reloads.
//
// Remove and Stop on a missing unit are idempotent no-ops.
type Adapter interface {
	Kind() Kind

	// ListInstalled enumerates the units this tool owns in the backend.
	ListInstalled() ([]types.InstalledUnit, error)

	// Install writes or replaces the unit definition for one instance. It
	// does not start the unit.
	Install(inst types.ServiceInstance) error

	// Remove deletes a unit definition.
	Remove(unitName string) error

	// Apply commits staged install/remove operations to the backend.
	Apply() error

	Start(ctx context.Context, unitName string) (types.UnitStatus, error)
	Stop(ctx context.Context, unitName string) (types.UnitStatus, error)
	Restart(ctx context.Context, unitName string) (types.UnitStatus, error)

	// Signal delivers a reload signal (e.g. SIGHUP) to a unit's main
	// process for in-place graceful reloads.
	Signal(ctx context.Context, unitName string, signal string) error

	Status(ctx context.Context, unitNames []string) ([]types.UnitStatus, error)

	// FollowLogs streams log lines for the named units until ctx is
	// cancelled. The returned channel is closed when the stream ends.
	FollowLogs(ctx context.Context, unitNames []string) (<-chan LogLine, error)
}

// UnavailableError reports a failed interaction with the backend's control
// interface. It is fatal to the current command and never retried.
type UnavailableError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *UnavailableError) Error() string {
	return string(e.Kind) + " backend unavailable during " + e.Op + ": " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
