package rolling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/herdctl/herdctl/pkg/backend"
	"github.com/herdctl/herdctl/pkg/health"
	"github.com/herdctl/herdctl/pkg/log"
	"github.com/herdctl/herdctl/pkg/metrics"
	"github.com/herdctl/herdctl/pkg/types"
)

const defaultProbeInterval = 2 * time.Second

// PartialRestartFailure reports a rolling restart that was aborted after an
// instance failed to restart or become healthy. Earlier instances already
// run the new configuration; later ones were never touched.
type PartialRestartFailure struct {
	Service      string
	Succeeded    []int
	Failed       int
	NotAttempted []int

	// Cause is the backend error that triggered the abort, nil when the
	// instance restarted but never probed healthy before its deadline.
	Cause error
}

func (e *PartialRestartFailure) Error() string {
	msg := fmt.Sprintf("rolling restart of %s aborted: instance %d did not become healthy (%d restarted, %d untouched)",
		e.Service, e.Failed, len(e.Succeeded), len(e.NotAttempted))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PartialRestartFailure) Unwrap() error {
	return e.Cause
}

// Controller performs graceful restarts against a backend.
type Controller struct {
	adapter       backend.Adapter
	probeInterval time.Duration
	logger        zerolog.Logger

	// checkerFor is swappable in tests.
	checkerFor func(bind string) (health.Checker, error)
}

// New creates a restart controller for the given backend.
func New(adapter backend.Adapter) *Controller {
	return &Controller{
		adapter:       adapter,
		probeInterval: defaultProbeInterval,
		logger:        log.WithComponent("rolling"),
		checkerFor:    health.ForBind,
	}
}

// RestartService gracefully restarts one service using the method its
// instances declare. All instances of a service share the same method.
func (c *Controller) RestartService(ctx context.Context, instances []types.ServiceInstance) error {
	if len(instances) == 0 {
		return nil
	}
	first := instances[0]
	logger := c.logger.With().Str("service", first.GroupName()).Logger()

	switch first.Graceful {
	case types.GracefulNone:
		logger.Info().Msg("service has no graceful restart path, skipping")
		return nil

	case types.GracefulSignal:
		logger.Info().Msg("reloading in place via SIGHUP")
		return c.adapter.Signal(ctx, first.GroupName(), "SIGHUP")

	case types.GracefulRolling:
		return c.rollingRestart(ctx, instances)

	default:
		logger.Info().Msg("restarting")
		_, err := c.adapter.Restart(ctx, first.GroupName())
		return err
	}
}

// RestartAll gracefully restarts every service, one goroutine per service.
// Instances within a service restart strictly in order; services proceed
// independently of one another. The first error is returned, with
// PartialRestartFailure taking precedence so callers can report the exact
// abort point.
func (c *Controller) RestartAll(ctx context.Context, instances []types.ServiceInstance) error {
	groups := GroupByService(instances)

	errs := make(chan error, len(groups))
	for _, group := range groups {
		go func(group []types.ServiceInstance) {
			errs <- c.RestartService(ctx, group)
		}(group)
	}

	var firstErr error
	var partial *PartialRestartFailure
	for range groups {
		if err := <-errs; err != nil {
			if p, ok := err.(*PartialRestartFailure); ok && partial == nil {
				partial = p
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if partial != nil {
		return partial
	}
	return firstErr
}

// GroupByService splits instances into per-service groups ordered by replica
// index, with the groups themselves sorted by service name.
func GroupByService(instances []types.ServiceInstance) [][]types.ServiceInstance {
	byService := make(map[string][]types.ServiceInstance)
	for _, inst := range instances {
		key := inst.GroupName()
		byService[key] = append(byService[key], inst)
	}

	names := make([]string, 0, len(byService))
	for name := range byService {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([][]types.ServiceInstance, 0, len(names))
	for _, name := range names {
		group := byService[name]
		sort.Slice(group, func(i, j int) bool { return group[i].Index < group[j].Index })
		groups = append(groups, group)
	}
	return groups
}

// BuildPlan returns the ordered restart sequence for one service's
// instances.
func BuildPlan(instances []types.ServiceInstance) types.RestartPlan {
	plan := types.RestartPlan{}
	if len(instances) > 0 {
		plan.Service = instances[0].GroupName()
	}
	for _, inst := range instances {
		plan.Steps = append(plan.Steps, types.RestartStep{
			Index:    inst.Index,
			UnitName: inst.UnitName(),
			State:    types.RestartPending,
		})
	}
	return plan
}

// rollingRestart restarts the instances one at a time in index order,
// confirming each is healthy before moving to the next. A probe timeout
// aborts the sequence so at most one instance is ever down.
func (c *Controller) rollingRestart(ctx context.Context, instances []types.ServiceInstance) error {
	plan := BuildPlan(instances)
	logger := c.logger.With().Str("service", plan.Service).Logger()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RollingRestartDuration, plan.Service)

	for i := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := &plan.Steps[i]
		inst := instances[i]
		stepLogger := logger.With().Str("unit", step.UnitName).Logger()

		checker, err := c.checkerFor(inst.Bind)
		if err != nil {
			return fmt.Errorf("no health probe for %s: %w", step.UnitName, err)
		}

		// Confirm the instance is serving before taking it down, so a
		// restart is never issued into an already degraded group.
		if res := checker.Check(ctx); !res.Healthy {
			stepLogger.Warn().Str("message", res.Message).Msg("instance unhealthy before restart")
		}

		step.State = types.RestartStopping
		stepLogger.Info().Msg("restarting instance")
		step.State = types.RestartStarting
		if _, err := c.adapter.Restart(ctx, step.UnitName); err != nil {
			stepLogger.Error().Err(err).Msg("restart failed")
			return c.abort(plan, i, err)
		}

		step.State = types.RestartProbing
		step.Deadline = time.Now().Add(restartTimeout(inst))
		if !c.probeUntilHealthy(ctx, checker, step.Deadline) {
			if err := ctx.Err(); err != nil {
				return err
			}
			step.State = types.RestartTimedOut
			stepLogger.Error().Time("deadline", step.Deadline).Msg("instance did not become healthy in time")
			return c.abort(plan, i, nil)
		}
		step.State = types.RestartHealthy
		stepLogger.Info().Msg("instance healthy")
	}

	logger.Info().Int("instances", len(plan.Steps)).Msg("rolling restart complete")
	return nil
}

func restartTimeout(inst types.ServiceInstance) time.Duration {
	if inst.RestartTimeout > 0 {
		return inst.RestartTimeout
	}
	return 5 * time.Minute
}

// probeUntilHealthy polls the checker until it reports healthy or the
// deadline passes. An in-flight probe is allowed to finish after ctx
// cancellation; cancellation takes effect between probes.
func (c *Controller) probeUntilHealthy(ctx context.Context, checker health.Checker, deadline time.Time) bool {
	for {
		res := checker.Check(ctx)
		if res.Healthy {
			metrics.ProbesTotal.WithLabelValues("healthy").Inc()
			return true
		}
		metrics.ProbesTotal.WithLabelValues("unhealthy").Inc()

		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.probeInterval):
		}
	}
}

func (c *Controller) abort(plan types.RestartPlan, failed int, cause error) error {
	metrics.RestartFailuresTotal.WithLabelValues(plan.Service).Inc()

	failure := &PartialRestartFailure{
		Service: plan.Service,
		Failed:  plan.Steps[failed].Index,
		Cause:   cause,
	}
	for _, step := range plan.Steps[:failed] {
		failure.Succeeded = append(failure.Succeeded, step.Index)
	}
	for _, step := range plan.Steps[failed+1:] {
		failure.NotAttempted = append(failure.NotAttempted, step.Index)
	}
	return failure
}
