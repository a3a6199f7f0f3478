package reconciler

import (
	"fmt"

	"github.com/herdctl/herdctl/pkg/backend"
	"github.com/herdctl/herdctl/pkg/log"
	"github.com/herdctl/herdctl/pkg/metrics"
	"github.com/herdctl/herdctl/pkg/types"
)

// Options controls a reconciliation pass.
type Options struct {
	// Clean removes every owned unit instead of converging toward the
	// desired set. Used during deregistration and full teardown.
	Clean bool

	// Force rewrites every desired unit regardless of fingerprint, so a
	// damaged or hand-edited unit file is restored even when the hash in
	// its header still matches.
	Force bool
}

// Reconcile converges the backend toward the desired instance set. Removals
// are staged first, then installs and updates, and the pass commits with a
// single Apply call. Any staging error aborts the pass before Apply, leaving
// the running units untouched since the backend only acts on commit.
//
// The returned plan describes what was applied (or, on error, what was
// attempted).
func Reconcile(adapter backend.Adapter, desired []types.ServiceInstance, opts Options) (types.ReconciliationPlan, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)
	metrics.ReconciliationPassesTotal.Inc()

	logger := log.WithComponent("reconciler")

	installed, err := adapter.ListInstalled()
	if err != nil {
		return types.ReconciliationPlan{}, err
	}

	var plan types.ReconciliationPlan
	switch {
	case opts.Clean:
		for _, unit := range installed {
			plan.Remove = append(plan.Remove, unit.UnitName)
		}
	case opts.Force:
		plan = forcePlan(desired, installed)
	default:
		plan = Plan(desired, installed)
	}

	if plan.Empty() {
		logger.Info().Msg("no changes needed")
		return plan, nil
	}
	logger.Info().
		Int("add", len(plan.Add)).
		Int("remove", len(plan.Remove)).
		Int("update", len(plan.Update)).
		Msg("applying plan")

	for _, unitName := range plan.Remove {
		if err := adapter.Remove(unitName); err != nil {
			return plan, fmt.Errorf("removing %s: %w", unitName, err)
		}
		metrics.UnitsChangedTotal.WithLabelValues("remove").Inc()
	}
	for _, inst := range plan.Add {
		if err := adapter.Install(inst); err != nil {
			return plan, fmt.Errorf("installing %s: %w", inst.UnitName(), err)
		}
		metrics.UnitsChangedTotal.WithLabelValues("add").Inc()
	}
	for _, inst := range plan.Update {
		if err := adapter.Install(inst); err != nil {
			return plan, fmt.Errorf("updating %s: %w", inst.UnitName(), err)
		}
		metrics.UnitsChangedTotal.WithLabelValues("update").Inc()
	}

	if err := adapter.Apply(); err != nil {
		return plan, err
	}
	logger.Info().Str("summary", plan.Summary()).Msg("reconciliation complete")
	return plan, nil
}
