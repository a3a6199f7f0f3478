package reconciler

import (
	"sort"

	"github.com/herdctl/herdctl/pkg/types"
)

// Plan diffs desired instances against installed units and returns the
// changes needed to converge. An installed unit whose fingerprint differs
// from its desired instance lands in Update; units with no desired
// counterpart land in Remove. The computation is pure and does not touch the
// backend.
func Plan(desired []types.ServiceInstance, installed []types.InstalledUnit) types.ReconciliationPlan {
	desiredByUnit := make(map[string]types.ServiceInstance, len(desired))
	for _, inst := range desired {
		desiredByUnit[inst.UnitName()] = inst
	}
	installedByUnit := make(map[string]types.InstalledUnit, len(installed))
	for _, unit := range installed {
		installedByUnit[unit.UnitName] = unit
	}

	var plan types.ReconciliationPlan
	for _, inst := range desired {
		existing, ok := installedByUnit[inst.UnitName()]
		if !ok {
			plan.Add = append(plan.Add, inst)
			continue
		}
		if existing.Fingerprint != inst.Fingerprint() {
			plan.Update = append(plan.Update, inst)
		}
	}
	for _, unit := range installed {
		if _, ok := desiredByUnit[unit.UnitName]; !ok {
			plan.Remove = append(plan.Remove, unit.UnitName)
		}
	}

	sortInstances(plan.Add)
	sortInstances(plan.Update)
	sort.Strings(plan.Remove)
	return plan
}

// forcePlan slates every desired instance for a write: already installed
// units become updates, the rest are adds. Removals behave as in Plan.
func forcePlan(desired []types.ServiceInstance, installed []types.InstalledUnit) types.ReconciliationPlan {
	desiredByUnit := make(map[string]struct{}, len(desired))
	for _, inst := range desired {
		desiredByUnit[inst.UnitName()] = struct{}{}
	}
	installedByUnit := make(map[string]struct{}, len(installed))
	for _, unit := range installed {
		installedByUnit[unit.UnitName] = struct{}{}
	}

	var plan types.ReconciliationPlan
	for _, inst := range desired {
		if _, ok := installedByUnit[inst.UnitName()]; ok {
			plan.Update = append(plan.Update, inst)
		} else {
			plan.Add = append(plan.Add, inst)
		}
	}
	for _, unit := range installed {
		if _, ok := desiredByUnit[unit.UnitName]; !ok {
			plan.Remove = append(plan.Remove, unit.UnitName)
		}
	}

	sortInstances(plan.Add)
	sortInstances(plan.Update)
	sort.Strings(plan.Remove)
	return plan
}

func sortInstances(instances []types.ServiceInstance) {
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].UnitName() < instances[j].UnitName()
	})
}
