package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herdctl/herdctl/pkg/reconciler"
	"github.com/herdctl/herdctl/pkg/rolling"
	"github.com/herdctl/herdctl/pkg/types"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Reconcile installed units with the registered configurations",
	Long: `Update expands every registered configuration into its desired service
instances, diffs them against the units the process manager has installed,
and applies the difference in one commit. Services whose definition changed
are then restarted gracefully; unchanged services are left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		clean, _ := cmd.Flags().GetBool("clean")
		force, _ := cmd.Flags().GetBool("force")

		sources, err := loadSources(!clean)
		if err != nil {
			return err
		}

		for _, src := range sources {
			if err := updateSource(cmd, src, clean, force); err != nil {
				return err
			}
		}
		return nil
	},
}

func updateSource(cmd *cobra.Command, src *source, clean, force bool) error {
	opts := reconciler.Options{Clean: clean, Force: force}
	plan, err := reconciler.Reconcile(src.Adapter, src.Instances, opts)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", src.Name, plan.Summary())

	if clean {
		return nil
	}

	// Freshly added units are started directly; the graceful machinery only
	// applies to units that were already serving.
	for _, inst := range plan.Add {
		if _, err := src.Adapter.Start(cmd.Context(), inst.UnitName()); err != nil {
			return err
		}
	}

	toRestart := restartSet(src, plan)
	if len(toRestart) == 0 {
		return nil
	}
	return rolling.New(src.Adapter).RestartAll(cmd.Context(), toRestart)
}

// restartSet returns the instances to restart after an update: every
// instance of every service that had at least one unit updated. Restarting
// the whole service keeps replicas on a uniform configuration.
func restartSet(src *source, plan types.ReconciliationPlan) []types.ServiceInstance {
	changed := make(map[string]struct{})
	for _, inst := range plan.Update {
		changed[inst.GroupName()] = struct{}{}
	}
	var out []types.ServiceInstance
	for _, inst := range src.Instances {
		if _, ok := changed[inst.GroupName()]; ok {
			out = append(out, inst)
		}
	}
	return out
}

func init() {
	updateCmd.Flags().Bool("clean", false, "Remove every managed unit instead of converging")
	updateCmd.Flags().Bool("force", false, "Rewrite and restart every unit even if unchanged")
}
