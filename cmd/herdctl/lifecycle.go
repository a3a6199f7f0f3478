package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herdctl/herdctl/pkg/rolling"
	"github.com/herdctl/herdctl/pkg/types"
)

var startCmd = &cobra.Command{
	Use:   "start [SERVICE|UNIT...]",
	Short: "Start services",
	RunE: func(cmd *cobra.Command, args []string) error {
		return lifecycleRun(cmd.Context(), args, func(ctx context.Context, src *source, unitName string) (types.UnitStatus, error) {
			return src.Adapter.Start(ctx, unitName)
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop [SERVICE|UNIT...]",
	Short: "Stop services",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := lifecycleRun(cmd.Context(), args, func(ctx context.Context, src *source, unitName string) (types.UnitStatus, error) {
			return src.Adapter.Stop(ctx, unitName)
		})
		if err == nil && len(args) == 0 {
			fmt.Println("All services stopped.")
		}
		return err
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart [SERVICE|UNIT...]",
	Short: "Restart services immediately",
	Long: `Restart stops and starts services without health coordination. For a
zero-downtime restart of replicated services use 'herdctl graceful'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return lifecycleRun(cmd.Context(), args, func(ctx context.Context, src *source, unitName string) (types.UnitStatus, error) {
			return src.Adapter.Restart(ctx, unitName)
		})
	},
}

var gracefulCmd = &cobra.Command{
	Use:   "graceful [SERVICE|UNIT...]",
	Short: "Restart services without dropping traffic",
	Long: `Graceful restarts each selected service using the method its
configuration supports: replicated services restart one instance at a time
with health confirmation between steps, unpreloaded web servers reload in
place via SIGHUP, and everything else gets a plain restart. Services with no
graceful path are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := loadSources(true)
		if err != nil {
			return err
		}
		selected, err := selectInstances(sources, args)
		if err != nil {
			return err
		}

		for src, instances := range selected {
			if err := rolling.New(src.Adapter).RestartAll(cmd.Context(), instances); err != nil {
				return err
			}
		}
		return nil
	},
}

// lifecycleRun applies one backend operation to every selected unit,
// printing the resulting state.
func lifecycleRun(ctx context.Context, refs []string, op func(context.Context, *source, string) (types.UnitStatus, error)) error {
	sources, err := loadSources(true)
	if err != nil {
		return err
	}
	selected, err := selectInstances(sources, refs)
	if err != nil {
		return err
	}

	for src, instances := range selected {
		for _, unitName := range unitNamesOf(instances) {
			status, err := op(ctx, src, unitName)
			if err != nil {
				return err
			}
			fmt.Printf("%-30s %s\n", unitName, status.State)
		}
	}
	return nil
}
