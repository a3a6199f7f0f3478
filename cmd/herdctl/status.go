package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/herdctl/herdctl/pkg/metrics"
	"github.com/herdctl/herdctl/pkg/reconciler"
	"github.com/herdctl/herdctl/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status [SERVICE|UNIT...]",
	Short: "Show the run state of managed units",
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
			statuses, err := src.Adapter.Status(cmd.Context(), unitNamesOf(instances))
			if err != nil {
				return err
			}
			for _, status := range statuses {
				pid := ""
				if status.PID > 0 {
					pid = fmt.Sprintf("pid %d", status.PID)
				}
				fmt.Printf("%-30s %-10s %-10s %s\n", status.UnitName, status.State, pid, status.Detail)
			}
		}
		return nil
	},
}

var followCmd = &cobra.Command{
	Use:   "follow [SERVICE|UNIT...]",
	Short: "Stream logs of managed units",
	RunE: func(cmd *cobra.Command, args []string) error {
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		sources, err := loadSources(true)
		if err != nil {
			return err
		}
		selected, err := selectInstances(sources, args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			go func() {
				_ = http.ListenAndServe(metricsAddr, mux)
			}()
		}

		done := make(chan error, len(selected))
		streams := 0
		for src, instances := range selected {
			lines, err := src.Adapter.FollowLogs(ctx, unitNamesOf(instances))
			if err != nil {
				return err
			}
			streams++
			go func() {
				for line := range lines {
					fmt.Printf("%s | %s\n", line.Unit, line.Line)
				}
				done <- nil
			}()
		}
		for i := 0; i < streams; i++ {
			<-done
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [SERVICE|UNIT...]",
	Short: "Show the expanded service instances and pending changes",
	Long: `Show prints the desired instances expanded from the registered
configurations and the changes a 'herdctl update' would apply, without
touching the process manager's run state.`,
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
			fmt.Printf("Instance %s (%s, %s backend)\n", src.Name, src.File.Path, src.Adapter.Kind())
			for _, inst := range instances {
				fmt.Printf("  %-30s graceful=%-8s bind=%s\n", inst.UnitName(), inst.Graceful, orDash(inst.Bind))
				fmt.Printf("  %-30s %s\n", "", inst.Command)
			}

			installed, err := src.Adapter.ListInstalled()
			if err != nil {
				return err
			}
			plan := reconciler.Plan(src.Instances, installed)
			if plan.Empty() {
				fmt.Println("  In sync with installed units.")
			} else {
				fmt.Printf("  Pending changes: %s\n", plan.Summary())
			}
		}
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var execCmd = &cobra.Command{
	Use:   "exec SERVICE|UNIT",
	Short: "Run a service's resolved command in the foreground",
	Long: `Exec resolves a single service instance exactly as 'herdctl update'
would and runs its command in the foreground with the instance's
environment and working directory. A replicated service must be addressed
by a concrete unit name (e.g. shop-web@1). Useful for debugging a service
outside the process manager.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		sources, err := loadSources(true)
		if err != nil {
			return err
		}
		selected, err := selectInstances(sources, args)
		if err != nil {
			return err
		}

		var instances []types.ServiceInstance
		for _, group := range selected {
			instances = append(instances, group...)
		}
		if len(instances) != 1 {
			return fmt.Errorf("%q matches %d instances; use a concrete unit name", args[0], len(instances))
		}
		inst := instances[0]

		fmt.Fprintf(os.Stderr, "exec %s: %s\n", inst.UnitName(), inst.Command)
		if dryRun {
			for _, kv := range environList(inst.Environment) {
				fmt.Println(kv)
			}
			fmt.Println(inst.Command)
			return nil
		}

		argv := strings.Fields(inst.Command)
		child := exec.CommandContext(cmd.Context(), argv[0], argv[1:]...)
		child.Stdin = os.Stdin
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
		child.Dir = inst.WorkingDir
		child.Env = append(os.Environ(), environList(inst.Environment)...)
		return child.Run()
	},
}

func environList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func init() {
	followCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while following")
	execCmd.Flags().Bool("dry-run", false, "Print the resolved command and environment without running it")
}
