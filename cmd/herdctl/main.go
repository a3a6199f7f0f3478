package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/herdctl/herdctl/pkg/log"
	"github.com/herdctl/herdctl/pkg/rolling"
	"github.com/herdctl/herdctl/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Exit codes. Configuration problems and partial rolling restarts get their
// own codes so wrapping scripts can distinguish "fix your config" from "go
// look at the service".
const (
	exitFailure        = 1
	exitConfiguration  = 2
	exitPartialRestart = 3
)

var (
	flagConfigFile string
	flagStateDir   string
	flagDebug      bool
	flagQuiet      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var cfgErr *types.ConfigurationError
	if errors.As(err, &cfgErr) {
		return exitConfiguration
	}
	var partial *rolling.PartialRestartFailure
	if errors.As(err, &partial) {
		return exitPartialRestart
	}
	return exitFailure
}

var rootCmd = &cobra.Command{
	Use:   "herdctl",
	Short: "Herdctl - service reconciliation for process supervisors",
	Long: `Herdctl expands application configuration files into process manager
units (systemd or supervisor), reconciles the installed units against the
configuration on every run, and performs rolling restarts of replicated
services without dropping traffic.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := log.InfoLevel
		if flagDebug {
			level = log.DebugLevel
		}
		if flagQuiet {
			level = log.WarnLevel
		}
		log.Init(log.Config{Level: level})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"herdctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&flagConfigFile, "config-file", "c", "",
		"Configuration file (colon-separated list accepted, overrides HERD_CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&flagStateDir, "state-dir", "",
		"State directory (overrides HERD_STATE_DIR)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Only log warnings and errors")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(deregisterCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(gracefulCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(execCmd)
}
