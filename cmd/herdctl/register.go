package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herdctl/herdctl/pkg/config"
)

var registerCmd = &cobra.Command{
	Use:   "register CONFIG_FILE",
	Short: "Register a configuration file for management",
	Long: `Register records a configuration file in the state directory so later
commands know which services to manage. Registration is bookkeeping only:
nothing is installed or started until 'herdctl update' runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")

		// Validate before recording anything.
		f, err := config.Load(args[0])
		if err != nil {
			return err
		}
		if name == "" {
			name = declaredName(f)
		}

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		src, err := reg.Register(f.Path, name)
		if err != nil {
			return err
		}

		fmt.Printf("Registered %s as instance %q\n", src.Path, src.InstanceName)
		fmt.Println("Run 'herdctl update' to install its services.")
		return nil
	},
}

var deregisterCmd = &cobra.Command{
	Use:   "deregister [INSTANCE|CONFIG_FILE]",
	Short: "Remove a configuration from management",
	Long: `Deregister removes a configuration from the registry. The units it
installed are left running; use 'herdctl update --clean' before
deregistering to tear them down.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}

		ref := ""
		if len(args) == 1 {
			ref = args[0]
		} else {
			// With a single registered source the reference is unambiguous.
			entries, err := reg.List()
			if err != nil {
				return err
			}
			if len(entries) != 1 {
				return fmt.Errorf("%d configurations registered; name the one to deregister", len(entries))
			}
			ref = entries[0].InstanceName
		}

		src, err := reg.Deregister(ref)
		if err != nil {
			return err
		}
		fmt.Printf("Deregistered instance %q (%s)\n", src.InstanceName, src.Path)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		entries, err := reg.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No configurations registered.")
			return nil
		}
		for _, entry := range entries {
			fmt.Printf("%-20s %s\n", entry.InstanceName, entry.Path)
		}
		return nil
	},
}

func init() {
	registerCmd.Flags().String("name", "", "Instance name (defaults to the configuration's instance_name)")
}
