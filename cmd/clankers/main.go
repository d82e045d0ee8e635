// Command clankers is the session telemetry daemon and its operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dxta-dev/clankers/internal/paths"
)

var configPath string

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clankers",
		Short: "Clankers - AI session telemetry",
		Long: `Clankers records AI coding sessions from editor plugins into a local
database and exposes them for querying.

The CLI provides commands to run the background daemon, query your
session data, and manage configuration profiles.`,
		SilenceUsage: true,
		Version:      fmt.Sprintf("%s (built %s)", version, buildTime),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Help()
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, "Error: no subcommand specified. Use 'clankers daemon' to start the daemon.")
			return fmt.Errorf("no subcommand specified")
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "",
		fmt.Sprintf("config file path (default: %s)", paths.ConfigPath()))

	root.AddCommand(daemonCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
