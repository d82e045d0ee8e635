package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dxta-dev/clankers/internal/configfile"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "Manage clankers configuration including profiles, endpoints, and sync settings.",
	}

	cmd.AddCommand(configSetCmd())
	cmd.AddCommand(configGetCmd())
	cmd.AddCommand(configListCmd())
	cmd.AddCommand(configProfilesCmd())

	return cmd
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value for the active profile.

Available keys:
  endpoint       - Sync endpoint URL
  sync_enabled   - Enable/disable sync (true/false)
  sync_interval  - Sync interval in seconds
  auth           - Authentication mode

Examples:
  clankers config set endpoint https://my-server.com
  clankers config set sync_enabled true
  clankers config set sync_interval 60`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configfile.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := cfg.SetValue(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}

			fmt.Printf("Set %s = %s (profile: %s)\n", args[0], args[1], cfg.ActiveProfile)
			return nil
		},
	}
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long: `Get a configuration value from the active profile.

Examples:
  clankers config get endpoint
  clankers config get sync_enabled`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configfile.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			value, err := cfg.GetValue(args[0])
			if err != nil {
				return err
			}

			fmt.Println(value)
			return nil
		},
	}
}

func configListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration",
		Long:  "List all configuration for the active profile.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configfile.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			profile := cfg.GetActiveProfile()

			if format == "json" {
				output := map[string]any{
					"profile":       cfg.ActiveProfile,
					"endpoint":      profile.Endpoint,
					"sync_enabled":  profile.SyncEnabled,
					"sync_interval": profile.SyncInterval,
					"auth":          profile.AuthMode,
				}
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(output)
			}

			fmt.Printf("Profile: %s\n", cfg.ActiveProfile)
			fmt.Printf("  endpoint:       %s\n", profile.Endpoint)
			fmt.Printf("  sync_enabled:   %t\n", profile.SyncEnabled)
			fmt.Printf("  sync_interval:  %d seconds\n", profile.SyncInterval)
			fmt.Printf("  auth:           %s\n", profile.AuthMode)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func configProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage profiles",
		Long:  "List, create, delete and switch between configuration profiles.",
	}

	cmd.AddCommand(profilesListCmd())
	cmd.AddCommand(profilesUseCmd())
	cmd.AddCommand(profilesCreateCmd())
	cmd.AddCommand(profilesDeleteCmd())

	return cmd
}

func profilesListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available profiles",
		Long:  "List all configuration profiles and indicate the active one.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configfile.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			names := cfg.ProfileNames()
			sort.Strings(names)

			if format == "json" {
				type profileInfo struct {
					Name   string `json:"name"`
					Active bool   `json:"active"`
				}
				profiles := make([]profileInfo, 0, len(names))
				for _, name := range names {
					profiles = append(profiles, profileInfo{
						Name:   name,
						Active: name == cfg.ActiveProfile,
					})
				}
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(profiles)
			}

			for _, name := range names {
				if name == cfg.ActiveProfile {
					fmt.Printf("* %s (active)\n", name)
				} else {
					fmt.Printf("  %s\n", name)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func profilesUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Switch to a different profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configfile.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := cfg.SetActiveProfile(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}

			fmt.Printf("Switched to profile: %s\n", args[0])
			return nil
		},
	}
}

func profilesCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configfile.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg.CreateProfile(args[0])
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}

			fmt.Printf("Created profile: %s\n", args[0])
			return nil
		},
	}
}

func profilesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configfile.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := cfg.DeleteProfile(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}

			fmt.Printf("Deleted profile: %s\n", args[0])
			return nil
		},
	}
}
