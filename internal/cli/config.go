package cli

import (
	"fmt"
	"os"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage slidepanel configuration",
	Long: `Manage slidepanel configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. Environment variables (SLIDEPANEL_*, also read from .env)
2. Config file (./slidepanel.yaml or --config)
3. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup(cmd)
		if err != nil {
			return err
		}
		if err := config.Write(cmd.OutOrStdout(), cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration file",
	Long:  `Write the default configuration to ./slidepanel.yaml or the given path. Existing files are not overwritten.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		configPath := "slidepanel.yaml"
		if len(args) == 1 {
			configPath = args[0]
		}

		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'slidepanel config show' to view it, or delete it first to recreate", configPath)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close config file: %w", closeErr)
			}
		}()

		if _, err := fmt.Fprintf(f, "# slidepanel configuration\n# Relative paths resolve against workspace; {year} expands to each study year.\n\n"); err != nil {
			return err
		}
		if err := config.Write(f, config.Default()); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✔️  Created default configuration: %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
