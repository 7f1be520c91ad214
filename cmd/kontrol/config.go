package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/store"
)

var configOpts struct {
	yaml bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the application configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration, including defaults, after validation.

The embedded default is shown when no configuration file exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		format := config.FormatTOML
		if configOpts.yaml {
			format = config.FormatYAML
		}
		data, err := cfg.Marshal(format)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print configuration and state file locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := globalOpts.configPath
		if path == "" {
			p, err := config.ConfigPath()
			if err != nil {
				return fmt.Errorf("failed to get config path: %w", err)
			}
			path = p
		}

		status := "not found, using embedded default"
		if _, err := os.Stat(path); err == nil {
			status = "found"
		}
		fmt.Printf("config: %s (%s)\n", path, status)

		statePath, err := store.StatePath()
		if err != nil {
			return fmt.Errorf("failed to get state path: %w", err)
		}
		fmt.Printf("state:  %s\n", statePath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().BoolVar(&configOpts.yaml, "yaml", false, "Print as YAML instead of TOML")
}
