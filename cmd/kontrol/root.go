package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/kontrol/internal/config"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var (
	globalOpts struct {
		verbose    bool
		configPath string
	}
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kontrol",
	Short: "Native desktop shell for Mission Kontrol",
	Long: `kontrol is the native desktop shell of the Mission Kontrol dashboard.

It opens the windows declared in the application configuration, provides
the shell and updater capabilities and runs until the last window is closed
(or, on macOS, until it is told to quit).

Running kontrol without a subcommand starts the shell.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
	RunE: runShell,
}

// Execute runs the root command. Any error is printed as "kontrol: <error>"
// and the process exits with status 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kontrol: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/kontrol/kontrol.toml)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// loadConfig loads and validates the configuration for CLI subcommands.
func loadConfig() (*config.AppConfig, string, error) {
	cfg, source, err := config.Load(globalOpts.configPath)
	if err != nil {
		return nil, source, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, source, err
	}
	return cfg, source, nil
}
