package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/kontrol/internal/app"
)

var runOpts struct {
	headless bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the desktop shell",
	Long: `Start the desktop shell. This is the default when no subcommand is given.

SIGINT and SIGTERM shut the shell down gracefully.`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(runCmd)

	for _, cmd := range []*cobra.Command{rootCmd, runCmd} {
		cmd.Flags().BoolVar(&runOpts.headless, "headless", false,
			"Run without opening native windows")
	}
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.Options{
		ConfigPath: globalOpts.configPath,
		Logger:     logger,
	}
	if !runOpts.headless {
		opts.NewBackend = nativeBackend
	}

	logger.Info("starting kontrol", "version", version)
	return app.Run(ctx, opts)
}
