package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/kontrol/internal/config"
	"github.com/jmylchreest/kontrol/internal/plugin/updater"
)

var updateOpts struct {
	json  bool
	force bool // Check even when the updater is disabled
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for and manage application updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateCheckRun(cmd, args)
	},
}

var updateCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a newer release is available",
	Long: `Check the configured GitHub repository for a newer release.

Releases that were dismissed with 'kontrol update dismiss' are not reported.`,
	RunE: updateCheckRun,
}

var updateDismissCmd = &cobra.Command{
	Use:   "dismiss <version>",
	Short: "Stop reminding about a release",
	Long: `Record a release as dismissed. A running shell picks the change up
immediately and stops announcing that release.`,
	Args: cobra.ExactArgs(1),
	RunE: updateDismissRun,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.AddCommand(updateCheckCmd)
	updateCmd.AddCommand(updateDismissCmd)

	for _, cmd := range []*cobra.Command{updateCmd, updateCheckCmd} {
		cmd.Flags().BoolVar(&updateOpts.json, "json", false, "Output as JSON")
		cmd.Flags().BoolVar(&updateOpts.force, "force", false,
			"Check even if the updater is disabled in the configuration")
	}
}

func newChecker() (*config.AppConfig, *updater.Checker, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	ucfg := cfg.Plugins.Updater
	if updateOpts.force {
		ucfg.Active = true
	}
	checker, err := updater.NewChecker(cfg.App, ucfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, checker, nil
}

func updateCheckRun(cmd *cobra.Command, args []string) error {
	cfg, checker, err := newChecker()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Plugins.Updater.Timeout.Duration()+5*time.Second)
	defer cancel()

	u, err := checker.Check(ctx)
	if err != nil {
		return err
	}

	if updateOpts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Available bool            `json:"available"`
			Update    *updater.Update `json:"update,omitempty"`
		}{u != nil, u})
	}

	if u == nil {
		fmt.Printf("%s %s is up to date\n", cfg.App.ProductName, cfg.App.Version)
		return nil
	}
	renderUpdate(os.Stdout, cfg.App.ProductName, u, time.Now())
	return nil
}

func updateDismissRun(cmd *cobra.Command, args []string) error {
	_, checker, err := newChecker()
	if err != nil {
		return err
	}
	version := strings.TrimPrefix(args[0], "v")
	if err := checker.Dismiss(version); err != nil {
		return err
	}
	fmt.Printf("Dismissed %s\n", version)
	return nil
}

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
	headlineStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// renderUpdate prints the update banner.
func renderUpdate(w io.Writer, product string, u *updater.Update, now time.Time) {
	var b strings.Builder
	b.WriteString(headlineStyle.Render(fmt.Sprintf("%s %s is available", product, u.Version)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("current: "), u.CurrentVersion)
	if !u.PublishedAt.IsZero() {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("released:"), humanize.RelTime(u.PublishedAt, now, "ago", "from now"))
	}
	if u.AssetName != "" {
		fmt.Fprintf(&b, "%s %s (%s)\n", labelStyle.Render("download:"), u.AssetName, humanize.Bytes(uint64(u.Size)))
	}
	fmt.Fprintf(&b, "%s %s", labelStyle.Render("url:     "), u.URL)

	fmt.Fprintln(w, bannerStyle.Render(b.String()))
}
