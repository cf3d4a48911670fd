// Package cmd defines and implements the CLI commands for the radarshot
// executable.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cryptoradar/radarshot/internal/lockfile"
)

// Exit codes. Cron wrappers distinguish a busy lock from a real failure.
const (
	exitOK      = 0
	exitFailure = 1
	exitBusy    = 2
)

var errRunFailed = errors.New("pipeline run failed")

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "radarshot",
		Short: "Scheduled market-dashboard screenshot publisher",
		Long: `radarshot captures a screenshot of the market-data dashboard scheduled
for the current time window, normalizes the image, optionally enriches the
caption with AI commentary, and publishes the result to the configured
channels. It is designed to run as a single-shot process under cron.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the configuration file")
	cmd.AddCommand(newRunCmd())
	return cmd
}

// Execute runs the CLI and terminates the process with the appropriate
// exit code: 0 on publish or deliberate skip, 2 when another run holds
// the lock, 1 on any failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, lockfile.ErrBusy) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitBusy)
		}
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitFailure)
	}
	os.Exit(exitOK)
}
