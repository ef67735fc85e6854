// Package cli implements the helixforge command tree.  Commands drive the
// campaign service directly; the HTTP API exists for remote observers, not
// for the CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixforge/helixforge/internal/application/campaign"
	"github.com/helixforge/helixforge/internal/infrastructure/monitoring/logging"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Timeout      time.Duration
}

// Dependencies carries the initialized services into the command tree.
type Dependencies struct {
	Campaign campaign.Service
	Logger   logging.Logger
}

// NewRootCommand creates the root command with global flags.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}

	cmd := &cobra.Command{
		Use:     "helixforge",
		Short:   "HelixForge CLI — oracle-guided protein and ligand design campaigns",
		Long:    "HelixForge drives de novo design campaigns: it proposes candidate\nsequences, scores them against a docking oracle under a bounded budget,\nand archives every evaluated design for later analysis.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./helixforge.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json)")
	pf.DurationVar(&opts.Timeout, "timeout", 0, "overall command timeout (0 disables)")

	return cmd
}

// RegisterCommands mounts the subcommands; called from main after dependency
// injection.
func RegisterCommands(root *cobra.Command, opts *RootOptions, deps Dependencies) {
	root.AddCommand(
		NewRunCmd(opts, deps),
		NewResumeCmd(opts, deps),
		NewStatusCmd(opts, deps),
		NewRunsCmd(opts, deps),
		NewTopCmd(opts, deps),
	)
}

// printResult renders v according to the configured output format.
func printResult(cmd *cobra.Command, opts *RootOptions, v interface{}, text func()) error {
	if opts.OutputFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
