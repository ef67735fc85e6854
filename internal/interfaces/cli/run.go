package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixforge/helixforge/internal/application/campaign"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// NewRunCmd creates the `run` command: seed and execute a design campaign to
// a terminal state.
func NewRunCmd(opts *RootOptions, deps Dependencies) *cobra.Command {
	var (
		runID     string
		seedsFile string
	)

	cmd := &cobra.Command{
		Use:   "run [sequences...]",
		Short: "Start a design run from seed sequences",
		Long:  "Starts a new search run.  Seeds come from positional arguments,\nfrom --seeds (FASTA or one sequence per line), or both.  The command\nblocks until the run reaches a terminal state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			seeds := append([]string(nil), args...)
			if seedsFile != "" {
				fromFile, err := ReadFASTAFile(seedsFile)
				if err != nil {
					printError(err)
					return err
				}
				seeds = append(seeds, fromFile...)
			}

			ctx, cancel := commandContext(cmd.Context(), opts)
			defer cancel()

			summary, err := deps.Campaign.StartRun(ctx, &campaign.StartInput{
				RunID: runID,
				Seeds: seeds,
			})
			if err != nil {
				printError(err)
				return err
			}
			return printSummary(cmd, opts, summary)
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "explicit run id (default: generated)")
	cmd.Flags().StringVar(&seedsFile, "seeds", "", "FASTA file with seed sequences")
	return cmd
}

// NewResumeCmd creates the `resume` command: continue an interrupted run from
// its latest checkpoint.
func NewResumeCmd(opts *RootOptions, deps Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume an interrupted run from its checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd.Context(), opts)
			defer cancel()

			summary, err := deps.Campaign.ResumeRun(ctx, args[0])
			if err != nil {
				printError(err)
				return err
			}
			return printSummary(cmd, opts, summary)
		},
	}
	return cmd
}

func commandContext(parent context.Context, opts *RootOptions) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if opts.Timeout > 0 {
		return context.WithTimeout(parent, opts.Timeout)
	}
	return context.WithCancel(parent)
}

func printSummary(cmd *cobra.Command, opts *RootOptions, summary design.RunSummary) error {
	return printResult(cmd, opts, summary, func() {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run:          %s\n", summary.RunID)
		fmt.Fprintf(out, "State:        %s\n", summary.State)
		fmt.Fprintf(out, "Generations:  %d\n", summary.Generations)
		fmt.Fprintf(out, "Evaluations:  %d\n", summary.Evaluations)
		fmt.Fprintf(out, "Cache:        %d hits / %d misses\n", summary.CacheHits, summary.CacheMisses)
		fmt.Fprintf(out, "Failures:     %d\n", summary.Failures)
		if summary.BestKey != "" {
			fmt.Fprintf(out, "Best fitness: %g\n", summary.BestFitness)
			fmt.Fprintf(out, "Best key:     %s\n", summary.BestKey)
			fmt.Fprintf(out, "Best seq:     %s\n", summary.BestSequence)
		}
	})
}
