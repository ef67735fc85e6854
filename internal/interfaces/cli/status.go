package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	pgrepo "github.com/helixforge/helixforge/internal/infrastructure/database/postgres/repositories"
	"github.com/helixforge/helixforge/pkg/types/design"
)

// NewStatusCmd creates the `status` command: inspect one run.
func NewStatusCmd(opts *RootOptions, deps Dependencies) *cobra.Command {
	var showHistory bool

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the state and statistics of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd.Context(), opts)
			defer cancel()

			rec, err := deps.Campaign.GetRun(ctx, args[0])
			if err != nil {
				printError(err)
				return err
			}

			var history []design.GenerationReport
			if showHistory {
				if history, err = deps.Campaign.GenerationHistory(ctx, args[0]); err != nil {
					printError(err)
					return err
				}
			}

			payload := struct {
				Run     *pgrepo.RunRecord         `json:"run"`
				History []design.GenerationReport `json:"history,omitempty"`
			}{rec, history}

			return printResult(cmd, opts, payload, func() {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run:          %s\n", rec.ID)
				fmt.Fprintf(out, "State:        %s\n", rec.State)
				fmt.Fprintf(out, "Strategy:     %s (%s)\n", rec.Strategy, rec.Direction)
				fmt.Fprintf(out, "Generations:  %d\n", rec.Generations)
				fmt.Fprintf(out, "Evaluations:  %d / %d budget\n", rec.Evaluations, rec.BudgetEvaluations)
				if rec.BestFitness != nil {
					fmt.Fprintf(out, "Best fitness: %g\n", *rec.BestFitness)
					fmt.Fprintf(out, "Best seq:     %s\n", rec.BestSequence)
				}
				for _, rep := range history {
					fmt.Fprintf(out, "  gen %3d: proposed=%d novel=%d hits=%d best=%g pop=%d budget=%d\n",
						rep.Generation, rep.Proposed, rep.Novel, rep.CacheHits,
						rep.BestFitness, rep.PopulationSize, rep.BudgetRemaining)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&showHistory, "history", false, "include per-generation statistics")
	return cmd
}

// NewRunsCmd creates the `runs` command: list known runs.
func NewRunsCmd(opts *RootOptions, deps Dependencies) *cobra.Command {
	var (
		state string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd.Context(), opts)
			defer cancel()

			recs, err := deps.Campaign.ListRuns(ctx, design.RunState(state), limit, 0)
			if err != nil {
				printError(err)
				return err
			}

			return printResult(cmd, opts, recs, func() {
				out := cmd.OutOrStdout()
				for _, rec := range recs {
					best := "-"
					if rec.BestFitness != nil {
						best = fmt.Sprintf("%g", *rec.BestFitness)
					}
					fmt.Fprintf(out, "%s  %-16s gen=%-4d eval=%-5d best=%s\n",
						rec.ID, rec.State, rec.Generations, rec.Evaluations, best)
				}
			})
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by run state")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

// NewTopCmd creates the `top` command: best candidates of a run.
func NewTopCmd(opts *RootOptions, deps Dependencies) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "top <run-id>",
		Short: "Show the best-scoring candidates of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd.Context(), opts)
			defer cancel()

			recs, err := deps.Campaign.TopCandidates(ctx, args[0], limit)
			if err != nil {
				printError(err)
				return err
			}

			return printResult(cmd, opts, recs, func() {
				out := cmd.OutOrStdout()
				for i, rec := range recs {
					fitness := "-"
					if rec.Fitness != nil {
						fitness = fmt.Sprintf("%g", *rec.Fitness)
					}
					fmt.Fprintf(out, "%2d. fitness=%-10s gen=%-4d %s\n", i+1, fitness, rec.Generation, rec.Sequence)
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of candidates to show")
	return cmd
}
