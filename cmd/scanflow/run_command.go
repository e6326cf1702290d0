package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scanflow/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [job]",
		Short: "Run one pipeline job, or a full pass with no argument",
		Long: "Run executes a single named job against the current store, or one\n" +
			"complete pass over all jobs when no name is given.\n\n" +
			"Jobs: " + strings.Join(pipeline.JobNames(), ", "),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline.Pipeline) error {
				if len(args) == 0 {
					return p.RunAll(cmd.Context())
				}
				return p.RunJob(cmd.Context(), args[0])
			})
		},
	}
	return cmd
}

func newReprocessCommand(ctx *commandContext) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "reprocess <data-file>",
		Short: "Roll a session back for another pass",
		Long: "Reprocess clears a session's validation verdicts so the next runs\n" +
			"re-validate it. With --full it also drops the registered series and\n" +
			"every stamp from conversion onward.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := pipeline.ReprocessValidation
			if full {
				mode = pipeline.ReprocessFull
			}
			return ctx.withPipeline(func(p *pipeline.Pipeline) error {
				if err := p.Reprocess(cmd.Context(), args[0], mode); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s rolled back (%s)\n", args[0], mode)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Also drop series and re-run from conversion")
	return cmd
}
