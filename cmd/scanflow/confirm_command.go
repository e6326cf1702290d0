package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scanflow/internal/pipeline"
)

func newConfirmCommand(ctx *commandContext) *cobra.Command {
	var subjectID string
	var sessionID string

	cmd := &cobra.Command{
		Use:   "confirm <data-file>",
		Short: "Confirm a session's subject and visit identifiers",
		Long: "Confirm records an operator's sign-off on the identifiers extracted\n" +
			"for a session. Identifiers are checked against the configured formats;\n" +
			"a rejected value is reported together with its closest valid form.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(p *pipeline.Pipeline) error {
				err := p.ConfirmIdentifiers(cmd.Context(), pipeline.ConfirmRequest{
					DataFile:  args[0],
					SubjectID: subjectID,
					SessionID: sessionID,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Identifiers confirmed for %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subjectID, "subject", "", "Corrected subject identifier (defaults to the recorded one)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Corrected visit identifier (defaults to the recorded one)")
	return cmd
}
