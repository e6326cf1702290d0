package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"scanflow/internal/config"
	"scanflow/internal/stage"
	"scanflow/internal/store"
)

const (
	ansiBlue  = "\x1b[34m"
	ansiReset = "\x1b[0m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var stateFilter string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show every session and its pipeline state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				sessions, err := st.Sessions(cmd.Context(), store.Sort{Column: "data_file"})
				if err != nil {
					return err
				}
				return renderStatus(cmd.OutOrStdout(), sessions, stateFilter)
			})
		},
	}
	cmd.Flags().StringVar(&stateFilter, "state", "", "Only show sessions in this state")
	return cmd
}

func renderStatus(out io.Writer, sessions []*store.Session, stateFilter string) error {
	counts := make(map[stage.State]int)
	rows := make([][]string, 0, len(sessions))
	filter := stage.State(strings.ToLower(strings.TrimSpace(stateFilter)))

	for _, session := range sessions {
		state := stage.StateOf(session)
		counts[state]++
		if filter != "" && state != filter {
			continue
		}
		rows = append(rows, []string{
			sessionLabel(session),
			stateLabel(state),
			session.DataRecordedDate,
			participantLabel(session),
			session.ParticipantSessionID,
			validityLabel(session),
		})
	}

	for _, line := range headerLines("Sessions", shouldColorize(out)) {
		fmt.Fprintln(out, line)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No sessions")
	} else {
		fmt.Fprintln(out, renderSessionTable(rows))
	}

	summary := make([]string, 0, len(counts))
	for _, state := range stage.States() {
		if counts[state] == 0 {
			continue
		}
		summary = append(summary, fmt.Sprintf("%s %d", stateLabel(state), counts[state]))
	}
	if len(summary) > 0 {
		fmt.Fprintln(out, strings.Join(summary, " | "))
	}
	return nil
}

func sessionLabel(session *store.Session) string {
	name := session.DataFile
	if dot := strings.LastIndex(name, "."); dot > 0 {
		name = name[:dot]
	}
	return name
}

func stateLabel(state stage.State) string {
	label := strings.ReplaceAll(string(state), "_", " ")
	return cases.Title(language.Und).String(label)
}

func participantLabel(session *store.Session) string {
	if session.ParticipantID == nil {
		return "-"
	}
	return fmt.Sprintf("#%d", *session.ParticipantID)
}

func validityLabel(session *store.Session) string {
	switch {
	case session.ConversionValid == nil:
		return "-"
	case *session.ConversionValid:
		return "yes"
	default:
		return "NO"
	}
}

func headerLines(title string, colorize bool) []string {
	rule := strings.Repeat("-", len(title))
	if colorize {
		title = ansiBlue + title + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{title, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
