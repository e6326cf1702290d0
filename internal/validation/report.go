package validation

import (
	"fmt"
	"strings"
)

// Problem is one mismatch found during a validation run. SeriesNumber is zero
// for session-level problems.
type Problem struct {
	Session      string
	SeriesNumber int
	Message      string
}

// Report aggregates every mismatch found in a run so the operator receives a
// single notification instead of one per series.
type Report struct {
	Problems []Problem
}

// Add records a problem.
func (r *Report) Add(session string, seriesNumber int, message string) {
	r.Problems = append(r.Problems, Problem{
		Session:      session,
		SeriesNumber: seriesNumber,
		Message:      message,
	})
}

// Empty reports whether the run found no problems.
func (r *Report) Empty() bool {
	return len(r.Problems) == 0
}

// Message renders the report grouped by session, suitable for an operator
// notification body.
func (r *Report) Message() string {
	if r.Empty() {
		return ""
	}
	var b strings.Builder
	current := ""
	for _, problem := range r.Problems {
		if problem.Session != current {
			if current != "" {
				b.WriteString("\n")
			}
			current = problem.Session
			fmt.Fprintf(&b, "Session %s:\n", current)
		}
		if problem.SeriesNumber > 0 {
			fmt.Fprintf(&b, " - series %d: %s\n", problem.SeriesNumber, problem.Message)
		} else {
			fmt.Fprintf(&b, " - %s\n", problem.Message)
		}
	}
	return b.String()
}
