package validation

import (
	"context"
	"fmt"
	"time"

	"scanflow/internal/services"
	"scanflow/internal/store"
	"scanflow/internal/summary"
)

// ValidateWithSummary runs the cross-validation pass for one session against
// its acquisition summary. When no summary has arrived it either keeps the
// session pending or, past the configured wait bound, marks it validated
// without one and reports the degrade. With a summary present, every series
// must have exactly one summary row with a matching file count; mismatches
// invalidate and skip the series. A session-level total mismatch is reported
// but not fatal.
func (e *Engine) ValidateWithSummary(ctx context.Context, session *store.Session, report *Report) error {
	name := sessionName(session.DataFile)
	logger := e.logger.With("session", name)
	now := e.now()

	if session.SummaryDownloadedAt == nil || session.SummaryFile == "" {
		if session.DataRecordedAt == nil {
			logger.Warn("no summary and no recorded timestamp, leaving pending")
			return nil
		}
		waited := now.Sub(*session.DataRecordedAt)
		bound := e.cfg.SummaryWaitBound()
		if waited <= bound {
			logger.Info("summary not yet available, waiting",
				"waited", waited.Round(time.Second), "bound", bound)
			return nil
		}

		// Stop waiting: the session proceeds without a summary. Timeout
		// alone does not make it invalid.
		err := e.store.UpdateSession(ctx, session.ID, store.SessionUpdate{
			ConversionValidatedWithSummaryAt: store.Ptr(now),
		})
		if err != nil {
			return err
		}
		if err := e.store.Commit(); err != nil {
			return err
		}
		report.Add(name, 0, fmt.Sprintf(
			"waited more than %s for the acquisition summary; the session proceeds without it", bound))
		logger.Warn("summary wait bound exceeded, proceeding without summary", "bound", bound)
		return nil
	}

	parsed, err := summary.ParseFile(e.summaryPath(session))
	if err != nil {
		return err
	}

	dbSeries, err := e.store.SeriesForSession(ctx, session.ID)
	if err != nil {
		return err
	}
	if len(dbSeries) == 0 {
		return services.Wrap(
			services.ErrValidation, "validation", "summary pass",
			"no series recorded for session "+name, nil)
	}

	maxSeries := parsed.MaxSeriesNumber()
	byNumber := make(map[int]*store.Series, len(dbSeries))
	for _, sr := range dbSeries {
		byNumber[sr.SeriesNumber] = sr
		if sr.SeriesNumber > maxSeries {
			maxSeries = sr.SeriesNumber
		}
	}

	totalInDB := 0
	allValid := true
	for number := 1; number <= maxSeries; number++ {
		rows := parsed.EntryForSeries(number)
		sr := byNumber[number]
		if sr == nil {
			report.Add(name, number, "no matching series found in database")
			allValid = false
			continue
		}

		valid := true
		switch {
		case len(rows) == 0:
			report.Add(name, number, "no matching series found in summary")
			valid = false
		case len(rows) > 1:
			report.Add(name, number, "more than one matching series found in summary")
			valid = false
		}

		expected := 0
		update := store.SeriesUpdate{
			ValidatedWithSummaryAt: store.Ptr(now),
		}
		if len(rows) > 0 {
			expected = rows[0].FileCount
			update.RecordedAt = rows[0].Timestamp
		}

		recorded := 0
		if sr.FileCount != nil {
			recorded = *sr.FileCount
		}
		totalInDB += recorded
		if expected != recorded {
			report.Add(name, number, "recorded file count does not match converted file count")
			valid = false
		}

		if !valid {
			update.Valid = store.Ptr(false)
			update.SkipProcessing = store.Ptr(true)
		} else {
			update.Valid = sr.Valid
			update.SkipProcessing = store.Ptr(sr.SkipProcessing)
		}
		if err := e.store.UpdateSeries(ctx, sr.ID, update); err != nil {
			return err
		}
		allValid = allValid && valid
	}

	if parsed.Totals.TotalFiles != totalInDB {
		report.Add(name, 0, fmt.Sprintf(
			"summary lists %d files in total but the database records %d",
			parsed.Totals.TotalFiles, totalInDB))
	}

	sessionUpdate := store.SessionUpdate{
		ConversionValidatedWithSummaryAt: store.Ptr(now),
	}
	if !allValid {
		sessionUpdate.ConversionValid = store.Ptr(false)
	}
	if err := e.store.UpdateSession(ctx, session.ID, sessionUpdate); err != nil {
		return err
	}
	if err := e.store.Commit(); err != nil {
		return err
	}
	logger.Info("summary validation complete", "valid", allValid)
	return nil
}
