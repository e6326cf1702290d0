package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"scanflow/internal/logging"
	"scanflow/internal/services"
	"scanflow/internal/store"
)

// ReprocessMode selects how much recorded history a reprocess rolls back.
type ReprocessMode string

const (
	// ReprocessValidation clears both validation verdicts so the next runs
	// re-validate the existing conversion output.
	ReprocessValidation ReprocessMode = "validation"
	// ReprocessFull drops the registered series and every stamp from
	// conversion onward, so the session re-runs from NIfTI conversion.
	ReprocessFull ReprocessMode = "full"
)

// Reprocess rolls one session back by its source file name. Identifier
// confirmations are operator actions and survive both modes.
func (p *Pipeline) Reprocess(ctx context.Context, dataFile string, mode ReprocessMode) error {
	return p.run(ctx, "reprocess", func(ctx context.Context, logger *slog.Logger) error {
		session, err := p.store.SessionByDataFile(ctx, dataFile)
		if err != nil {
			return err
		}
		if session == nil {
			return services.Wrap(services.ErrNotFound, "reprocess", "find session", dataFile, nil)
		}
		switch mode {
		case ReprocessValidation:
			err = p.rollbackValidation(ctx, session)
		case ReprocessFull:
			err = p.rollbackFull(ctx, session)
		default:
			return fmt.Errorf("unknown reprocess mode %q", mode)
		}
		if err != nil {
			return err
		}
		if err := p.store.Commit(); err != nil {
			return err
		}
		logger.Info("session rolled back",
			logging.String(logging.FieldSession, dataFile),
			logging.String("mode", string(mode)))
		return nil
	})
}

func (p *Pipeline) rollbackValidation(ctx context.Context, session *store.Session) error {
	if err := p.store.ClearSession(ctx, session.ID,
		store.SessionFieldConversionValidatedAt,
		store.SessionFieldConversionValidatedWithSummaryAt,
		store.SessionFieldConversionValid,
	); err != nil {
		return err
	}
	series, err := p.store.SeriesForSession(ctx, session.ID)
	if err != nil {
		return err
	}
	for _, sr := range series {
		if err := p.store.ClearSeries(ctx, sr.ID,
			store.SeriesFieldValidatedAt,
			store.SeriesFieldValidatedWithSummaryAt,
			store.SeriesFieldValid,
			store.SeriesFieldRoutingCriteria,
			store.SeriesFieldCriteriaInConfig,
			store.SeriesFieldDuplicateSeries,
		); err != nil {
			return err
		}
		if sr.SkipProcessing {
			if err := p.store.UpdateSeries(ctx, sr.ID, store.SeriesUpdate{
				SkipProcessing: store.Ptr(false),
			}); err != nil {
				return err
			}
		}
	}
	if session.SkipProcessing {
		if err := p.store.UpdateSession(ctx, session.ID, store.SessionUpdate{
			SkipProcessing: store.Ptr(false),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) rollbackFull(ctx context.Context, session *store.Session) error {
	if err := p.rollbackValidation(ctx, session); err != nil {
		return err
	}
	if err := p.store.RemoveSeriesForSession(ctx, session.ID); err != nil {
		return err
	}
	return p.store.ClearSession(ctx, session.ID,
		store.SessionFieldConvertedToNIfTIAt,
		store.SessionFieldNotificationSentAt,
		store.SessionFieldDataConvertedAt,
		store.SessionFieldDataUploadedAt,
	)
}
