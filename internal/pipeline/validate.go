package pipeline

import (
	"context"
	"log/slog"

	"scanflow/internal/conversion"
	"scanflow/internal/logging"
	"scanflow/internal/stage"
	"scanflow/internal/store"
	"scanflow/internal/validation"
)

// Validate runs the structural validation pass over every converted session
// and pushes the collected problem report as one notification.
func (p *Pipeline) Validate(ctx context.Context) error {
	return p.run(ctx, "validate", func(ctx context.Context, logger *slog.Logger) error {
		return p.validatePass(ctx, logger, stage.StageValidation,
			func(engine *validation.Engine, ctx context.Context, session *store.Session, report *validation.Report) error {
				return engine.ValidateStructure(ctx, session, report)
			})
	})
}

// ValidateWithSummary runs the summary cross-check pass.
func (p *Pipeline) ValidateWithSummary(ctx context.Context) error {
	return p.run(ctx, "summary-validate", func(ctx context.Context, logger *slog.Logger) error {
		return p.validatePass(ctx, logger, stage.StageSummaryValidation,
			func(engine *validation.Engine, ctx context.Context, session *store.Session, report *validation.Report) error {
				return engine.ValidateWithSummary(ctx, session, report)
			})
	})
}

func (p *Pipeline) validatePass(ctx context.Context, logger *slog.Logger, target stage.Stage,
	pass func(*validation.Engine, context.Context, *store.Session, *validation.Report) error) error {

	sessions, err := p.store.Sessions(ctx)
	if err != nil {
		return err
	}
	pending := stage.Select(target, sessions)
	if len(pending) == 0 {
		return nil
	}

	routing, err := conversion.LoadRoutingConfig(p.cfg.Validation.RoutingConfigPath)
	if err != nil {
		return err
	}
	engine := validation.New(p.store, p.cfg, routing, p.logger, validation.WithClock(p.now))

	report := &validation.Report{}
	for _, session := range pending {
		if err := pass(engine, ctx, session, report); err != nil {
			return err
		}
	}

	if report.Empty() {
		return nil
	}
	logger.Warn("validation found problems", logging.Int("problems", len(report.Problems)))
	if p.cfg.Notifications.Validation {
		if err := p.notifier.NotifyValidationProblems(ctx, report.Message()); err != nil {
			logger.Warn("problem notification failed", logging.Error(err))
		}
	}
	return nil
}
