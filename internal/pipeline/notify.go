package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"scanflow/internal/logging"
	"scanflow/internal/stage"
	"scanflow/internal/store"
)

// Notify asks operators to confirm the extracted identifiers of every
// summary-validated session, and re-sends reminders for sessions still
// unconfirmed after the configured interval. Each delivered notification
// restamps the session so the reminder clock restarts.
func (p *Pipeline) Notify(ctx context.Context) error {
	return p.run(ctx, "notify", func(ctx context.Context, logger *slog.Logger) error {
		sessions, err := p.store.Sessions(ctx)
		if err != nil {
			return err
		}
		for _, session := range stage.Select(stage.StageFirstNotification, sessions) {
			if err := p.sendConfirmationRequest(ctx, logger, session, false); err != nil {
				return err
			}
		}
		if !p.cfg.Notifications.Reminders {
			return nil
		}
		interval := p.cfg.ReminderInterval()
		for _, session := range stage.Select(stage.StageReminderNotification, sessions) {
			if p.now().Sub(*session.NotificationSentAt) < interval {
				continue
			}
			if err := p.sendConfirmationRequest(ctx, logger, session, true); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Pipeline) sendConfirmationRequest(ctx context.Context, logger *slog.Logger, session *store.Session, reminder bool) error {
	message, err := p.confirmationMessage(ctx, session, reminder)
	if err != nil {
		return err
	}
	if err := p.notifier.NotifyValidationRequired(ctx, message); err != nil {
		logger.Warn("confirmation notification failed",
			logging.String(logging.FieldSession, session.DataFile), logging.Error(err))
		return nil
	}
	if err := p.stampSession(ctx, session.ID, func(update *store.SessionUpdate) {
		update.NotificationSentAt = store.Ptr(p.now())
	}); err != nil {
		return err
	}
	logger.Info("confirmation requested",
		logging.String(logging.FieldSession, session.DataFile),
		logging.Bool("reminder", reminder))
	return nil
}

func (p *Pipeline) confirmationMessage(ctx context.Context, session *store.Session, reminder bool) (string, error) {
	var b strings.Builder
	if reminder {
		b.WriteString("Reminder: session ")
	} else {
		b.WriteString("Session ")
	}
	fmt.Fprintf(&b, "%s recorded %s %s still needs its study and session identifiers confirmed.",
		sessionStem(session.DataFile), session.DataRecordedDate, session.DataRecordedTime)

	duplicates, err := p.store.DuplicateSeriesForSession(ctx, session.ID)
	if err != nil {
		return "", err
	}
	if flagged := stage.DuplicateFlagged(duplicates); len(flagged) > 0 {
		numbers := make([]string, 0, len(flagged))
		for _, sr := range flagged {
			numbers = append(numbers, fmt.Sprintf("%d", sr.SeriesNumber))
		}
		fmt.Fprintf(&b, "\nATTENTION: series %s share a metadata fingerprint; review which acquisition to keep.",
			strings.Join(numbers, ", "))
	}
	return b.String(), nil
}
