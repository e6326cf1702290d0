package pipeline

import (
	"context"
	"log/slog"

	"scanflow/internal/identity"
	"scanflow/internal/logging"
	"scanflow/internal/services"
	"scanflow/internal/store"
)

// ConfirmRequest carries an operator's identifier confirmation for one
// session. An empty identifier keeps the currently recorded value.
type ConfirmRequest struct {
	DataFile  string
	SubjectID string
	SessionID string
}

// ConfirmIdentifiers records an operator's confirmation of a session's
// subject and visit identifiers. Both are validated against the configured
// formats first; a rejected identifier fails with the proposed alternative
// in the message so the operator can correct and retry.
func (p *Pipeline) ConfirmIdentifiers(ctx context.Context, req ConfirmRequest) error {
	return p.run(ctx, "confirm", func(ctx context.Context, logger *slog.Logger) error {
		session, err := p.store.SessionByDataFile(ctx, req.DataFile)
		if err != nil {
			return err
		}
		if session == nil {
			return services.Wrap(services.ErrNotFound, "confirm", "find session", req.DataFile, nil)
		}

		subjectID := req.SubjectID
		if subjectID == "" && session.ParticipantID != nil {
			participant, err := p.store.ParticipantByID(ctx, *session.ParticipantID)
			if err != nil {
				return err
			}
			if participant != nil {
				subjectID = participant.StudyID
			}
		}
		format := p.cfg.Study.SubjectFormat
		if ok, alternative := identity.ValidateIdentifier(
			subjectID, format.DesiredPrefix, format.DesiredStart, format.DesiredDigits); !ok {
			return services.Wrap(services.ErrValidation, "confirm", "subject id",
				subjectID+" is not valid, closest valid form: "+alternative, nil)
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = session.ParticipantSessionID
		}
		sessionFormat := p.cfg.Study.SessionFormat
		if ok, alternative := identity.ValidateIdentifier(
			sessionID, sessionFormat.DesiredPrefix, "", sessionFormat.DesiredDigits); !ok {
			return services.Wrap(services.ErrValidation, "confirm", "session id",
				sessionID+" is not valid, closest valid form: "+alternative, nil)
		}

		participant, err := p.ensureParticipant(ctx, subjectID)
		if err != nil {
			return err
		}

		now := p.now()
		if err := p.store.UpdateSession(ctx, session.ID, store.SessionUpdate{
			ParticipantID:        &participant.ID,
			ParticipantSessionID: &sessionID,
			StudyIDValidatedAt:   &now,
			SessionIDValidatedAt: &now,
		}); err != nil {
			return err
		}
		if err := p.store.Commit(); err != nil {
			return err
		}
		logger.Info("identifiers confirmed",
			logging.String(logging.FieldSession, req.DataFile),
			logging.String(logging.FieldSubject, subjectID),
			logging.String("visit", sessionID))
		return nil
	})
}
