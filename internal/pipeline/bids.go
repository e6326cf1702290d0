package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	"scanflow/internal/logging"
	"scanflow/internal/services"
	"scanflow/internal/stage"
	"scanflow/internal/store"
)

// ConvertToBIDS reorganizes every fully validated session into the standard
// dataset layout under the participant's confirmed identifiers, stamps the
// session and its series, and archives the raw source files alongside. When
// deidentification is enabled the output is keyed by the pseudonym instead
// of the external study code.
func (p *Pipeline) ConvertToBIDS(ctx context.Context) error {
	return p.run(ctx, "bids-convert", func(ctx context.Context, logger *slog.Logger) error {
		sessions, err := p.store.Sessions(ctx)
		if err != nil {
			return err
		}
		for _, session := range stage.Select(stage.StageBIDSConversion, sessions) {
			if err := p.convertSessionToBIDS(ctx, logger, session); err != nil {
				if services.IsFatal(err) {
					return err
				}
				logger.Warn("standard-layout conversion failed",
					logging.String(logging.FieldSession, session.DataFile), logging.Error(err))
			}
		}
		return nil
	})
}

func (p *Pipeline) convertSessionToBIDS(ctx context.Context, logger *slog.Logger, session *store.Session) error {
	participant, err := p.store.ParticipantByID(ctx, *session.ParticipantID)
	if err != nil {
		return err
	}
	if participant == nil {
		return services.Wrap(services.ErrNotFound, "bids-convert", "find participant",
			session.DataFile, nil)
	}
	label := participant.StudyID
	outputDir := p.cfg.Paths.DataDir
	if p.cfg.Study.DeidentifyData {
		label = participant.DeidentifiedID
		if p.cfg.Paths.DeidentifiedDataDir != "" {
			outputDir = p.cfg.Paths.DeidentifiedDataDir
		}
	}

	dir := p.sessionDir(session)
	if err := p.bids.Convert(ctx, BIDSRequest{
		NIfTIDir:    filepath.Join(dir, "convert", "nifti"),
		Participant: label,
		Session:     session.ParticipantSessionID,
		OutputDir:   outputDir,
	}); err != nil {
		return err
	}

	if p.cfg.Paths.SourcedataDir != "" {
		src := filepath.Join(dir, "dicom")
		dest := filepath.Join(p.cfg.Paths.SourcedataDir, label, session.ParticipantSessionID)
		if err := copyTree(src, dest); err != nil {
			logger.Warn("sourcedata archive failed",
				logging.String(logging.FieldSession, session.DataFile), logging.Error(err))
		}
	}

	series, err := p.store.SeriesForSession(ctx, session.ID)
	if err != nil {
		return err
	}
	converted := p.now()
	for _, sr := range series {
		if sr.SkipProcessing || sr.DataConvertedAt != nil {
			continue
		}
		if err := p.store.UpdateSeries(ctx, sr.ID, store.SeriesUpdate{
			DataConvertedAt: store.Ptr(converted),
		}); err != nil {
			return err
		}
	}
	if err := p.store.UpdateSession(ctx, session.ID, store.SessionUpdate{
		DataConvertedAt: store.Ptr(converted),
	}); err != nil {
		return err
	}
	if err := p.store.Commit(); err != nil {
		return err
	}
	logger.Info("session converted to standard layout",
		logging.String(logging.FieldSession, session.DataFile),
		logging.String(logging.FieldSubject, label))
	return nil
}
