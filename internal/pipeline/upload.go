package pipeline

import (
	"context"
	"log/slog"
	"os"

	"scanflow/internal/logging"
	"scanflow/internal/stage"
	"scanflow/internal/store"
)

// Upload pushes every converted session's work tree to the archive endpoint
// and stamps it. A failed transfer leaves the session eligible for the next
// run.
func (p *Pipeline) Upload(ctx context.Context) error {
	return p.run(ctx, "upload", func(ctx context.Context, logger *slog.Logger) error {
		sessions, err := p.store.Sessions(ctx)
		if err != nil {
			return err
		}
		for _, session := range stage.Select(stage.StageUpload, sessions) {
			dir := p.sessionDir(session)
			if err := p.uploader.Upload(ctx, dir, sessionStem(session.DataFile)); err != nil {
				logger.Warn("upload failed",
					logging.String(logging.FieldSession, session.DataFile), logging.Error(err))
				continue
			}
			if err := p.stampSession(ctx, session.ID, func(update *store.SessionUpdate) {
				update.DataUploadedAt = store.Ptr(p.now())
			}); err != nil {
				return err
			}
			logger.Info("session uploaded", logging.String(logging.FieldSession, session.DataFile))
		}
		return nil
	})
}

// Cleanup removes the work directories of sessions that are uploaded or
// skipped. Only existing directories are touched, so repeated runs are
// no-ops.
func (p *Pipeline) Cleanup(ctx context.Context) error {
	return p.run(ctx, "cleanup", func(ctx context.Context, logger *slog.Logger) error {
		sessions, err := p.store.Sessions(ctx)
		if err != nil {
			return err
		}
		for _, session := range stage.Select(stage.StageCleanup, sessions) {
			dir := p.sessionDir(session)
			if _, err := os.Stat(dir); err != nil {
				continue
			}
			if err := os.RemoveAll(dir); err != nil {
				logger.Warn("cleanup failed",
					logging.String(logging.FieldSession, session.DataFile), logging.Error(err))
				continue
			}
			logger.Info("work directory removed",
				logging.String(logging.FieldSession, session.DataFile))
		}
		return nil
	})
}
