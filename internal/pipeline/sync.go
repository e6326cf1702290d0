package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"scanflow/internal/identity"
	"scanflow/internal/logging"
	"scanflow/internal/services"
	"scanflow/internal/stage"
	"scanflow/internal/store"
)

// Sync discovers new source files, registers sessions and participants,
// matches summary documents to sessions, and downloads both into the session
// work directories. A malformed or unfetchable file is logged and skipped;
// only store and configuration failures abort the run.
func (p *Pipeline) Sync(ctx context.Context) error {
	return p.run(ctx, "sync", func(ctx context.Context, logger *slog.Logger) error {
		discovered, err := p.registerSessions(ctx, logger)
		if err != nil {
			return err
		}
		if discovered > 0 && p.cfg.Notifications.Discovery {
			if err := p.notifier.NotifySessionsDiscovered(ctx, discovered); err != nil {
				logger.Warn("discovery notification failed", logging.Error(err))
			}
		}
		if err := p.matchSummaries(ctx, logger); err != nil {
			return err
		}
		if err := p.downloadData(ctx, logger); err != nil {
			return err
		}
		return p.downloadSummaries(ctx, logger)
	})
}

func (p *Pipeline) registerSessions(ctx context.Context, logger *slog.Logger) (int, error) {
	names, err := p.inventory.DataFiles(ctx)
	if err != nil {
		return 0, err
	}

	discovered := 0
	for _, name := range names {
		existing, err := p.store.SessionByDataFile(ctx, name)
		if err != nil {
			return discovered, err
		}
		if existing != nil {
			continue
		}

		parsed, err := identity.ParseFilename(name)
		if err != nil {
			logger.Warn("unrecognized file name, skipping",
				logging.String("file", name), logging.Error(err))
			continue
		}

		session := &store.Session{
			Study:            p.cfg.Study.Title,
			DataFile:         name,
			Description:      parsed.Description,
			DataRecordedDate: parsed.Date,
			DataRecordedTime: parsed.Time,
			DataRecordedAt:   parsed.Timestamp,
		}

		subjectID, sessionID, err := identity.ExtractSubjectAndSession(
			parsed.Description, p.cfg.Study.SubjectFormat, p.cfg.Study.SessionFormat)
		if err != nil {
			return discovered, err
		}
		session.ParticipantSessionID = sessionID
		if subjectID != "" {
			participant, err := p.ensureParticipant(ctx, subjectID)
			if err != nil {
				return discovered, err
			}
			session.ParticipantID = &participant.ID
		}

		if _, err := p.store.AddSession(ctx, session); err != nil {
			return discovered, err
		}
		if err := p.store.Commit(); err != nil {
			return discovered, err
		}
		discovered++
		logger.Info("session registered",
			logging.String(logging.FieldSession, name),
			logging.String(logging.FieldSubject, subjectID))
	}
	return discovered, nil
}

// ensureParticipant finds the participant carrying studyID, registering a new
// one with a fresh deidentified pseudonym when none exists yet.
func (p *Pipeline) ensureParticipant(ctx context.Context, studyID string) (*store.Participant, error) {
	participant, err := p.store.ParticipantByStudyID(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if participant != nil {
		return participant, nil
	}

	existing, err := p.store.Participants(ctx)
	if err != nil {
		return nil, err
	}
	used := make([]string, 0, len(existing))
	for _, other := range existing {
		used = append(used, other.DeidentifiedID)
	}
	format := p.cfg.Study.DeidentifiedFormat
	deidentified, err := identity.GenerateDeidentifiedID(
		used, format.DesiredPrefix+format.DesiredStart, format.DesiredDigits)
	if err != nil {
		return nil, err
	}

	participant = &store.Participant{
		Study:           p.cfg.Study.Title,
		StudyID:         studyID,
		DeidentifiedID:  deidentified,
		GroupAssignment: p.cfg.Study.DefaultGroup,
	}
	if _, err := p.store.AddParticipant(ctx, participant); err != nil {
		return nil, err
	}
	return participant, nil
}

func (p *Pipeline) matchSummaries(ctx context.Context, logger *slog.Logger) error {
	sessions, err := p.store.Sessions(ctx)
	if err != nil {
		return err
	}
	pending := stage.Select(stage.StageSummaryMatch, sessions)
	if len(pending) == 0 {
		return nil
	}

	summaries, err := p.inventory.SummaryFiles(ctx)
	if err != nil {
		return err
	}
	for _, session := range pending {
		match, byDate := matchSummary(session, summaries)
		if match == "" {
			continue
		}
		if byDate {
			// The console sometimes writes summaries under a different
			// subject label than the archive; the embedded timestamp is
			// the reliable join key then.
			logger.Info("summary matched by recording timestamp",
				logging.String(logging.FieldSession, session.DataFile),
				logging.String("summary", match))
		}
		if err := p.store.UpdateSession(ctx, session.ID, store.SessionUpdate{
			SummaryFile: store.Ptr(match),
		}); err != nil {
			return err
		}
		if err := p.store.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// matchSummary pairs a session with a summary file, first by the session's
// own file stem and falling back to the recording timestamp embedded in the
// summary name. The second return reports a timestamp match.
func matchSummary(session *store.Session, summaries []string) (string, bool) {
	stem := sessionStem(session.DataFile)
	for _, name := range summaries {
		if strings.Contains(name, stem) {
			return name, false
		}
	}
	date := strings.ReplaceAll(session.DataRecordedDate, "/", "")
	clock := strings.ReplaceAll(session.DataRecordedTime, ":", "")
	if date == "" || clock == "" {
		return "", false
	}
	search := fmt.Sprintf("_%s_%s", date, clock)
	for _, name := range summaries {
		if strings.Contains(name, search) {
			return name, true
		}
	}
	return "", false
}

func (p *Pipeline) downloadData(ctx context.Context, logger *slog.Logger) error {
	sessions, err := p.store.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, session := range stage.Select(stage.StageDataDownload, sessions) {
		dir := p.sessionDir(session)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrConfig, "sync", "create session dir", dir, err)
		}
		dest := filepath.Join(dir, session.DataFile)
		if err := p.fetcher.FetchData(ctx, session.DataFile, dest); err != nil {
			logger.Warn("data download failed",
				logging.String(logging.FieldSession, session.DataFile), logging.Error(err))
			continue
		}
		if err := p.stampSession(ctx, session.ID, func(now *store.SessionUpdate) {
			now.DataDownloadedAt = store.Ptr(p.now())
		}); err != nil {
			return err
		}
		logger.Info("data downloaded", logging.String(logging.FieldSession, session.DataFile))
	}
	return nil
}

func (p *Pipeline) downloadSummaries(ctx context.Context, logger *slog.Logger) error {
	sessions, err := p.store.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, session := range stage.Select(stage.StageSummaryDownload, sessions) {
		dir := p.sessionDir(session)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrConfig, "sync", "create session dir", dir, err)
		}
		dest := filepath.Join(dir, session.SummaryFile)
		if err := p.fetcher.FetchSummary(ctx, session.SummaryFile, dest); err != nil {
			logger.Warn("summary download failed",
				logging.String(logging.FieldSession, session.DataFile), logging.Error(err))
			continue
		}
		if err := p.stampSession(ctx, session.ID, func(now *store.SessionUpdate) {
			now.SummaryDownloadedAt = store.Ptr(p.now())
		}); err != nil {
			return err
		}
		logger.Info("summary downloaded", logging.String(logging.FieldSession, session.DataFile))
	}
	return nil
}

func sessionStem(dataFile string) string {
	return strings.TrimSuffix(dataFile, filepath.Ext(dataFile))
}

func (p *Pipeline) sessionDir(session *store.Session) string {
	return filepath.Join(p.cfg.Paths.WorkDir, sessionStem(session.DataFile))
}

// stampSession applies one update and commits it immediately so a later
// failure in the same batch cannot roll back completed work.
func (p *Pipeline) stampSession(ctx context.Context, id int64, fill func(*store.SessionUpdate)) error {
	var update store.SessionUpdate
	fill(&update)
	if err := p.store.UpdateSession(ctx, id, update); err != nil {
		return err
	}
	return p.store.Commit()
}
