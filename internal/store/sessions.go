package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const sessionColumns = `id, study, participant_id, participant_session_id, data_file,
summary_file, description, data_recorded_date, data_recorded_time, data_recorded_dt,
data_downloaded_dt, notification_sent_dt, summary_downloaded_dt, converted_to_nifti_dt,
conversion_validated_dt, conversion_validated_with_summary_dt, conversion_valid,
study_id_validated_dt, session_id_validated_dt, skip_processing, data_converted_dt,
data_uploaded_dt`

// SessionField names a nullable sessions column accepted by ClearSession.
type SessionField string

const (
	SessionFieldStudy                            SessionField = "study"
	SessionFieldParticipantID                    SessionField = "participant_id"
	SessionFieldParticipantSessionID             SessionField = "participant_session_id"
	SessionFieldSummaryFile                      SessionField = "summary_file"
	SessionFieldDescription                      SessionField = "description"
	SessionFieldDataDownloadedAt                 SessionField = "data_downloaded_dt"
	SessionFieldNotificationSentAt               SessionField = "notification_sent_dt"
	SessionFieldSummaryDownloadedAt              SessionField = "summary_downloaded_dt"
	SessionFieldConvertedToNIfTIAt               SessionField = "converted_to_nifti_dt"
	SessionFieldConversionValidatedAt            SessionField = "conversion_validated_dt"
	SessionFieldConversionValidatedWithSummaryAt SessionField = "conversion_validated_with_summary_dt"
	SessionFieldConversionValid                  SessionField = "conversion_valid"
	SessionFieldStudyIDValidatedAt               SessionField = "study_id_validated_dt"
	SessionFieldSessionIDValidatedAt             SessionField = "session_id_validated_dt"
	SessionFieldSkipProcessing                   SessionField = "skip_processing"
	SessionFieldDataConvertedAt                  SessionField = "data_converted_dt"
	SessionFieldDataUploadedAt                   SessionField = "data_uploaded_dt"
)

var clearableSessionFields = map[SessionField]struct{}{
	SessionFieldStudy:                            {},
	SessionFieldParticipantID:                    {},
	SessionFieldParticipantSessionID:             {},
	SessionFieldSummaryFile:                      {},
	SessionFieldDescription:                      {},
	SessionFieldDataDownloadedAt:                 {},
	SessionFieldNotificationSentAt:               {},
	SessionFieldSummaryDownloadedAt:              {},
	SessionFieldConvertedToNIfTIAt:               {},
	SessionFieldConversionValidatedAt:            {},
	SessionFieldConversionValidatedWithSummaryAt: {},
	SessionFieldConversionValid:                  {},
	SessionFieldStudyIDValidatedAt:               {},
	SessionFieldSessionIDValidatedAt:             {},
	SessionFieldSkipProcessing:                   {},
	SessionFieldDataConvertedAt:                  {},
	SessionFieldDataUploadedAt:                   {},
}

var sessionSortColumns = map[string]struct{}{
	"id":                 {},
	"participant_id":     {},
	"data_file":          {},
	"data_recorded_dt":   {},
	"data_recorded_date": {},
}

func scanSession(sc scanner) (*Session, error) {
	var (
		session            Session
		study              sql.NullString
		participantID      sql.NullInt64
		participantSession sql.NullString
		dataFile           sql.NullString
		summaryFile        sql.NullString
		description        sql.NullString
		recordedDate       sql.NullString
		recordedTime       sql.NullString
		recordedAt         sql.NullString
		downloadedAt       sql.NullString
		notifiedAt         sql.NullString
		summaryAt          sql.NullString
		niftiAt            sql.NullString
		validatedAt        sql.NullString
		validatedSummaryAt sql.NullString
		conversionValid    sql.NullInt64
		studyIDAt          sql.NullString
		sessionIDAt        sql.NullString
		skip               sql.NullInt64
		convertedAt        sql.NullString
		uploadedAt         sql.NullString
	)
	if err := sc.Scan(
		&session.ID, &study, &participantID, &participantSession, &dataFile,
		&summaryFile, &description, &recordedDate, &recordedTime, &recordedAt,
		&downloadedAt, &notifiedAt, &summaryAt, &niftiAt,
		&validatedAt, &validatedSummaryAt, &conversionValid,
		&studyIDAt, &sessionIDAt, &skip, &convertedAt,
		&uploadedAt,
	); err != nil {
		return nil, err
	}

	session.Study = stringFromNull(study)
	session.ParticipantID = int64FromNull(participantID)
	session.ParticipantSessionID = stringFromNull(participantSession)
	session.DataFile = stringFromNull(dataFile)
	session.SummaryFile = stringFromNull(summaryFile)
	session.Description = stringFromNull(description)
	session.DataRecordedDate = stringFromNull(recordedDate)
	session.DataRecordedTime = stringFromNull(recordedTime)
	session.ConversionValid = boolFromNull(conversionValid)
	session.SkipProcessing = skip.Valid && skip.Int64 == 1

	var err error
	if session.DataRecordedAt, err = timeFromNull(recordedAt); err != nil {
		return nil, err
	}
	if session.DataDownloadedAt, err = timeFromNull(downloadedAt); err != nil {
		return nil, err
	}
	if session.NotificationSentAt, err = timeFromNull(notifiedAt); err != nil {
		return nil, err
	}
	if session.SummaryDownloadedAt, err = timeFromNull(summaryAt); err != nil {
		return nil, err
	}
	if session.ConvertedToNIfTIAt, err = timeFromNull(niftiAt); err != nil {
		return nil, err
	}
	if session.ConversionValidatedAt, err = timeFromNull(validatedAt); err != nil {
		return nil, err
	}
	if session.ConversionValidatedWithSummaryAt, err = timeFromNull(validatedSummaryAt); err != nil {
		return nil, err
	}
	if session.StudyIDValidatedAt, err = timeFromNull(studyIDAt); err != nil {
		return nil, err
	}
	if session.SessionIDValidatedAt, err = timeFromNull(sessionIDAt); err != nil {
		return nil, err
	}
	if session.DataConvertedAt, err = timeFromNull(convertedAt); err != nil {
		return nil, err
	}
	if session.DataUploadedAt, err = timeFromNull(uploadedAt); err != nil {
		return nil, err
	}
	return &session, nil
}

// AddSession inserts a session and returns its assigned id.
func (s *Store) AddSession(ctx context.Context, session *Session) (int64, error) {
	if session == nil {
		return 0, errors.New("session is nil")
	}
	var skip any
	if session.SkipProcessing {
		skip = 1
	}
	res, err := s.exec(ctx, "insert session",
		`INSERT INTO sessions (
            study, participant_id, participant_session_id, data_file, summary_file,
            description, data_recorded_date, data_recorded_time, data_recorded_dt,
            data_downloaded_dt, notification_sent_dt, summary_downloaded_dt,
            converted_to_nifti_dt, conversion_validated_dt,
            conversion_validated_with_summary_dt, conversion_valid,
            study_id_validated_dt, session_id_validated_dt, skip_processing,
            data_converted_dt, data_uploaded_dt
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableString(session.Study),
		nullableInt64(session.ParticipantID),
		nullableString(session.ParticipantSessionID),
		nullableString(session.DataFile),
		nullableString(session.SummaryFile),
		nullableString(session.Description),
		nullableString(session.DataRecordedDate),
		nullableString(session.DataRecordedTime),
		nullableTime(session.DataRecordedAt),
		nullableTime(session.DataDownloadedAt),
		nullableTime(session.NotificationSentAt),
		nullableTime(session.SummaryDownloadedAt),
		nullableTime(session.ConvertedToNIfTIAt),
		nullableTime(session.ConversionValidatedAt),
		nullableTime(session.ConversionValidatedWithSummaryAt),
		nullableBool(session.ConversionValid),
		nullableTime(session.StudyIDValidatedAt),
		nullableTime(session.SessionIDValidatedAt),
		skip,
		nullableTime(session.DataConvertedAt),
		nullableTime(session.DataUploadedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	session.ID = id
	return id, nil
}

// SessionByID fetches one session, or nil when absent.
func (s *Store) SessionByID(ctx context.Context, id int64) (*Session, error) {
	return s.sessionWhere(ctx, "get session", "id = ?", id)
}

// SessionByDataFile fetches a session by its unique source filename, or nil.
func (s *Store) SessionByDataFile(ctx context.Context, dataFile string) (*Session, error) {
	return s.sessionWhere(ctx, "get session by data file", "data_file = ?", dataFile)
}

func (s *Store) sessionWhere(ctx context.Context, op, condition string, args ...any) (*Session, error) {
	rows, err := s.query(ctx, op,
		`SELECT `+sessionColumns+` FROM sessions WHERE `+condition+` LIMIT 1`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSession(rows)
}

// Sessions returns all sessions, optionally sorted. This is the snapshot the
// stage selector operates on.
func (s *Store) Sessions(ctx context.Context, sorts ...Sort) ([]*Session, error) {
	order, err := orderClause(sorts, sessionSortColumns)
	if err != nil {
		return nil, err
	}
	if order == "" {
		order = " ORDER BY id"
	}
	return s.listSessions(ctx, "list sessions", `SELECT `+sessionColumns+` FROM sessions`+order)
}

// SessionsForParticipant returns all sessions belonging to one participant.
func (s *Store) SessionsForParticipant(ctx context.Context, participantID int64) ([]*Session, error) {
	return s.listSessions(ctx, "list sessions for participant",
		`SELECT `+sessionColumns+` FROM sessions WHERE participant_id = ? ORDER BY id`, participantID)
}

func (s *Store) listSessions(ctx context.Context, op, stmt string, args ...any) ([]*Session, error) {
	rows, err := s.query(ctx, op, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// UpdateSession applies the non-nil fields of update. Nil fields stay
// untouched; use ClearSession to null columns explicitly.
func (s *Store) UpdateSession(ctx context.Context, id int64, update SessionUpdate) error {
	assignments := make([]string, 0, 8)
	args := make([]any, 0, 9)
	appendAssignment := func(column string, value any) {
		assignments = append(assignments, column+" = ?")
		args = append(args, value)
	}

	if update.Study != nil {
		appendAssignment("study", *update.Study)
	}
	if update.ParticipantID != nil {
		appendAssignment("participant_id", *update.ParticipantID)
	}
	if update.ParticipantSessionID != nil {
		appendAssignment("participant_session_id", *update.ParticipantSessionID)
	}
	if update.DataFile != nil {
		appendAssignment("data_file", *update.DataFile)
	}
	if update.SummaryFile != nil {
		appendAssignment("summary_file", *update.SummaryFile)
	}
	if update.Description != nil {
		appendAssignment("description", *update.Description)
	}
	if update.DataRecordedDate != nil {
		appendAssignment("data_recorded_date", *update.DataRecordedDate)
	}
	if update.DataRecordedTime != nil {
		appendAssignment("data_recorded_time", *update.DataRecordedTime)
	}
	if update.DataRecordedAt != nil {
		appendAssignment("data_recorded_dt", nullableTime(update.DataRecordedAt))
	}
	if update.DataDownloadedAt != nil {
		appendAssignment("data_downloaded_dt", nullableTime(update.DataDownloadedAt))
	}
	if update.NotificationSentAt != nil {
		appendAssignment("notification_sent_dt", nullableTime(update.NotificationSentAt))
	}
	if update.SummaryDownloadedAt != nil {
		appendAssignment("summary_downloaded_dt", nullableTime(update.SummaryDownloadedAt))
	}
	if update.ConvertedToNIfTIAt != nil {
		appendAssignment("converted_to_nifti_dt", nullableTime(update.ConvertedToNIfTIAt))
	}
	if update.ConversionValidatedAt != nil {
		appendAssignment("conversion_validated_dt", nullableTime(update.ConversionValidatedAt))
	}
	if update.ConversionValidatedWithSummaryAt != nil {
		appendAssignment("conversion_validated_with_summary_dt", nullableTime(update.ConversionValidatedWithSummaryAt))
	}
	if update.ConversionValid != nil {
		appendAssignment("conversion_valid", nullableBool(update.ConversionValid))
	}
	if update.StudyIDValidatedAt != nil {
		appendAssignment("study_id_validated_dt", nullableTime(update.StudyIDValidatedAt))
	}
	if update.SessionIDValidatedAt != nil {
		appendAssignment("session_id_validated_dt", nullableTime(update.SessionIDValidatedAt))
	}
	if update.SkipProcessing != nil {
		appendAssignment("skip_processing", nullableBool(update.SkipProcessing))
	}
	if update.DataConvertedAt != nil {
		appendAssignment("data_converted_dt", nullableTime(update.DataConvertedAt))
	}
	if update.DataUploadedAt != nil {
		appendAssignment("data_uploaded_dt", nullableTime(update.DataUploadedAt))
	}

	if len(assignments) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := s.exec(ctx, "update session",
		`UPDATE sessions SET `+strings.Join(assignments, ", ")+` WHERE id = ?`, args...)
	return err
}

// ClearSession sets the named columns to NULL. Clearing is distinct from an
// absent update field: it erases recorded state, so reprocessing rollbacks go
// through here.
func (s *Store) ClearSession(ctx context.Context, id int64, fields ...SessionField) error {
	names := make([]string, 0, len(fields))
	var validationErr error
	for _, field := range fields {
		if _, ok := clearableSessionFields[field]; !ok {
			validationErr = fmt.Errorf("field %q cannot be cleared", field)
			break
		}
		names = append(names, string(field))
	}
	return s.clearFields(ctx, "clear session", "sessions", id, names, validationErr)
}

// RemoveSession deletes a session row.
func (s *Store) RemoveSession(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, "remove session", `DELETE FROM sessions WHERE id = ?`, id)
	return err
}
