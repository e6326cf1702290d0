package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const seriesColumns = `id, study, participant_id, session_id, series_number,
series_recorded_dt, description, number_files, files_validated_dt,
files_validated_with_summary_dt, files_valid, routing_criteria,
criteria_in_config, duplicate_series, skip_processing, data_converted_dt`

// SeriesField names a nullable series column accepted by ClearSeries.
type SeriesField string

const (
	SeriesFieldRecordedAt             SeriesField = "series_recorded_dt"
	SeriesFieldDescription            SeriesField = "description"
	SeriesFieldFileCount              SeriesField = "number_files"
	SeriesFieldValidatedAt            SeriesField = "files_validated_dt"
	SeriesFieldValidatedWithSummaryAt SeriesField = "files_validated_with_summary_dt"
	SeriesFieldValid                  SeriesField = "files_valid"
	SeriesFieldRoutingCriteria        SeriesField = "routing_criteria"
	SeriesFieldCriteriaInConfig       SeriesField = "criteria_in_config"
	SeriesFieldDuplicateSeries        SeriesField = "duplicate_series"
	SeriesFieldSkipProcessing         SeriesField = "skip_processing"
	SeriesFieldDataConvertedAt        SeriesField = "data_converted_dt"
)

var clearableSeriesFields = map[SeriesField]struct{}{
	SeriesFieldRecordedAt:             {},
	SeriesFieldDescription:            {},
	SeriesFieldFileCount:              {},
	SeriesFieldValidatedAt:            {},
	SeriesFieldValidatedWithSummaryAt: {},
	SeriesFieldValid:                  {},
	SeriesFieldRoutingCriteria:        {},
	SeriesFieldCriteriaInConfig:       {},
	SeriesFieldDuplicateSeries:        {},
	SeriesFieldSkipProcessing:         {},
	SeriesFieldDataConvertedAt:        {},
}

func scanSeries(sc scanner) (*Series, error) {
	var (
		series           Series
		study            sql.NullString
		participantID    sql.NullInt64
		sessionID        sql.NullInt64
		seriesNumber     sql.NullInt64
		recordedAt       sql.NullString
		description      sql.NullString
		fileCount        sql.NullInt64
		validatedAt      sql.NullString
		validatedSummary sql.NullString
		valid            sql.NullInt64
		criteria         sql.NullString
		inConfig         sql.NullInt64
		duplicates       sql.NullString
		skip             sql.NullInt64
		convertedAt      sql.NullString
	)
	if err := sc.Scan(
		&series.ID, &study, &participantID, &sessionID, &seriesNumber,
		&recordedAt, &description, &fileCount, &validatedAt,
		&validatedSummary, &valid, &criteria,
		&inConfig, &duplicates, &skip, &convertedAt,
	); err != nil {
		return nil, err
	}

	series.Study = stringFromNull(study)
	series.ParticipantID = int64FromNull(participantID)
	if sessionID.Valid {
		series.SessionID = sessionID.Int64
	}
	if seriesNumber.Valid {
		series.SeriesNumber = int(seriesNumber.Int64)
	}
	series.Description = stringFromNull(description)
	series.FileCount = intFromNull(fileCount)
	series.Valid = boolFromNull(valid)
	series.RoutingCriteria = stringFromNull(criteria)
	series.CriteriaInConfig = boolFromNull(inConfig)
	series.DuplicateSeries = stringFromNull(duplicates)
	series.SkipProcessing = skip.Valid && skip.Int64 == 1

	var err error
	if series.RecordedAt, err = timeFromNull(recordedAt); err != nil {
		return nil, err
	}
	if series.ValidatedAt, err = timeFromNull(validatedAt); err != nil {
		return nil, err
	}
	if series.ValidatedWithSummaryAt, err = timeFromNull(validatedSummary); err != nil {
		return nil, err
	}
	if series.DataConvertedAt, err = timeFromNull(convertedAt); err != nil {
		return nil, err
	}
	return &series, nil
}

// AddSeries inserts a series and returns its assigned id. The referenced
// session must exist; the series number must be unique within it.
func (s *Store) AddSeries(ctx context.Context, series *Series) (int64, error) {
	if series == nil {
		return 0, errors.New("series is nil")
	}
	if series.SessionID == 0 {
		return 0, errors.New("series has no session")
	}
	session, err := s.SessionByID(ctx, series.SessionID)
	if err != nil {
		return 0, err
	}
	if session == nil {
		return 0, fmt.Errorf("session %d does not exist", series.SessionID)
	}
	existing, err := s.SeriesBySessionAndNumber(ctx, series.SessionID, series.SeriesNumber)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("series %d already exists in session %d", series.SeriesNumber, series.SessionID)
	}

	var skip any
	if series.SkipProcessing {
		skip = 1
	}
	res, err := s.exec(ctx, "insert series",
		`INSERT INTO series (
            study, participant_id, session_id, series_number, series_recorded_dt,
            description, number_files, files_validated_dt,
            files_validated_with_summary_dt, files_valid, routing_criteria,
            criteria_in_config, duplicate_series, skip_processing, data_converted_dt
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableString(series.Study),
		nullableInt64(series.ParticipantID),
		series.SessionID,
		series.SeriesNumber,
		nullableTime(series.RecordedAt),
		nullableString(series.Description),
		nullableInt(series.FileCount),
		nullableTime(series.ValidatedAt),
		nullableTime(series.ValidatedWithSummaryAt),
		nullableBool(series.Valid),
		nullableString(series.RoutingCriteria),
		nullableBool(series.CriteriaInConfig),
		nullableString(series.DuplicateSeries),
		skip,
		nullableTime(series.DataConvertedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	series.ID = id
	return id, nil
}

// SeriesByID fetches one series, or nil when absent.
func (s *Store) SeriesByID(ctx context.Context, id int64) (*Series, error) {
	return s.seriesWhere(ctx, "get series", "id = ?", id)
}

// SeriesBySessionAndNumber fetches a series by its session-scoped number, or nil.
func (s *Store) SeriesBySessionAndNumber(ctx context.Context, sessionID int64, number int) (*Series, error) {
	return s.seriesWhere(ctx, "get series by number", "session_id = ? AND series_number = ?", sessionID, number)
}

func (s *Store) seriesWhere(ctx context.Context, op, condition string, args ...any) (*Series, error) {
	rows, err := s.query(ctx, op,
		`SELECT `+seriesColumns+` FROM series WHERE `+condition+` LIMIT 1`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSeries(rows)
}

// SeriesForSession returns all series of one session ordered by series number.
func (s *Store) SeriesForSession(ctx context.Context, sessionID int64) ([]*Series, error) {
	return s.listSeries(ctx, "list series",
		`SELECT `+seriesColumns+` FROM series WHERE session_id = ? ORDER BY series_number`, sessionID)
}

// DuplicateSeriesForSession returns the session's series that carry a
// duplicate-set record.
func (s *Store) DuplicateSeriesForSession(ctx context.Context, sessionID int64) ([]*Series, error) {
	return s.listSeries(ctx, "list duplicate series",
		`SELECT `+seriesColumns+` FROM series
         WHERE session_id = ? AND duplicate_series IS NOT NULL ORDER BY series_number`, sessionID)
}

func (s *Store) listSeries(ctx context.Context, op, stmt string, args ...any) ([]*Series, error) {
	rows, err := s.query(ctx, op, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*Series
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, series)
	}
	return list, rows.Err()
}

// UpdateSeries applies the non-nil fields of update.
func (s *Store) UpdateSeries(ctx context.Context, id int64, update SeriesUpdate) error {
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
	if update.SeriesNumber != nil {
		appendAssignment("series_number", *update.SeriesNumber)
	}
	if update.RecordedAt != nil {
		appendAssignment("series_recorded_dt", nullableTime(update.RecordedAt))
	}
	if update.Description != nil {
		appendAssignment("description", *update.Description)
	}
	if update.FileCount != nil {
		appendAssignment("number_files", *update.FileCount)
	}
	if update.ValidatedAt != nil {
		appendAssignment("files_validated_dt", nullableTime(update.ValidatedAt))
	}
	if update.ValidatedWithSummaryAt != nil {
		appendAssignment("files_validated_with_summary_dt", nullableTime(update.ValidatedWithSummaryAt))
	}
	if update.Valid != nil {
		appendAssignment("files_valid", nullableBool(update.Valid))
	}
	if update.RoutingCriteria != nil {
		appendAssignment("routing_criteria", nullableStringPtr(update.RoutingCriteria))
	}
	if update.CriteriaInConfig != nil {
		appendAssignment("criteria_in_config", nullableBool(update.CriteriaInConfig))
	}
	if update.DuplicateSeries != nil {
		appendAssignment("duplicate_series", nullableStringPtr(update.DuplicateSeries))
	}
	if update.SkipProcessing != nil {
		appendAssignment("skip_processing", nullableBool(update.SkipProcessing))
	}
	if update.DataConvertedAt != nil {
		appendAssignment("data_converted_dt", nullableTime(update.DataConvertedAt))
	}

	if len(assignments) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := s.exec(ctx, "update series",
		`UPDATE series SET `+strings.Join(assignments, ", ")+` WHERE id = ?`, args...)
	return err
}

// ClearSeries sets the named columns to NULL.
func (s *Store) ClearSeries(ctx context.Context, id int64, fields ...SeriesField) error {
	names := make([]string, 0, len(fields))
	var validationErr error
	for _, field := range fields {
		if _, ok := clearableSeriesFields[field]; !ok {
			validationErr = fmt.Errorf("field %q cannot be cleared", field)
			break
		}
		names = append(names, string(field))
	}
	return s.clearFields(ctx, "clear series", "series", id, names, validationErr)
}

// RemoveSeries deletes a series row.
func (s *Store) RemoveSeries(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, "remove series", `DELETE FROM series WHERE id = ?`, id)
	return err
}

// RemoveSeriesForSession deletes every series row of one session. Used by the
// full reprocess rollback.
func (s *Store) RemoveSeriesForSession(ctx context.Context, sessionID int64) error {
	_, err := s.exec(ctx, "remove session series", `DELETE FROM series WHERE session_id = ?`, sessionID)
	return err
}
