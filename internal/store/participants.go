package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const participantColumns = "id, study, study_id, deidentified_id, group_assignment"

// ParticipantField names a nullable participants column accepted by
// ClearParticipant.
type ParticipantField string

const (
	ParticipantFieldStudy           ParticipantField = "study"
	ParticipantFieldStudyID         ParticipantField = "study_id"
	ParticipantFieldDeidentifiedID  ParticipantField = "deidentified_id"
	ParticipantFieldGroupAssignment ParticipantField = "group_assignment"
)

var clearableParticipantFields = map[ParticipantField]struct{}{
	ParticipantFieldStudy:           {},
	ParticipantFieldStudyID:         {},
	ParticipantFieldDeidentifiedID:  {},
	ParticipantFieldGroupAssignment: {},
}

var participantSortColumns = map[string]struct{}{
	"id":              {},
	"study":           {},
	"study_id":        {},
	"deidentified_id": {},
}

func scanParticipant(sc scanner) (*Participant, error) {
	var (
		participant Participant
		study       sql.NullString
		studyID     sql.NullString
		deidentID   sql.NullString
		group       sql.NullString
	)
	if err := sc.Scan(&participant.ID, &study, &studyID, &deidentID, &group); err != nil {
		return nil, err
	}
	participant.Study = stringFromNull(study)
	participant.StudyID = stringFromNull(studyID)
	participant.DeidentifiedID = stringFromNull(deidentID)
	participant.GroupAssignment = stringFromNull(group)
	return &participant, nil
}

// AddParticipant inserts a participant and returns its assigned id.
func (s *Store) AddParticipant(ctx context.Context, participant *Participant) (int64, error) {
	if participant == nil {
		return 0, errors.New("participant is nil")
	}
	res, err := s.exec(ctx, "insert participant",
		`INSERT INTO participants (study, study_id, deidentified_id, group_assignment)
         VALUES (?, ?, ?, ?)`,
		nullableString(participant.Study),
		nullableString(participant.StudyID),
		nullableString(participant.DeidentifiedID),
		nullableString(participant.GroupAssignment),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	participant.ID = id
	return id, nil
}

// ParticipantByID fetches one participant, or nil when absent.
func (s *Store) ParticipantByID(ctx context.Context, id int64) (*Participant, error) {
	return s.participantWhere(ctx, "get participant", "id = ?", id)
}

// ParticipantByStudyID fetches a participant by external subject code, or nil.
func (s *Store) ParticipantByStudyID(ctx context.Context, studyID string) (*Participant, error) {
	return s.participantWhere(ctx, "get participant by study id", "study_id = ?", studyID)
}

// ParticipantByDeidentifiedID fetches a participant by pseudonym, or nil.
func (s *Store) ParticipantByDeidentifiedID(ctx context.Context, deidentifiedID string) (*Participant, error) {
	return s.participantWhere(ctx, "get participant by deidentified id", "deidentified_id = ?", deidentifiedID)
}

func (s *Store) participantWhere(ctx context.Context, op, condition string, args ...any) (*Participant, error) {
	rows, err := s.query(ctx, op,
		`SELECT `+participantColumns+` FROM participants WHERE `+condition+` LIMIT 1`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanParticipant(rows)
}

// Participants returns all participants, optionally sorted.
func (s *Store) Participants(ctx context.Context, sorts ...Sort) ([]*Participant, error) {
	order, err := orderClause(sorts, participantSortColumns)
	if err != nil {
		return nil, err
	}
	if order == "" {
		order = " ORDER BY id"
	}
	rows, err := s.query(ctx, "list participants",
		`SELECT `+participantColumns+` FROM participants`+order)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, participant)
	}
	return participants, rows.Err()
}

// UpdateParticipant applies the non-nil fields of update.
func (s *Store) UpdateParticipant(ctx context.Context, id int64, update ParticipantUpdate) error {
	assignments := make([]string, 0, 4)
	args := make([]any, 0, 5)
	appendAssignment := func(column string, value any) {
		assignments = append(assignments, column+" = ?")
		args = append(args, value)
	}
	if update.Study != nil {
		appendAssignment("study", *update.Study)
	}
	if update.StudyID != nil {
		appendAssignment("study_id", *update.StudyID)
	}
	if update.DeidentifiedID != nil {
		appendAssignment("deidentified_id", *update.DeidentifiedID)
	}
	if update.GroupAssignment != nil {
		appendAssignment("group_assignment", *update.GroupAssignment)
	}
	if len(assignments) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := s.exec(ctx, "update participant",
		`UPDATE participants SET `+strings.Join(assignments, ", ")+` WHERE id = ?`, args...)
	return err
}

// ClearParticipant sets the named columns to NULL.
func (s *Store) ClearParticipant(ctx context.Context, id int64, fields ...ParticipantField) error {
	names := make([]string, 0, len(fields))
	var validationErr error
	for _, field := range fields {
		if _, ok := clearableParticipantFields[field]; !ok {
			validationErr = fmt.Errorf("field %q cannot be cleared", field)
			break
		}
		names = append(names, string(field))
	}
	return s.clearFields(ctx, "clear participant", "participants", id, names, validationErr)
}

// RemoveParticipant deletes a participant row.
func (s *Store) RemoveParticipant(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, "remove participant", `DELETE FROM participants WHERE id = ?`, id)
	return err
}

// ParticipantEditable reports whether a participant's identifiers may still
// change: true until any of its sessions has been converted to the standard
// output layout.
func (s *Store) ParticipantEditable(ctx context.Context, id int64) (bool, error) {
	rows, err := s.query(ctx, "check participant editable",
		`SELECT COUNT(1) FROM sessions WHERE participant_id = ? AND data_converted_dt IS NOT NULL`, id)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return false, err
		}
		return false, errors.New("count query returned no rows")
	}
	var converted int
	if err := rows.Scan(&converted); err != nil {
		return false, err
	}
	return converted == 0, nil
}
