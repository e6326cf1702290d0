package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const studyColumns = "id, title, description"

// StudyField names a nullable studies column accepted by ClearStudy.
type StudyField string

const (
	StudyFieldTitle       StudyField = "title"
	StudyFieldDescription StudyField = "description"
)

var clearableStudyFields = map[StudyField]struct{}{
	StudyFieldTitle:       {},
	StudyFieldDescription: {},
}

func scanStudy(sc scanner) (*Study, error) {
	var (
		study       Study
		title       sql.NullString
		description sql.NullString
	)
	if err := sc.Scan(&study.ID, &title, &description); err != nil {
		return nil, err
	}
	study.Title = stringFromNull(title)
	study.Description = stringFromNull(description)
	return &study, nil
}

// AddStudy inserts a study and returns its assigned id.
func (s *Store) AddStudy(ctx context.Context, study *Study) (int64, error) {
	if study == nil {
		return 0, errors.New("study is nil")
	}
	res, err := s.exec(ctx, "insert study",
		`INSERT INTO studies (title, description) VALUES (?, ?)`,
		nullableString(study.Title),
		nullableString(study.Description),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	study.ID = id
	return id, nil
}

// StudyByID fetches one study, or nil when absent.
func (s *Store) StudyByID(ctx context.Context, id int64) (*Study, error) {
	return s.studyWhere(ctx, "get study", "id = ?", id)
}

// StudyByTitle fetches the first study with a matching title, or nil.
func (s *Store) StudyByTitle(ctx context.Context, title string) (*Study, error) {
	return s.studyWhere(ctx, "get study by title", "title = ?", title)
}

func (s *Store) studyWhere(ctx context.Context, op, condition string, args ...any) (*Study, error) {
	rows, err := s.query(ctx, op, `SELECT `+studyColumns+` FROM studies WHERE `+condition+` LIMIT 1`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanStudy(rows)
}

// Studies returns all studies ordered by id.
func (s *Store) Studies(ctx context.Context) ([]*Study, error) {
	rows, err := s.query(ctx, "list studies", `SELECT `+studyColumns+` FROM studies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var studies []*Study
	for rows.Next() {
		study, err := scanStudy(rows)
		if err != nil {
			return nil, err
		}
		studies = append(studies, study)
	}
	return studies, rows.Err()
}

// UpdateStudy applies the non-nil fields of update. Nil fields stay untouched.
func (s *Store) UpdateStudy(ctx context.Context, id int64, update StudyUpdate) error {
	assignments := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if update.Title != nil {
		assignments = append(assignments, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Description != nil {
		assignments = append(assignments, "description = ?")
		args = append(args, *update.Description)
	}
	if len(assignments) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := s.exec(ctx, "update study",
		`UPDATE studies SET `+strings.Join(assignments, ", ")+` WHERE id = ?`, args...)
	return err
}

// ClearStudy sets the named columns to NULL.
func (s *Store) ClearStudy(ctx context.Context, id int64, fields ...StudyField) error {
	return s.clearFields(ctx, "clear study", "studies", id, studyFieldNames(fields), validateStudyFields(fields))
}

func studyFieldNames(fields []StudyField) []string {
	names := make([]string, 0, len(fields))
	for _, field := range fields {
		names = append(names, string(field))
	}
	return names
}

func validateStudyFields(fields []StudyField) error {
	for _, field := range fields {
		if _, ok := clearableStudyFields[field]; !ok {
			return fmt.Errorf("field %q cannot be cleared", field)
		}
	}
	return nil
}

// RemoveStudy deletes a study row.
func (s *Store) RemoveStudy(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, "remove study", `DELETE FROM studies WHERE id = ?`, id)
	return err
}

// clearFields nulls the named columns on one row. Fields are validated by the
// per-entity callers before the SQL text is assembled.
func (s *Store) clearFields(ctx context.Context, op, table string, id int64, names []string, validationErr error) error {
	if validationErr != nil {
		return validationErr
	}
	if len(names) == 0 {
		return nil
	}
	assignments := make([]string, 0, len(names))
	for _, name := range names {
		assignments = append(assignments, name+" = NULL")
	}
	_, err := s.exec(ctx, op,
		`UPDATE `+table+` SET `+strings.Join(assignments, ", ")+` WHERE id = ?`, id)
	return err
}
