package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const timeLayout = time.RFC3339Nano

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableStringPtr(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(timeLayout)
}

func nullableBool(value *bool) any {
	if value == nil {
		return nil
	}
	if *value {
		return 1
	}
	return 0
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func timeFromNull(value sql.NullString) (*time.Time, error) {
	if !value.Valid || strings.TrimSpace(value.String) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(timeLayout, value.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", value.String, err)
	}
	return &parsed, nil
}

func boolFromNull(value sql.NullInt64) *bool {
	if !value.Valid {
		return nil
	}
	b := value.Int64 != 0
	return &b
}

func intFromNull(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	i := int(value.Int64)
	return &i
}

func int64FromNull(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	i := value.Int64
	return &i
}

func stringFromNull(value sql.NullString) string {
	if !value.Valid {
		return ""
	}
	return value.String
}

// Sort names a result ordering requested by the caller. Columns are validated
// against a per-entity allow list so no caller input reaches the SQL text
// unchecked.
type Sort struct {
	Column     string
	Descending bool
}

func orderClause(sorts []Sort, allowed map[string]struct{}) (string, error) {
	if len(sorts) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(sorts))
	for _, sort := range sorts {
		column := strings.TrimSpace(sort.Column)
		if _, ok := allowed[column]; !ok {
			return "", fmt.Errorf("unsupported sort column %q", sort.Column)
		}
		direction := "ASC"
		if sort.Descending {
			direction = "DESC"
		}
		parts = append(parts, column+" "+direction)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

type scanner interface {
	Scan(dest ...any) error
}
