package store

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Columns added after the first schema revision. Existing databases gain them
// through ALTER TABLE without losing data.
var schemaUpgrades = []struct {
	table  string
	column string
	ddl    string
}{
	{"participants", "study", "ALTER TABLE participants ADD COLUMN study TEXT"},
	{"sessions", "study", "ALTER TABLE sessions ADD COLUMN study TEXT"},
	{"series", "study", "ALTER TABLE series ADD COLUMN study TEXT"},
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	for _, upgrade := range schemaUpgrades {
		exists, err := s.columnExists(ctx, upgrade.table, upgrade.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.db.ExecContext(ctx, upgrade.ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", upgrade.table, upgrade.column, err)
		}
	}
	return nil
}

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			columnType string
			notNull    int
			dflt       any
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &columnType, &notNull, &dflt, &primaryKey); err != nil {
			return false, fmt.Errorf("scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
