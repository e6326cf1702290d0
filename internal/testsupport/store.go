package testsupport

import (
	"context"
	"testing"
	"time"

	"scanflow/internal/config"
	"scanflow/internal/logging"
	"scanflow/internal/metrics"
	"scanflow/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg, logging.NewNop(), metrics.New())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewSession inserts and commits a session for tests using the provided store.
func NewSession(t testing.TB, st *store.Store, session *store.Session) *store.Session {
	t.Helper()

	if _, err := st.AddSession(context.Background(), session); err != nil {
		t.Fatalf("store.AddSession: %v", err)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("store.Commit: %v", err)
	}
	return session
}

// NewSeries inserts and commits a series for tests using the provided store.
func NewSeries(t testing.TB, st *store.Store, series *store.Series) *store.Series {
	t.Helper()

	if _, err := st.AddSeries(context.Background(), series); err != nil {
		t.Fatalf("store.AddSeries: %v", err)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("store.Commit: %v", err)
	}
	return series
}

// Time returns a pointer to a fixed, UTC-truncated timestamp offset by the
// given duration. Store round trips preserve it exactly.
func Time(offset time.Duration) *time.Time {
	base := time.Date(2025, 1, 14, 9, 30, 15, 0, time.UTC).Add(offset)
	return &base
}
