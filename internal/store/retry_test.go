package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"scanflow/internal/config"
	"scanflow/internal/logging"
	"scanflow/internal/metrics"
	"scanflow/internal/services"
)

// openWithAttempts opens a store over a temp database with the statement
// retry bound set. It bypasses testsupport, which would import this package.
func openWithAttempts(t *testing.T, attempts int) *Store {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "scanflow.db")
	cfg.Database.QueryAttempts = attempts

	st, err := Open(&cfg, logging.NewNop(), metrics.New())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

func TestExecRecoversFromTransientFailure(t *testing.T) {
	st := openWithAttempts(t, 3)
	ctx := context.Background()

	busy := errors.New("database is locked (5) (SQLITE_BUSY)")
	failures := 0
	st.execHook = func(op string) error {
		if failures < 2 {
			failures++
			return busy
		}
		return nil
	}

	if _, err := st.AddParticipant(ctx, &Participant{
		Study:          "demo",
		StudyID:        "sub-M001",
		DeidentifiedID: "sub-D001",
	}); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if failures != 2 {
		t.Fatalf("expected 2 failed attempts before success, got %d", failures)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	st.execHook = nil
	got, err := st.ParticipantByStudyID(ctx, "sub-M001")
	if err != nil {
		t.Fatalf("ParticipantByStudyID: %v", err)
	}
	if got == nil {
		t.Fatal("participant must persist after retried insert")
	}
}

func TestExecExhaustionSurfacesQueryErrorWithoutWrite(t *testing.T) {
	st := openWithAttempts(t, 3)
	ctx := context.Background()

	busy := errors.New("database is locked (5) (SQLITE_BUSY)")
	calls := 0
	st.execHook = func(op string) error {
		calls++
		return busy
	}

	_, err := st.AddParticipant(ctx, &Participant{
		Study:          "demo",
		StudyID:        "sub-M002",
		DeidentifiedID: "sub-D002",
	})
	if !errors.Is(err, services.ErrQuery) {
		t.Fatalf("expected ErrQuery after exhausted attempts, got %v", err)
	}
	if !errors.Is(err, busy) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}

	st.execHook = nil
	if err := st.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	got, err := st.ParticipantByStudyID(ctx, "sub-M002")
	if err != nil {
		t.Fatalf("ParticipantByStudyID: %v", err)
	}
	if got != nil {
		t.Fatalf("nothing may persist after exhausted attempts, got %+v", got)
	}
}
