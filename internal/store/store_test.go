package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"scanflow/internal/logging"
	"scanflow/internal/metrics"
	"scanflow/internal/services"
	"scanflow/internal/store"
	"scanflow/internal/testsupport"
)

func TestSessionRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	recorded := testsupport.Time(0)
	downloaded := testsupport.Time(time.Hour)
	session := &store.Session{
		Study:            "demo",
		DataFile:         "20250114_093015_M001-ses-01_anatomical.zip",
		Description:      "M001-ses-01_anatomical",
		DataRecordedDate: "20250114",
		DataRecordedTime: "093015",
		DataRecordedAt:   recorded,
		DataDownloadedAt: downloaded,
	}
	id, err := st.AddSession(ctx, session)
	if err != nil {
		t.Fatalf("AddSession: %v", err)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := st.SessionByID(ctx, id)
	if err != nil {
		t.Fatalf("SessionByID: %v", err)
	}
	if got == nil {
		t.Fatal("expected session")
	}
	if got.DataFile != session.DataFile {
		t.Fatalf("data file mismatch: %q", got.DataFile)
	}
	if got.DataRecordedAt == nil || !got.DataRecordedAt.Equal(*recorded) {
		t.Fatalf("recorded timestamp mismatch: %v", got.DataRecordedAt)
	}
	if got.ConvertedToNIfTIAt != nil {
		t.Fatal("unset stage timestamp must scan as nil")
	}
	if got.ConversionValid != nil {
		t.Fatal("unset validity flag must scan as nil")
	}
	if got.SkipProcessing {
		t.Fatal("skip flag must default to false")
	}

	byFile, err := st.SessionByDataFile(ctx, session.DataFile)
	if err != nil {
		t.Fatalf("SessionByDataFile: %v", err)
	}
	if byFile == nil || byFile.ID != id {
		t.Fatalf("lookup by data file returned %+v", byFile)
	}

	missing, err := st.SessionByDataFile(ctx, "nope.zip")
	if err != nil {
		t.Fatalf("SessionByDataFile miss: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown data file, got %+v", missing)
	}
}

func TestUpdateSessionTouchesOnlySuppliedFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewSession(t, st, &store.Session{
		DataFile:    "a.zip",
		Description: "original",
	})

	converted := testsupport.Time(2 * time.Hour)
	err := st.UpdateSession(ctx, session.ID, store.SessionUpdate{
		ConvertedToNIfTIAt: converted,
		ConversionValid:    store.Ptr(true),
	})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := st.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID: %v", err)
	}
	if got.Description != "original" {
		t.Fatalf("absent field was modified: %q", got.Description)
	}
	if got.ConvertedToNIfTIAt == nil || !got.ConvertedToNIfTIAt.Equal(*converted) {
		t.Fatalf("conversion timestamp not applied: %v", got.ConvertedToNIfTIAt)
	}
	if got.ConversionValid == nil || !*got.ConversionValid {
		t.Fatalf("validity flag not applied: %v", got.ConversionValid)
	}

	if err := st.UpdateSession(ctx, session.ID, store.SessionUpdate{}); err != nil {
		t.Fatalf("empty update must be a no-op, got %v", err)
	}
}

func TestClearSessionNullsNamedFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewSession(t, st, &store.Session{
		DataFile:              "b.zip",
		DataDownloadedAt:      testsupport.Time(0),
		ConvertedToNIfTIAt:    testsupport.Time(time.Hour),
		ConversionValidatedAt: testsupport.Time(2 * time.Hour),
		ConversionValid:       store.Ptr(true),
	})

	err := st.ClearSession(ctx, session.ID,
		store.SessionFieldConversionValidatedAt,
		store.SessionFieldConversionValid,
	)
	if err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := st.SessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("SessionByID: %v", err)
	}
	if got.ConversionValidatedAt != nil {
		t.Fatal("cleared timestamp must be nil")
	}
	if got.ConversionValid != nil {
		t.Fatal("cleared flag must be nil")
	}
	if got.DataDownloadedAt == nil {
		t.Fatal("untouched timestamp must survive clear")
	}

	if err := st.ClearSession(ctx, session.ID, store.SessionField("data_file")); err == nil {
		t.Fatal("expected error clearing a non-clearable column")
	}
}

func TestRollbackDiscardsUncommittedWrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := st.AddSession(ctx, &store.Session{DataFile: "gone.zip"}); err != nil {
		t.Fatalf("AddSession: %v", err)
	}

	visible, err := st.SessionByDataFile(ctx, "gone.zip")
	if err != nil {
		t.Fatalf("SessionByDataFile: %v", err)
	}
	if visible == nil {
		t.Fatal("uncommitted write must be visible inside the transaction")
	}

	if err := st.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	after, err := st.SessionByDataFile(ctx, "gone.zip")
	if err != nil {
		t.Fatalf("SessionByDataFile after rollback: %v", err)
	}
	if after != nil {
		t.Fatalf("rolled-back write survived: %+v", after)
	}
}

func TestSeriesRequiresSessionAndUniqueNumber(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := st.AddSeries(ctx, &store.Series{SessionID: 99, SeriesNumber: 1}); err == nil {
		t.Fatal("expected error for orphan series")
	}
	_ = st.Rollback()

	session := testsupport.NewSession(t, st, &store.Session{DataFile: "c.zip"})
	series := testsupport.NewSeries(t, st, &store.Series{
		SessionID:    session.ID,
		SeriesNumber: 3,
		Description:  "anatomical",
		FileCount:    store.Ptr(176),
	})

	if _, err := st.AddSeries(ctx, &store.Series{SessionID: session.ID, SeriesNumber: 3}); err == nil {
		t.Fatal("expected error for duplicate series number")
	}
	_ = st.Rollback()

	got, err := st.SeriesBySessionAndNumber(ctx, session.ID, 3)
	if err != nil {
		t.Fatalf("SeriesBySessionAndNumber: %v", err)
	}
	if got == nil || got.ID != series.ID {
		t.Fatalf("unexpected series lookup result: %+v", got)
	}
	if got.FileCount == nil || *got.FileCount != 176 {
		t.Fatalf("file count mismatch: %v", got.FileCount)
	}
}

func TestDuplicateSeriesForSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	session := testsupport.NewSession(t, st, &store.Session{DataFile: "d.zip"})
	testsupport.NewSeries(t, st, &store.Series{SessionID: session.ID, SeriesNumber: 1})
	testsupport.NewSeries(t, st, &store.Series{
		SessionID:       session.ID,
		SeriesNumber:    5,
		DuplicateSeries: "[5,7]",
	})
	testsupport.NewSeries(t, st, &store.Series{
		SessionID:       session.ID,
		SeriesNumber:    7,
		DuplicateSeries: "[5,7]",
	})

	duplicates, err := st.DuplicateSeriesForSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("DuplicateSeriesForSession: %v", err)
	}
	if len(duplicates) != 2 {
		t.Fatalf("expected 2 duplicate-flagged series, got %d", len(duplicates))
	}
	if duplicates[0].SeriesNumber != 5 || duplicates[1].SeriesNumber != 7 {
		t.Fatalf("unexpected ordering: %d, %d", duplicates[0].SeriesNumber, duplicates[1].SeriesNumber)
	}
}

func TestParticipantEditableInvariant(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	participant := &store.Participant{StudyID: "M001", DeidentifiedID: "D042"}
	id, err := st.AddParticipant(ctx, participant)
	if err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	editable, err := st.ParticipantEditable(ctx, id)
	if err != nil {
		t.Fatalf("ParticipantEditable: %v", err)
	}
	if !editable {
		t.Fatal("participant without converted sessions must be editable")
	}

	testsupport.NewSession(t, st, &store.Session{
		DataFile:        "e.zip",
		ParticipantID:   store.Ptr(id),
		DataConvertedAt: testsupport.Time(0),
	})

	editable, err = st.ParticipantEditable(ctx, id)
	if err != nil {
		t.Fatalf("ParticipantEditable: %v", err)
	}
	if editable {
		t.Fatal("participant with a converted session must not be editable")
	}
}

func TestReopenPreservesData(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := store.Open(cfg, logging.NewNop(), metrics.New())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	session := &store.Session{DataFile: "persisted.zip"}
	if _, err := first.AddSession(context.Background(), session); err != nil {
		t.Fatalf("AddSession: %v", err)
	}
	if err := first.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := store.Open(cfg, logging.NewNop(), metrics.New())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer second.Close()

	got, err := second.SessionByDataFile(context.Background(), "persisted.zip")
	if err != nil {
		t.Fatalf("SessionByDataFile: %v", err)
	}
	if got == nil {
		t.Fatal("committed session must survive reopen")
	}
}

func TestOpenFailsWhenLockHeldPastMaxWait(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Database.LockRetrySeconds = 1
	cfg.Database.LockMaxWaitSeconds = 1

	holder := testsupport.MustOpenStore(t, cfg)
	_ = holder

	_, err := store.Open(cfg, logging.NewNop(), metrics.New())
	if err == nil {
		t.Fatal("expected lock acquisition to fail")
	}
	if !errors.Is(err, services.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSortColumnValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewSession(t, st, &store.Session{DataFile: "z.zip", DataRecordedDate: "20250116"})
	testsupport.NewSession(t, st, &store.Session{DataFile: "a.zip", DataRecordedDate: "20250114"})

	sorted, err := st.Sessions(ctx, store.Sort{Column: "data_file"})
	if err != nil {
		t.Fatalf("Sessions sorted: %v", err)
	}
	if len(sorted) != 2 || sorted[0].DataFile != "a.zip" {
		t.Fatalf("unexpected sort order: %+v", sorted)
	}

	if _, err := st.Sessions(ctx, store.Sort{Column: "data_file; DROP TABLE sessions"}); err == nil {
		t.Fatal("expected unsupported sort column to error")
	}
}

func TestRawQuery(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewSession(t, st, &store.Session{DataFile: "q.zip", Study: "demo"})

	rows, err := st.Query(ctx, `SELECT COUNT(1) FROM sessions WHERE study = ?`, "demo")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("expected one row")
	}
	var count int
	if err := rows.Scan(&count); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
}
