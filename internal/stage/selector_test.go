package stage_test

import (
	"testing"
	"time"

	"scanflow/internal/stage"
	"scanflow/internal/store"
)

func ts(offset time.Duration) *time.Time {
	base := time.Date(2025, time.January, 14, 9, 30, 15, 0, time.UTC).Add(offset)
	return &base
}

func TestGuardTable(t *testing.T) {
	downloaded := &store.Session{ID: 1, DataFile: "a.zip", DataDownloadedAt: ts(0)}
	converted := &store.Session{
		ID: 2, DataFile: "b.zip",
		DataDownloadedAt:   ts(0),
		ConvertedToNIfTIAt: ts(time.Hour),
	}
	validated := &store.Session{
		ID: 3, DataFile: "c.zip",
		DataDownloadedAt:      ts(0),
		ConvertedToNIfTIAt:    ts(time.Hour),
		ConversionValidatedAt: ts(2 * time.Hour),
	}
	identified := &store.Session{
		ID: 4, DataFile: "d.zip",
		DataDownloadedAt:                 ts(0),
		ConvertedToNIfTIAt:               ts(time.Hour),
		ConversionValidatedAt:            ts(2 * time.Hour),
		ConversionValidatedWithSummaryAt: ts(3 * time.Hour),
		ConversionValid:                  store.Ptr(true),
		StudyIDValidatedAt:               ts(4 * time.Hour),
		SessionIDValidatedAt:             ts(4 * time.Hour),
		ParticipantID:                    store.Ptr(int64(7)),
		ParticipantSessionID:             "ses-01",
	}
	uploaded := &store.Session{
		ID: 5, DataFile: "e.zip",
		DataConvertedAt: ts(5 * time.Hour),
		DataUploadedAt:  ts(6 * time.Hour),
	}
	skipped := &store.Session{ID: 6, DataFile: "f.zip", SkipProcessing: true}

	tests := []struct {
		name    string
		stage   stage.Stage
		session *store.Session
		want    bool
	}{
		{"summary match on fresh session", stage.StageSummaryMatch, &store.Session{DataFile: "g.zip"}, true},
		{"summary match satisfied", stage.StageSummaryMatch, &store.Session{DataFile: "g.zip", SummaryFile: "g.txt"}, false},
		{"data download on fresh session", stage.StageDataDownload, &store.Session{DataFile: "g.zip"}, true},
		{"data download done", stage.StageDataDownload, downloaded, false},
		{"summary download needs a matched summary", stage.StageSummaryDownload, &store.Session{DataFile: "g.zip"}, false},
		{"summary download pending", stage.StageSummaryDownload, &store.Session{DataFile: "g.zip", SummaryFile: "g.txt"}, true},
		{"first notification pending", stage.StageFirstNotification, downloaded, true},
		{"reminder requires prior notification", stage.StageReminderNotification, downloaded, false},
		{"reminder while one id unconfirmed", stage.StageReminderNotification, &store.Session{
			DataFile:           "g.zip",
			NotificationSentAt: ts(0),
			StudyIDValidatedAt: ts(time.Hour),
		}, true},
		{"reminder satisfied after both ids", stage.StageReminderNotification, &store.Session{
			DataFile:             "g.zip",
			NotificationSentAt:   ts(0),
			StudyIDValidatedAt:   ts(time.Hour),
			SessionIDValidatedAt: ts(time.Hour),
		}, false},
		{"conversion gated on download", stage.StageNIfTIConversion, &store.Session{DataFile: "g.zip"}, false},
		{"conversion pending", stage.StageNIfTIConversion, downloaded, true},
		{"conversion done", stage.StageNIfTIConversion, converted, false},
		{"validation pending", stage.StageValidation, converted, true},
		{"validation done", stage.StageValidation, validated, false},
		{"summary validation pending", stage.StageSummaryValidation, validated, true},
		{"bids requires explicit validity", stage.StageBIDSConversion, validated, false},
		{"bids eligible", stage.StageBIDSConversion, identified, true},
		{"bids rejects unset validity flag", stage.StageBIDSConversion, func() *store.Session {
			clone := *identified
			clone.ConversionValid = nil
			return &clone
		}(), false},
		{"bids rejects missing participant", stage.StageBIDSConversion, func() *store.Session {
			clone := *identified
			clone.ParticipantID = nil
			return &clone
		}(), false},
		{"upload pending", stage.StageUpload, &store.Session{DataFile: "g.zip", DataConvertedAt: ts(0)}, true},
		{"upload done", stage.StageUpload, uploaded, false},
		{"cleanup after upload", stage.StageCleanup, uploaded, true},
		{"cleanup for skipped session", stage.StageCleanup, skipped, true},
		{"cleanup not yet", stage.StageCleanup, validated, false},
		{"skip removes from download", stage.StageDataDownload, skipped, false},
		{"skip removes from validation", stage.StageValidation, skipped, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			guard := stage.GuardFor(tc.stage)
			if guard == nil {
				t.Fatalf("no guard for stage %s", tc.stage)
			}
			if got := guard(tc.session); got != tc.want {
				t.Fatalf("guard(%s) = %v, want %v", tc.stage, got, tc.want)
			}
		})
	}
}

func TestSelectIsIdempotent(t *testing.T) {
	snapshot := []*store.Session{
		{ID: 1, DataFile: "a.zip"},
		{ID: 2, DataFile: "b.zip", DataDownloadedAt: ts(0)},
		{ID: 3, DataFile: "c.zip", SkipProcessing: true},
		nil,
	}

	for _, st := range stage.Stages() {
		first := stage.Select(st, snapshot)
		second := stage.Select(st, snapshot)
		if len(first) != len(second) {
			t.Fatalf("stage %s: selection not stable (%d vs %d)", st, len(first), len(second))
		}
		for i := range first {
			if first[i].ID != second[i].ID {
				t.Fatalf("stage %s: order changed at %d", st, i)
			}
		}
	}

	needingDownload := stage.Select(stage.StageDataDownload, snapshot)
	if len(needingDownload) != 1 || needingDownload[0].ID != 1 {
		t.Fatalf("unexpected download selection: %+v", needingDownload)
	}
}

func TestSelectUnknownStage(t *testing.T) {
	snapshot := []*store.Session{{ID: 1, DataFile: "a.zip"}}
	if got := stage.Select(stage.Stage("bogus"), snapshot); got != nil {
		t.Fatalf("unknown stage must select nothing, got %+v", got)
	}
}

func TestDuplicateFlagged(t *testing.T) {
	series := []*store.Series{
		{ID: 1, SeriesNumber: 1},
		{ID: 2, SeriesNumber: 5, DuplicateSeries: "[5,7]"},
		{ID: 3, SeriesNumber: 7, DuplicateSeries: "[5,7]"},
		nil,
	}
	flagged := stage.DuplicateFlagged(series)
	if len(flagged) != 2 {
		t.Fatalf("expected 2 flagged series, got %d", len(flagged))
	}
	if flagged[0].SeriesNumber != 5 || flagged[1].SeriesNumber != 7 {
		t.Fatalf("unexpected members: %d, %d", flagged[0].SeriesNumber, flagged[1].SeriesNumber)
	}
}
