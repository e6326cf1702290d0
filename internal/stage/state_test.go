package stage_test

import (
	"testing"
	"time"

	"scanflow/internal/stage"
	"scanflow/internal/store"
)

func TestStateOf(t *testing.T) {
	tests := []struct {
		name    string
		session *store.Session
		want    stage.State
	}{
		{"nil session", nil, stage.StateDiscovered},
		{"fresh", &store.Session{DataFile: "a.zip"}, stage.StateDiscovered},
		{"downloaded", &store.Session{DataDownloadedAt: ts(0)}, stage.StateDownloaded},
		{"converted", &store.Session{
			DataDownloadedAt:   ts(0),
			ConvertedToNIfTIAt: ts(time.Hour),
		}, stage.StateConverted},
		{"validated", &store.Session{
			DataDownloadedAt:      ts(0),
			ConvertedToNIfTIAt:    ts(time.Hour),
			ConversionValidatedAt: ts(2 * time.Hour),
		}, stage.StateValidated},
		{"summary validated", &store.Session{
			ConversionValidatedAt:            ts(0),
			ConversionValidatedWithSummaryAt: ts(time.Hour),
		}, stage.StateSummaryValidated},
		{"bids converted", &store.Session{DataConvertedAt: ts(0)}, stage.StateBIDSConverted},
		{"uploaded", &store.Session{
			DataConvertedAt: ts(0),
			DataUploadedAt:  ts(time.Hour),
		}, stage.StateUploaded},
		{"skip overrides progress", &store.Session{
			DataUploadedAt: ts(0),
			SkipProcessing: true,
		}, stage.StateSkipped},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := stage.StateOf(tc.session); got != tc.want {
				t.Fatalf("StateOf = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestStatesOrdering(t *testing.T) {
	states := stage.States()
	if len(states) == 0 {
		t.Fatal("expected states")
	}
	if states[0] != stage.StateDiscovered {
		t.Fatalf("first state = %s", states[0])
	}
	if states[len(states)-1] != stage.StateSkipped {
		t.Fatalf("last state = %s", states[len(states)-1])
	}
}
