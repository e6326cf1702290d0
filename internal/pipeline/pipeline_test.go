package pipeline

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scanflow/internal/config"
	"scanflow/internal/logging"
	"scanflow/internal/metrics"
	"scanflow/internal/store"
	"scanflow/internal/testsupport"
)

type fakeNotifier struct {
	discovered []int
	required   []string
	problems   []string
	failures   []string
}

func (f *fakeNotifier) NotifySessionsDiscovered(_ context.Context, count int) error {
	f.discovered = append(f.discovered, count)
	return nil
}

func (f *fakeNotifier) NotifyValidationRequired(_ context.Context, message string) error {
	f.required = append(f.required, message)
	return nil
}

func (f *fakeNotifier) NotifyValidationProblems(_ context.Context, message string) error {
	f.problems = append(f.problems, message)
	return nil
}

func (f *fakeNotifier) NotifyError(_ context.Context, err error, jobName string) error {
	f.failures = append(f.failures, jobName+": "+err.Error())
	return nil
}

func (f *fakeNotifier) TestNotification(context.Context) error { return nil }

type fakeNIfTI struct {
	outputs []string
	calls   int
}

func (f *fakeNIfTI) Convert(_ context.Context, _, outputDir, logPath string) error {
	f.calls++
	for _, name := range f.outputs {
		if err := os.WriteFile(filepath.Join(outputDir, name), []byte("volume"), 0o644); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(logPath, []byte(""), 0o644)
}

type fakeBIDS struct {
	requests []BIDSRequest
}

func (f *fakeBIDS) Convert(_ context.Context, req BIDSRequest) error {
	f.requests = append(f.requests, req)
	return nil
}

type fakeUploader struct {
	names []string
}

func (f *fakeUploader) Upload(_ context.Context, _, name string) error {
	f.names = append(f.names, name)
	return nil
}

type fixture struct {
	cfg      *config.Config
	store    *store.Store
	notifier *fakeNotifier
	pipeline *Pipeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	notifier := &fakeNotifier{}
	all := append([]Option{
		WithClock(func() time.Time { return *testsupport.Time(0) }),
	}, opts...)
	p := New(cfg, st, logging.NewNop(), metrics.New(), notifier, all...)
	return &fixture{cfg: cfg, store: st, notifier: notifier, pipeline: p}
}

func writeArchive(t *testing.T, path string, names ...string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	w := zip.NewWriter(out)
	for _, name := range names {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatalf("archive entry: %v", err)
		}
		if _, err := entry.Write([]byte("dicom")); err != nil {
			t.Fatalf("archive write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func TestSyncRegistersDownloadsAndMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dataFile := "20240115_143000_M012-ses-02_anat.zip"
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.InboxDir, dataFile), "archive")
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.InboxDir, "scan_20240115_143000_summary.txt"), "summary")
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.InboxDir, "junk.zip"), "noise")

	if err := f.pipeline.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	session, err := f.store.SessionByDataFile(ctx, dataFile)
	if err != nil || session == nil {
		t.Fatalf("session not registered: %v", err)
	}
	if session.ParticipantSessionID != "ses-02" {
		t.Errorf("ParticipantSessionID = %q, want ses-02", session.ParticipantSessionID)
	}
	if session.ParticipantID == nil {
		t.Fatal("participant not linked")
	}
	participant, err := f.store.ParticipantByID(ctx, *session.ParticipantID)
	if err != nil || participant == nil {
		t.Fatalf("participant lookup: %v", err)
	}
	if participant.StudyID != "sub-M012" {
		t.Errorf("StudyID = %q, want sub-M012", participant.StudyID)
	}
	if !strings.HasPrefix(participant.DeidentifiedID, "sub-D") ||
		len(participant.DeidentifiedID) != len("sub-D")+3 {
		t.Errorf("unexpected deidentified id %q", participant.DeidentifiedID)
	}
	if session.SummaryFile != "scan_20240115_143000_summary.txt" {
		t.Errorf("SummaryFile = %q", session.SummaryFile)
	}
	if session.DataDownloadedAt == nil || session.SummaryDownloadedAt == nil {
		t.Error("download timestamps not stamped")
	}

	workDir := filepath.Join(f.cfg.Paths.WorkDir, "20240115_143000_M012-ses-02_anat")
	for _, name := range []string{dataFile, session.SummaryFile} {
		if _, err := os.Stat(filepath.Join(workDir, name)); err != nil {
			t.Errorf("downloaded file missing: %v", err)
		}
	}

	if junk, _ := f.store.SessionByDataFile(ctx, "junk.zip"); junk != nil {
		t.Error("malformed file name was registered")
	}
	if len(f.notifier.discovered) != 1 || f.notifier.discovered[0] != 1 {
		t.Errorf("discovered notifications = %v, want [1]", f.notifier.discovered)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dataFile := "20240115_143000_M012-ses-02_anat.zip"
	testsupport.WriteFile(t, filepath.Join(f.cfg.Paths.InboxDir, dataFile), "archive")

	for run := 0; run < 2; run++ {
		if err := f.pipeline.Sync(ctx); err != nil {
			t.Fatalf("Sync run %d: %v", run, err)
		}
	}

	sessions, err := f.store.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if len(f.notifier.discovered) != 1 {
		t.Errorf("discovery re-announced: %v", f.notifier.discovered)
	}
}

func TestConvertToNIfTIRegistersSeries(t *testing.T) {
	converter := &fakeNIfTI{outputs: []string{
		"001_t1_mprage.nii.gz", "001_t1_mprage.json",
		"002_bold_rest.nii.gz", "002_bold_rest.json",
	}}
	f := newFixture(t, WithNIfTIConverter(converter))
	ctx := context.Background()

	dataFile := "20240115_143000_M012-ses-02_anat.zip"
	session := testsupport.NewSession(t, f.store, &store.Session{
		DataFile:         dataFile,
		SummaryFile:      "summary.txt",
		DataDownloadedAt: testsupport.Time(-time.Hour),
	})
	writeArchive(t, filepath.Join(f.cfg.Paths.WorkDir, "20240115_143000_M012-ses-02_anat", dataFile),
		"scan/IM0001.dcm")

	if err := f.pipeline.ConvertToNIfTI(ctx); err != nil {
		t.Fatalf("ConvertToNIfTI: %v", err)
	}
	if converter.calls != 1 {
		t.Fatalf("converter ran %d times, want 1", converter.calls)
	}

	updated, err := f.store.SessionByID(ctx, session.ID)
	if err != nil || updated == nil {
		t.Fatalf("session lookup: %v", err)
	}
	if updated.ConvertedToNIfTIAt == nil {
		t.Error("ConvertedToNIfTIAt not stamped")
	}

	series, err := f.store.SeriesForSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("SeriesForSession: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("got %d series, want 2", len(series))
	}
	if series[0].SeriesNumber != 1 || series[0].Description != "t1_mprage" {
		t.Errorf("series 1 = %d %q", series[0].SeriesNumber, series[0].Description)
	}
	if series[1].SeriesNumber != 2 || series[1].Description != "bold_rest" {
		t.Errorf("series 2 = %d %q", series[1].SeriesNumber, series[1].Description)
	}

	// Outputs must land in the per-series layout validation expects.
	niftiDir := filepath.Join(f.cfg.Paths.WorkDir, "20240115_143000_M012-ses-02_anat", "convert", "nifti")
	if _, err := os.Stat(filepath.Join(niftiDir, "001", "001_t1_mprage.nii.gz")); err != nil {
		t.Errorf("organized output missing: %v", err)
	}

	// A second run must not duplicate series rows.
	if err := f.pipeline.ConvertToNIfTI(ctx); err != nil {
		t.Fatalf("second ConvertToNIfTI: %v", err)
	}
	if converter.calls != 1 {
		t.Errorf("converted session re-converted")
	}
}

func TestConvertToBIDSStampsSessionAndSeries(t *testing.T) {
	bids := &fakeBIDS{}
	f := newFixture(t, WithBIDSConverter(bids))
	ctx := context.Background()

	participant := &store.Participant{
		StudyID:        "sub-M012",
		DeidentifiedID: "sub-D433",
	}
	if _, err := f.store.AddParticipant(ctx, participant); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if err := f.store.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	session := testsupport.NewSession(t, f.store, &store.Session{
		DataFile:                         "20240115_143000_M012-ses-02_anat.zip",
		ParticipantID:                    &participant.ID,
		ParticipantSessionID:             "ses-02",
		ConversionValidatedWithSummaryAt: testsupport.Time(-time.Hour),
		ConversionValid:                  store.Ptr(true),
		StudyIDValidatedAt:               testsupport.Time(-time.Hour),
		SessionIDValidatedAt:             testsupport.Time(-time.Hour),
	})
	testsupport.NewSeries(t, f.store, &store.Series{
		SessionID:    session.ID,
		SeriesNumber: 1,
	})
	skipped := testsupport.NewSeries(t, f.store, &store.Series{
		SessionID:      session.ID,
		SeriesNumber:   2,
		SkipProcessing: true,
	})

	if err := f.pipeline.ConvertToBIDS(ctx); err != nil {
		t.Fatalf("ConvertToBIDS: %v", err)
	}

	if len(bids.requests) != 1 {
		t.Fatalf("got %d conversion requests, want 1", len(bids.requests))
	}
	req := bids.requests[0]
	if req.Participant != "sub-D433" {
		t.Errorf("Participant = %q, want the pseudonym", req.Participant)
	}
	if req.Session != "ses-02" {
		t.Errorf("Session = %q", req.Session)
	}
	if req.OutputDir != f.cfg.Paths.DeidentifiedDataDir {
		t.Errorf("OutputDir = %q, want deidentified dir", req.OutputDir)
	}

	updated, err := f.store.SessionByID(ctx, session.ID)
	if err != nil || updated == nil {
		t.Fatalf("session lookup: %v", err)
	}
	if updated.DataConvertedAt == nil {
		t.Error("session DataConvertedAt not stamped")
	}
	series, err := f.store.SeriesForSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("SeriesForSession: %v", err)
	}
	if series[0].DataConvertedAt == nil {
		t.Error("series 1 not stamped")
	}
	if sr, _ := f.store.SeriesByID(ctx, skipped.ID); sr.DataConvertedAt != nil {
		t.Error("skipped series was stamped")
	}
}

func TestUploadStampsSessions(t *testing.T) {
	uploader := &fakeUploader{}
	f := newFixture(t, WithUploader(uploader))
	ctx := context.Background()

	session := testsupport.NewSession(t, f.store, &store.Session{
		DataFile:        "20240115_143000_M012-ses-02_anat.zip",
		DataConvertedAt: testsupport.Time(-time.Hour),
	})

	if err := f.pipeline.Upload(ctx); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(uploader.names) != 1 || uploader.names[0] != "20240115_143000_M012-ses-02_anat" {
		t.Errorf("uploads = %v", uploader.names)
	}
	updated, _ := f.store.SessionByID(ctx, session.ID)
	if updated.DataUploadedAt == nil {
		t.Error("DataUploadedAt not stamped")
	}
}

func TestCleanupRemovesWorkDirectories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uploaded := testsupport.NewSession(t, f.store, &store.Session{
		DataFile:       "20240115_143000_M012-ses-02_anat.zip",
		DataUploadedAt: testsupport.Time(-time.Hour),
	})
	active := testsupport.NewSession(t, f.store, &store.Session{
		DataFile: "20240116_090000_M013-ses-01_anat.zip",
	})
	uploadedDir := filepath.Join(f.cfg.Paths.WorkDir, sessionStem(uploaded.DataFile))
	activeDir := filepath.Join(f.cfg.Paths.WorkDir, sessionStem(active.DataFile))
	testsupport.WriteFile(t, filepath.Join(uploadedDir, "leftover.txt"), "x")
	testsupport.WriteFile(t, filepath.Join(activeDir, "in-progress.txt"), "x")

	if err := f.pipeline.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(uploadedDir); !os.IsNotExist(err) {
		t.Error("uploaded session dir survived cleanup")
	}
	if _, err := os.Stat(activeDir); err != nil {
		t.Error("active session dir was removed")
	}
}

func TestNotifyFirstAndReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fresh := testsupport.NewSession(t, f.store, &store.Session{
		DataFile:         "20240115_143000_M012-ses-02_anat.zip",
		DataRecordedDate: "2024/01/15",
		DataRecordedTime: "14:30:00",
	})
	testsupport.NewSeries(t, f.store, &store.Series{
		SessionID:       fresh.ID,
		SeriesNumber:    2,
		DuplicateSeries: "[2,3]",
	})
	overdue := testsupport.NewSession(t, f.store, &store.Session{
		DataFile:           "20240116_090000_M013-ses-01_anat.zip",
		NotificationSentAt: testsupport.Time(-48 * time.Hour),
	})
	recent := testsupport.NewSession(t, f.store, &store.Session{
		DataFile:           "20240117_090000_M014-ses-01_anat.zip",
		NotificationSentAt: testsupport.Time(-time.Hour),
	})

	if err := f.pipeline.Notify(ctx); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(f.notifier.required) != 2 {
		t.Fatalf("got %d notifications, want 2: %v", len(f.notifier.required), f.notifier.required)
	}
	if !strings.Contains(f.notifier.required[0], "ATTENTION") {
		t.Errorf("first notification lacks the duplicate warning: %q", f.notifier.required[0])
	}
	if !strings.HasPrefix(f.notifier.required[1], "Reminder") {
		t.Errorf("reminder not marked as such: %q", f.notifier.required[1])
	}

	stamped, _ := f.store.SessionByID(ctx, fresh.ID)
	if stamped.NotificationSentAt == nil {
		t.Error("first notification not stamped")
	}
	restamped, _ := f.store.SessionByID(ctx, overdue.ID)
	if !restamped.NotificationSentAt.Equal(*testsupport.Time(0)) {
		t.Error("reminder did not restart the reminder clock")
	}
	untouched, _ := f.store.SessionByID(ctx, recent.ID)
	if !untouched.NotificationSentAt.Equal(*testsupport.Time(-time.Hour)) {
		t.Error("recently notified session was re-notified")
	}
}

func TestReprocessValidationClearsVerdicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := testsupport.NewSession(t, f.store, &store.Session{
		DataFile:                         "20240115_143000_M012-ses-02_anat.zip",
		ConvertedToNIfTIAt:               testsupport.Time(-3 * time.Hour),
		ConversionValidatedAt:            testsupport.Time(-2 * time.Hour),
		ConversionValidatedWithSummaryAt: testsupport.Time(-time.Hour),
		ConversionValid:                  store.Ptr(false),
	})
	series := testsupport.NewSeries(t, f.store, &store.Series{
		SessionID:       session.ID,
		SeriesNumber:    1,
		ValidatedAt:     testsupport.Time(-2 * time.Hour),
		Valid:           store.Ptr(false),
		DuplicateSeries: "[1,2]",
		SkipProcessing:  true,
	})

	if err := f.pipeline.Reprocess(ctx, session.DataFile, ReprocessValidation); err != nil {
		t.Fatalf("Reprocess: %v", err)
	}

	updated, _ := f.store.SessionByID(ctx, session.ID)
	if updated.ConversionValidatedAt != nil || updated.ConversionValidatedWithSummaryAt != nil ||
		updated.ConversionValid != nil {
		t.Error("validation verdicts survived the rollback")
	}
	if updated.ConvertedToNIfTIAt == nil {
		t.Error("conversion stamp should survive a validation rollback")
	}
	sr, _ := f.store.SeriesByID(ctx, series.ID)
	if sr.ValidatedAt != nil || sr.Valid != nil || sr.DuplicateSeries != "" || sr.SkipProcessing {
		t.Errorf("series verdicts survived: %+v", sr)
	}
}

func TestReprocessFullDropsSeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := testsupport.NewSession(t, f.store, &store.Session{
		DataFile:           "20240115_143000_M012-ses-02_anat.zip",
		DataDownloadedAt:   testsupport.Time(-5 * time.Hour),
		ConvertedToNIfTIAt: testsupport.Time(-4 * time.Hour),
		NotificationSentAt: testsupport.Time(-3 * time.Hour),
		DataConvertedAt:    testsupport.Time(-2 * time.Hour),
		DataUploadedAt:     testsupport.Time(-time.Hour),
	})
	testsupport.NewSeries(t, f.store, &store.Series{SessionID: session.ID, SeriesNumber: 1})

	if err := f.pipeline.Reprocess(ctx, session.DataFile, ReprocessFull); err != nil {
		t.Fatalf("Reprocess: %v", err)
	}

	updated, _ := f.store.SessionByID(ctx, session.ID)
	if updated.ConvertedToNIfTIAt != nil || updated.NotificationSentAt != nil ||
		updated.DataConvertedAt != nil || updated.DataUploadedAt != nil {
		t.Errorf("downstream stamps survived: %+v", updated)
	}
	if updated.DataDownloadedAt == nil {
		t.Error("download stamp should survive a full rollback")
	}
	series, _ := f.store.SeriesForSession(ctx, session.ID)
	if len(series) != 0 {
		t.Errorf("got %d series after full rollback, want 0", len(series))
	}
}

func TestReprocessUnknownSession(t *testing.T) {
	f := newFixture(t)
	if err := f.pipeline.Reprocess(context.Background(), "nope.zip", ReprocessFull); err == nil {
		t.Fatal("expected an error for an unknown session")
	}
}

func TestConfirmIdentifiers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session := testsupport.NewSession(t, f.store, &store.Session{
		DataFile:             "20240115_143000_M012-ses-02_anat.zip",
		ParticipantSessionID: "ses-02",
	})

	err := f.pipeline.ConfirmIdentifiers(ctx, ConfirmRequest{
		DataFile:  session.DataFile,
		SubjectID: "sub-M07",
	})
	if err == nil || !strings.Contains(err.Error(), "sub-M007") {
		t.Fatalf("expected rejection proposing sub-M007, got %v", err)
	}

	if err := f.pipeline.ConfirmIdentifiers(ctx, ConfirmRequest{
		DataFile:  session.DataFile,
		SubjectID: "sub-M007",
	}); err != nil {
		t.Fatalf("ConfirmIdentifiers: %v", err)
	}

	updated, _ := f.store.SessionByID(ctx, session.ID)
	if updated.StudyIDValidatedAt == nil || updated.SessionIDValidatedAt == nil {
		t.Error("confirmation timestamps not stamped")
	}
	if updated.ParticipantID == nil {
		t.Fatal("participant not linked")
	}
	participant, _ := f.store.ParticipantByID(ctx, *updated.ParticipantID)
	if participant.StudyID != "sub-M007" {
		t.Errorf("StudyID = %q, want sub-M007", participant.StudyID)
	}
	if updated.ParticipantSessionID != "ses-02" {
		t.Errorf("ParticipantSessionID = %q, want ses-02 preserved", updated.ParticipantSessionID)
	}
}

func TestConfirmRejectsUnknownSession(t *testing.T) {
	f := newFixture(t)
	err := f.pipeline.ConfirmIdentifiers(context.Background(), ConfirmRequest{DataFile: "nope.zip"})
	if err == nil {
		t.Fatal("expected an error for an unknown session")
	}
}

func TestRunJobRejectsUnknownName(t *testing.T) {
	f := newFixture(t)
	if err := f.pipeline.RunJob(context.Background(), "defragment"); err == nil {
		t.Fatal("expected an error for an unknown job name")
	}
}

func TestJobOrderEndsWithCleanup(t *testing.T) {
	names := JobNames()
	if names[0] != "sync" {
		t.Errorf("first job = %q, want sync", names[0])
	}
	if names[len(names)-1] != "cleanup" {
		t.Errorf("last job = %q, want cleanup", names[len(names)-1])
	}
}
