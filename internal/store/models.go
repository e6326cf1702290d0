package store

import "time"

// Study names one research study tracked in the store.
type Study struct {
	ID          int64
	Title       string
	Description string
}

// Participant is a study subject. StudyID carries the human-assigned external
// code, DeidentifiedID the study-scoped pseudonym.
type Participant struct {
	ID              int64
	Study           string
	StudyID         string
	DeidentifiedID  string
	GroupAssignment string
}

// Session is one acquisition visit, identified by its unique source filename.
// Nullable stage timestamps record pipeline progress and double as the audit
// trail: a nil pointer means the stage has not completed.
type Session struct {
	ID                   int64
	Study                string
	ParticipantID        *int64
	ParticipantSessionID string
	DataFile             string
	SummaryFile          string
	Description          string
	DataRecordedDate     string
	DataRecordedTime     string

	DataRecordedAt                   *time.Time
	DataDownloadedAt                 *time.Time
	NotificationSentAt               *time.Time
	SummaryDownloadedAt              *time.Time
	ConvertedToNIfTIAt               *time.Time
	ConversionValidatedAt            *time.Time
	ConversionValidatedWithSummaryAt *time.Time
	ConversionValid                  *bool
	StudyIDValidatedAt               *time.Time
	SessionIDValidatedAt             *time.Time
	SkipProcessing                   bool
	DataConvertedAt                  *time.Time
	DataUploadedAt                   *time.Time
}

// Series is one acquisition unit inside a Session. RoutingCriteria holds the
// JSON-encoded metadata fingerprint; DuplicateSeries the JSON-encoded list of
// sibling series numbers sharing that fingerprint.
type Series struct {
	ID            int64
	Study         string
	ParticipantID *int64
	SessionID     int64
	SeriesNumber  int
	RecordedAt    *time.Time
	Description   string
	FileCount     *int

	ValidatedAt            *time.Time
	ValidatedWithSummaryAt *time.Time
	Valid                  *bool
	RoutingCriteria        string
	CriteriaInConfig       *bool
	DuplicateSeries        string
	SkipProcessing         bool
	DataConvertedAt        *time.Time
}

// StudyUpdate carries partial changes to a Study. Nil fields are left
// untouched; use Clear to null a column explicitly.
type StudyUpdate struct {
	Title       *string
	Description *string
}

// ParticipantUpdate carries partial changes to a Participant.
type ParticipantUpdate struct {
	Study           *string
	StudyID         *string
	DeidentifiedID  *string
	GroupAssignment *string
}

// SessionUpdate carries partial changes to a Session.
type SessionUpdate struct {
	Study                *string
	ParticipantID        *int64
	ParticipantSessionID *string
	DataFile             *string
	SummaryFile          *string
	Description          *string
	DataRecordedDate     *string
	DataRecordedTime     *string

	DataRecordedAt                   *time.Time
	DataDownloadedAt                 *time.Time
	NotificationSentAt               *time.Time
	SummaryDownloadedAt              *time.Time
	ConvertedToNIfTIAt               *time.Time
	ConversionValidatedAt            *time.Time
	ConversionValidatedWithSummaryAt *time.Time
	ConversionValid                  *bool
	StudyIDValidatedAt               *time.Time
	SessionIDValidatedAt             *time.Time
	SkipProcessing                   *bool
	DataConvertedAt                  *time.Time
	DataUploadedAt                   *time.Time
}

// SeriesUpdate carries partial changes to a Series.
type SeriesUpdate struct {
	Study         *string
	ParticipantID *int64
	SeriesNumber  *int
	RecordedAt    *time.Time
	Description   *string
	FileCount     *int

	ValidatedAt            *time.Time
	ValidatedWithSummaryAt *time.Time
	Valid                  *bool
	RoutingCriteria        *string
	CriteriaInConfig       *bool
	DuplicateSeries        *string
	SkipProcessing         *bool
	DataConvertedAt        *time.Time
}

// Ptr returns a pointer to v. Convenience for building update structs.
func Ptr[T any](v T) *T {
	return &v
}
