package stage

import "scanflow/internal/store"

// Stage names one step of the processing pipeline. Each stage has a guard
// predicate over a session snapshot; a session is eligible when every
// prerequisite timestamp is set and its own timestamp is still null.
type Stage string

const (
	StageSummaryMatch         Stage = "summary-match"
	StageDataDownload         Stage = "data-download"
	StageSummaryDownload      Stage = "summary-download"
	StageFirstNotification    Stage = "first-notification"
	StageReminderNotification Stage = "reminder-notification"
	StageNIfTIConversion      Stage = "nifti-conversion"
	StageValidation           Stage = "validation"
	StageSummaryValidation    Stage = "summary-validation"
	StageBIDSConversion       Stage = "bids-conversion"
	StageUpload               Stage = "upload"
	StageCleanup              Stage = "cleanup"
)

var allStages = []Stage{
	StageSummaryMatch,
	StageDataDownload,
	StageSummaryDownload,
	StageFirstNotification,
	StageReminderNotification,
	StageNIfTIConversion,
	StageValidation,
	StageSummaryValidation,
	StageBIDSConversion,
	StageUpload,
	StageCleanup,
}

// Stages returns every stage in pipeline order.
func Stages() []Stage {
	out := make([]Stage, len(allStages))
	copy(out, allStages)
	return out
}

func (s Stage) String() string { return string(s) }

// Guard reports whether the session is eligible for the stage. Guards are
// pure: two calls against an unmutated session agree.
type Guard func(*store.Session) bool

var guards = map[Stage]Guard{
	StageSummaryMatch:         NeedsSummaryMatch,
	StageDataDownload:         NeedsDataDownload,
	StageSummaryDownload:      NeedsSummaryDownload,
	StageFirstNotification:    NeedsFirstNotification,
	StageReminderNotification: NeedsReminderNotification,
	StageNIfTIConversion:      NeedsNIfTIConversion,
	StageValidation:           NeedsValidation,
	StageSummaryValidation:    NeedsSummaryValidation,
	StageBIDSConversion:       NeedsBIDSConversion,
	StageUpload:               NeedsUpload,
	StageCleanup:              ReadyForCleanup,
}

// GuardFor returns the stage's guard predicate, or nil for an unknown stage.
func GuardFor(stage Stage) Guard {
	return guards[stage]
}

// Select filters the snapshot down to the sessions eligible for the stage,
// preserving the snapshot's order. An unknown stage selects nothing.
func Select(stage Stage, sessions []*store.Session) []*store.Session {
	guard := guards[stage]
	if guard == nil {
		return nil
	}
	var eligible []*store.Session
	for _, session := range sessions {
		if session != nil && guard(session) {
			eligible = append(eligible, session)
		}
	}
	return eligible
}

// NeedsSummaryMatch selects sessions with no associated summary file yet.
func NeedsSummaryMatch(s *store.Session) bool {
	return !s.SkipProcessing && s.SummaryFile == ""
}

// NeedsDataDownload selects sessions whose source data has not been fetched.
func NeedsDataDownload(s *store.Session) bool {
	return !s.SkipProcessing && s.DataDownloadedAt == nil
}

// NeedsSummaryDownload selects sessions with a matched but unfetched summary.
func NeedsSummaryDownload(s *store.Session) bool {
	return !s.SkipProcessing && s.SummaryFile != "" && s.SummaryDownloadedAt == nil
}

// NeedsFirstNotification selects sessions the operator has not been told about.
func NeedsFirstNotification(s *store.Session) bool {
	return !s.SkipProcessing && s.NotificationSentAt == nil
}

// NeedsReminderNotification selects notified sessions still waiting on either
// identifier confirmation.
func NeedsReminderNotification(s *store.Session) bool {
	return !s.SkipProcessing &&
		s.NotificationSentAt != nil &&
		(s.StudyIDValidatedAt == nil || s.SessionIDValidatedAt == nil)
}

// NeedsNIfTIConversion selects downloaded sessions not yet converted.
func NeedsNIfTIConversion(s *store.Session) bool {
	return !s.SkipProcessing &&
		s.DataDownloadedAt != nil &&
		s.ConvertedToNIfTIAt == nil
}

// NeedsValidation selects converted sessions not yet structurally validated.
func NeedsValidation(s *store.Session) bool {
	return !s.SkipProcessing &&
		s.DataDownloadedAt != nil &&
		s.ConvertedToNIfTIAt != nil &&
		s.ConversionValidatedAt == nil
}

// NeedsSummaryValidation selects validated sessions not yet cross-checked
// against their acquisition summary.
func NeedsSummaryValidation(s *store.Session) bool {
	return !s.SkipProcessing &&
		s.DataDownloadedAt != nil &&
		s.ConvertedToNIfTIAt != nil &&
		s.ConversionValidatedAt != nil &&
		s.ConversionValidatedWithSummaryAt == nil
}

// NeedsBIDSConversion selects fully validated, identified sessions awaiting
// conversion to the standard layout. The validity flag must be an explicit
// true; an unset flag keeps the session ineligible.
func NeedsBIDSConversion(s *store.Session) bool {
	return !s.SkipProcessing &&
		s.ConversionValidatedWithSummaryAt != nil &&
		s.ConversionValid != nil && *s.ConversionValid &&
		s.StudyIDValidatedAt != nil &&
		s.SessionIDValidatedAt != nil &&
		s.ParticipantID != nil &&
		s.ParticipantSessionID != "" &&
		s.DataConvertedAt == nil
}

// NeedsUpload selects converted sessions not yet archived.
func NeedsUpload(s *store.Session) bool {
	return !s.SkipProcessing &&
		s.DataConvertedAt != nil &&
		s.DataUploadedAt == nil
}

// ReadyForCleanup selects sessions whose local working copies may be removed:
// either uploaded or explicitly skipped.
func ReadyForCleanup(s *store.Session) bool {
	return s.DataUploadedAt != nil || s.SkipProcessing
}

// DuplicateFlagged filters a series snapshot down to members of a recorded
// duplicate set, preserving order.
func DuplicateFlagged(series []*store.Series) []*store.Series {
	var flagged []*store.Series
	for _, sr := range series {
		if sr != nil && sr.DuplicateSeries != "" {
			flagged = append(flagged, sr)
		}
	}
	return flagged
}
