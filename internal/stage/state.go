package stage

import "scanflow/internal/store"

// State is the explicit lifecycle position of a session, derived from its
// stage timestamps. The timestamps remain the durable audit record; State is
// a read-side view and is never stored.
type State string

const (
	StateDiscovered       State = "discovered"
	StateDownloaded       State = "downloaded"
	StateConverted        State = "converted"
	StateValidated        State = "validated"
	StateSummaryValidated State = "summary_validated"
	StateBIDSConverted    State = "bids_converted"
	StateUploaded         State = "uploaded"
	StateSkipped          State = "skipped"
)

var allStates = []State{
	StateDiscovered,
	StateDownloaded,
	StateConverted,
	StateValidated,
	StateSummaryValidated,
	StateBIDSConverted,
	StateUploaded,
	StateSkipped,
}

// States returns every state in pipeline order, skipped last.
func States() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

func (s State) String() string { return string(s) }

// StateOf derives the session's current state from its timestamps. A skipped
// session reports StateSkipped regardless of recorded progress, matching its
// removal from forward stage selection.
func StateOf(session *store.Session) State {
	switch {
	case session == nil:
		return StateDiscovered
	case session.SkipProcessing:
		return StateSkipped
	case session.DataUploadedAt != nil:
		return StateUploaded
	case session.DataConvertedAt != nil:
		return StateBIDSConverted
	case session.ConversionValidatedWithSummaryAt != nil:
		return StateSummaryValidated
	case session.ConversionValidatedAt != nil:
		return StateValidated
	case session.ConvertedToNIfTIAt != nil:
		return StateConverted
	case session.DataDownloadedAt != nil:
		return StateDownloaded
	default:
		return StateDiscovered
	}
}
