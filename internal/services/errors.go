package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStoreUnavailable marks failures to open or lock the state store.
	// Always fatal for the run.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrQuery marks a store statement that failed after exhausting retries.
	// Fatal for the triggering operation; prior commits stand.
	ErrQuery = errors.New("query error")
	// ErrNamingFormat marks an unparseable acquisition filename. The item is
	// skipped with a warning and the run continues.
	ErrNamingFormat = errors.New("naming format error")
	// ErrValidation marks a reconciliation mismatch. Recorded as an
	// invalid/skip decision and reported, never fatal.
	ErrValidation = errors.New("validation mismatch")
	// ErrConfig marks an unreadable or malformed routing config, summary, or
	// conversion log. Fatal for the run.
	ErrConfig = errors.New("configuration error")
	// ErrExternalTool marks a failed collaborator invocation (converter,
	// fetcher, uploader).
	ErrExternalTool = errors.New("external tool error")
	// ErrNotFound marks a record or file that was expected to exist.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes job context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, job, operation, message string, err error) error {
	detail := buildDetail(job, operation, message)
	if marker == nil {
		marker = ErrQuery
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error must abort the whole run rather than just
// the item that triggered it.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrConfig)
}

func buildDetail(job, operation, message string) string {
	parts := make([]string, 0, 3)
	if job = strings.TrimSpace(job); job != "" {
		parts = append(parts, job)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
