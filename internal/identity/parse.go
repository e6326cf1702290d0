// Package identity parses acquisition filenames and normalizes the human
// assigned subject and session identifiers they carry. Filenames follow the
// pattern <date>_<time>_<description>; identifiers inside the description are
// frequently mistyped, so extraction tolerates swapped dash/underscore
// separators and reformats whatever numeric run it finds to the configured
// shape.
package identity

import (
	"path/filepath"
	"strings"
	"time"

	"scanflow/internal/services"
)

// ParsedName is the decomposition of an acquisition filename stem.
type ParsedName struct {
	// Name is the stem with the extension removed.
	Name string
	// Date is the recorded date formatted YYYY/MM/DD, empty when the first
	// segment is not eight characters long.
	Date string
	// Time is the recorded time formatted HH:MM:SS, empty when the second
	// segment is not six characters long.
	Time string
	// Timestamp combines Date and Time; nil when either is missing.
	Timestamp *time.Time
	// Description is the free-text remainder of the stem.
	Description string
}

const timestampLayout = "2006/01/02 15:04:05"

// ParseFilename splits a filename stem into its date, time, and description
// segments. It fails with a naming format error when fewer than three
// underscore-delimited segments exist or when a well-sized date/time pair
// does not parse as a timestamp.
func ParseFilename(filename string) (ParsedName, error) {
	stem := filepath.Base(filename)
	if ext := filepath.Ext(stem); ext != "" {
		stem = strings.TrimSuffix(stem, ext)
	}

	segments := strings.SplitN(stem, "_", 3)
	if len(segments) < 3 {
		return ParsedName{}, services.Wrap(
			services.ErrNamingFormat, "identity", "parse filename",
			"expected <date>_<time>_<description> in "+filename, nil)
	}

	parsed := ParsedName{Name: stem, Description: segments[2]}
	if date := segments[0]; len(date) == 8 {
		parsed.Date = date[:4] + "/" + date[4:6] + "/" + date[6:8]
	}
	if clock := segments[1]; len(clock) == 6 {
		parsed.Time = clock[:2] + ":" + clock[2:4] + ":" + clock[4:6]
	}
	if parsed.Date != "" && parsed.Time != "" {
		ts, err := time.Parse(timestampLayout, parsed.Date+" "+parsed.Time)
		if err != nil {
			return ParsedName{}, services.Wrap(
				services.ErrNamingFormat, "identity", "parse filename",
				"non-numeric date or time segment in "+filename, err)
		}
		parsed.Timestamp = &ts
	}
	return parsed, nil
}
