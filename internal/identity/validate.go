package identity

import (
	"fmt"
	"regexp"
	"strconv"
)

// ValidateIdentifier checks that id is exactly prefix+start followed by the
// configured number of numerals, with nothing before or after. When the id is
// invalid it proposes the closest well-formed alternative: a re-padded or
// truncated numeral run when the pattern is present, a reformatted id built
// from any stray numeral run otherwise, or an empty string when no numerals
// exist at all.
func ValidateIdentifier(id, prefix, start string, digits int) (bool, string) {
	pattern := regexp.MustCompile(regexp.QuoteMeta(prefix+start) + `\d+`)

	match := pattern.FindStringIndex(id)
	if match == nil {
		if run := numericRun.FindString(id); run != "" {
			if len(run) > digits {
				return false, prefix + start + run[:digits]
			}
			n, _ := strconv.Atoi(run)
			return false, FormatID(prefix, start, digits, n)
		}
		return false, ""
	}

	extracted := id[match[0]:match[1]]
	valid := match[0] == 0 && match[1] == len(id)
	alternative := extracted

	run := numericRun.FindString(extracted)
	switch {
	case len(run) < digits:
		n, _ := strconv.Atoi(run)
		return false, FormatID(prefix, start, digits, n)
	case len(run) > digits:
		return false, prefix + start + run[:digits]
	}
	return valid, alternative
}

// FormatID builds a canonical identifier from its numeric part.
func FormatID(prefix, start string, digits, n int) string {
	return fmt.Sprintf("%s%s%0*d", prefix, start, digits, n)
}

// FormatSessionID builds a canonical session code from its sequence number.
func FormatSessionID(prefix string, digits, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, digits, n)
}
