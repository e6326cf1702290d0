package identity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"scanflow/internal/config"
	"scanflow/internal/services"
)

var numericRun = regexp.MustCompile(`[0-9]+`)

// prefixCandidates lists the separator spellings an operator may have used
// around a marker, in order of preference. The last matching candidate
// determines the marker position.
func prefixCandidates(prefix string) [4]string {
	core := strings.Trim(prefix, "-_")
	return [4]string{
		"_" + core + "-",
		"-" + core + "-",
		"_" + core + "_",
		"-" + core + "_",
	}
}

func findMarker(description string, prefix string) (int, bool) {
	index, found := 0, false
	for _, candidate := range prefixCandidates(prefix) {
		if at := strings.Index(description, candidate); at >= 0 {
			index, found = at, true
		}
	}
	return index, found
}

// ExtractSubjectAndSession searches a session description for subject and
// session identifiers and reformats each to its configured shape. A missing
// marker or pattern yields an empty string for that identifier, not an error.
func ExtractSubjectAndSession(description string, subjectFormat, sessionFormat config.IdentifierFormat) (subjectID, sessionID string, err error) {
	subjectRe, err := regexp.Compile(subjectFormat.Regex)
	if err != nil {
		return "", "", services.Wrap(
			services.ErrConfig, "identity", "extract identifiers",
			"invalid subject regex "+strconv.Quote(subjectFormat.Regex), err)
	}

	// A leading separator lets a marker match at the very start of the
	// description.
	description = "_" + description

	subjectAt, subjectFound := findMarker(description, subjectFormat.DesiredPrefix)
	sessionAt, sessionFound := findMarker(description, sessionFormat.DesiredPrefix)

	var subjectCandidate, sessionCandidate string
	switch {
	case subjectFound && sessionFound && sessionAt > subjectAt:
		subjectCandidate = description[subjectAt+1 : sessionAt]
		sessionCandidate = description[sessionAt+1:]
	case subjectFound && sessionFound:
		sessionCandidate = description[sessionAt+1 : subjectAt]
		subjectCandidate = description[subjectAt+1:]
	case sessionFound:
		subjectCandidate = description[:sessionAt]
		sessionCandidate = description[sessionAt+1:]
	default:
		// Subject marker only, or no marker at all: scan the whole
		// description for a subject and give up on the session.
		subjectCandidate = description
	}

	if match := subjectRe.FindString(subjectCandidate); match != "" {
		id := strings.ToUpper(match)
		if digits := numericRun.FindString(id); digits != "" {
			n, convErr := strconv.Atoi(digits)
			if convErr == nil {
				id = fmt.Sprintf("%s%0*d", subjectFormat.DesiredStart, subjectFormat.DesiredDigits, n)
			}
		}
		subjectID = subjectFormat.DesiredPrefix + id
	}

	if digits := numericRun.FindString(sessionCandidate); digits != "" {
		n, convErr := strconv.Atoi(digits)
		if convErr == nil {
			sessionID = fmt.Sprintf("%s%0*d", sessionFormat.DesiredPrefix, sessionFormat.DesiredDigits, n)
		}
	}
	return subjectID, sessionID, nil
}
