package identity_test

import (
	"errors"
	"strings"
	"testing"

	"scanflow/internal/config"
	"scanflow/internal/identity"
	"scanflow/internal/services"
)

func subjectFormat() config.IdentifierFormat {
	return config.IdentifierFormat{
		Regex:         "[mM][0-9][0-9]+",
		DesiredPrefix: "sub-",
		DesiredStart:  "M",
		DesiredDigits: 3,
	}
}

func sessionFormat() config.IdentifierFormat {
	return config.IdentifierFormat{
		DesiredPrefix: "ses-",
		DesiredDigits: 2,
	}
}

func TestParseFilename(t *testing.T) {
	parsed, err := identity.ParseFilename("20240115_143000_M012-ses-02_anatomical.zip")
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	if parsed.Date != "2024/01/15" {
		t.Fatalf("date = %q", parsed.Date)
	}
	if parsed.Time != "14:30:00" {
		t.Fatalf("time = %q", parsed.Time)
	}
	if parsed.Description != "M012-ses-02_anatomical" {
		t.Fatalf("description = %q", parsed.Description)
	}
	if parsed.Timestamp == nil {
		t.Fatal("expected timestamp")
	}
	if got := parsed.Timestamp.Format("2006-01-02 15:04:05"); got != "2024-01-15 14:30:00" {
		t.Fatalf("timestamp = %s", got)
	}
}

func TestParseFilenameOddSegmentWidths(t *testing.T) {
	parsed, err := identity.ParseFilename("2024_1430_pilot_run")
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	if parsed.Date != "" || parsed.Time != "" {
		t.Fatalf("malformed segments must yield empty date/time, got %q %q", parsed.Date, parsed.Time)
	}
	if parsed.Timestamp != nil {
		t.Fatal("expected nil timestamp")
	}
	if parsed.Description != "pilot_run" {
		t.Fatalf("description = %q", parsed.Description)
	}
}

func TestParseFilenameTooFewSegments(t *testing.T) {
	_, err := identity.ParseFilename("20240115_143000")
	if err == nil {
		t.Fatal("expected naming format error")
	}
	if !errors.Is(err, services.ErrNamingFormat) {
		t.Fatalf("expected ErrNamingFormat, got %v", err)
	}
}

func TestExtractSubjectAndSession(t *testing.T) {
	tests := []struct {
		name        string
		description string
		wantSubject string
		wantSession string
	}{
		{"canonical", "M012-ses-02_anatomical", "sub-M012", "ses-02"},
		{"underscore typos", "M012_ses_2_anatomical", "sub-M012", "ses-02"},
		{"session before subject", "ses-02_sub-M012_anatomical", "sub-M012", "ses-02"},
		{"subject only", "M012_anatomical", "sub-M012", ""},
		{"lowercase subject", "m07-ses-1", "sub-M007", "ses-01"},
		{"no identifiers", "pilot_phantom_scan", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			subject, session, err := identity.ExtractSubjectAndSession(tc.description, subjectFormat(), sessionFormat())
			if err != nil {
				t.Fatalf("ExtractSubjectAndSession: %v", err)
			}
			if subject != tc.wantSubject {
				t.Fatalf("subject = %q, want %q", subject, tc.wantSubject)
			}
			if session != tc.wantSession {
				t.Fatalf("session = %q, want %q", session, tc.wantSession)
			}
		})
	}
}

func TestExtractRejectsInvalidRegex(t *testing.T) {
	bad := subjectFormat()
	bad.Regex = "["
	_, _, err := identity.ExtractSubjectAndSession("M012", bad, sessionFormat())
	if !errors.Is(err, services.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantOK  bool
		wantAlt string
	}{
		{"valid", "M007", true, "M007"},
		{"too few digits", "M07", false, "M007"},
		{"too many digits", "M0077", false, "M007"},
		{"surrounded", "xM007y", false, "M007"},
		{"pattern absent with digits", "subject 12", false, "M012"},
		{"no digits at all", "phantom", false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, alt := identity.ValidateIdentifier(tc.id, "", "M", 3)
			if ok != tc.wantOK || alt != tc.wantAlt {
				t.Fatalf("ValidateIdentifier(%q) = (%v, %q), want (%v, %q)",
					tc.id, ok, alt, tc.wantOK, tc.wantAlt)
			}
		})
	}
}

func TestValidateIdentifierRoundTrip(t *testing.T) {
	for n := 1; n < 1000; n += 37 {
		id := identity.FormatID("", "M", 3, n)
		ok, alt := identity.ValidateIdentifier(id, "", "M", 3)
		if !ok || alt != id {
			t.Fatalf("round trip broken for %q: (%v, %q)", id, ok, alt)
		}
	}
}

func TestFormatSessionID(t *testing.T) {
	if got := identity.FormatSessionID("ses-", 2, 3); got != "ses-03" {
		t.Fatalf("FormatSessionID = %q", got)
	}
}

func TestGenerateDeidentifiedID(t *testing.T) {
	id, err := identity.GenerateDeidentifiedID(nil, "D", 3)
	if err != nil {
		t.Fatalf("GenerateDeidentifiedID: %v", err)
	}
	if !strings.HasPrefix(id, "D") || len(id) != 4 {
		t.Fatalf("unexpected id %q", id)
	}
	if id[1] == '0' {
		t.Fatalf("numeric part must not start with zero: %q", id)
	}

	var used []string
	for n := 1; n <= 9; n++ {
		used = append(used, identity.FormatSessionID("D", 1, n))
	}
	if _, err := identity.GenerateDeidentifiedID(used, "D", 1); err == nil {
		t.Fatal("expected exhaustion error when every identifier is taken")
	}
}
