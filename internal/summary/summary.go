// Package summary parses the per-acquisition summary documents produced by
// the upstream scanner console. A summary is line oriented and sectioned:
// a free-form header, a delimiter line of dashes, one row per recorded
// series, another delimiter, and a totals row.
package summary

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"scanflow/internal/services"
)

// SeriesEntry is one recorded series row.
type SeriesEntry struct {
	SeriesNumber int
	// Date is formatted YYYY/MM/DD, empty when the raw column is not
	// eight characters.
	Date string
	// Time is the raw HH:MM:SS.fff column, empty when not twelve
	// characters.
	Time string
	// Timestamp combines Date and Time; nil when either is missing.
	Timestamp *time.Time
	FileCount int
	// Description is the first description token of the row.
	Description string
}

// Totals is the session-level totals row.
type Totals struct {
	SeriesCount int
	Date        string
	Duration    string
	TotalFiles  int
}

// Summary is a fully parsed summary document.
type Summary struct {
	Series []SeriesEntry
	Totals Totals
}

// EntryForSeries returns every row recorded for the series number.
func (s *Summary) EntryForSeries(number int) []SeriesEntry {
	var matches []SeriesEntry
	for _, entry := range s.Series {
		if entry.SeriesNumber == number {
			matches = append(matches, entry)
		}
	}
	return matches
}

// MaxSeriesNumber returns the highest recorded series number, zero when the
// document lists no series.
func (s *Summary) MaxSeriesNumber() int {
	max := 0
	for _, entry := range s.Series {
		if entry.SeriesNumber > max {
			max = entry.SeriesNumber
		}
	}
	return max
}

const timestampLayout = "2006/01/02 15:04:05.000"

// ParseFile reads and parses a summary document. Missing or malformed
// documents are fatal for the run.
func ParseFile(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(
			services.ErrConfig, "summary", "parse",
			"unable to open summary "+path, err)
	}
	defer f.Close()
	parsed, err := Parse(f)
	if err != nil {
		return nil, services.Wrap(
			services.ErrConfig, "summary", "parse",
			"malformed summary "+path, err)
	}
	return parsed, nil
}

type section int

const (
	sectionHeader section = iota
	sectionSeries
	sectionTotals
)

// Parse parses a summary document from a reader.
func Parse(r io.Reader) (*Summary, error) {
	parsed := &Summary{}
	current := sectionHeader

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		delimiter := strings.HasPrefix(strings.TrimLeft(line, " \t"), "-----")

		switch current {
		case sectionHeader:
			if delimiter {
				current = sectionSeries
			}
		case sectionSeries:
			if delimiter {
				current = sectionTotals
				continue
			}
			entry, err := parseSeriesRow(line)
			if err != nil {
				return nil, err
			}
			parsed.Series = append(parsed.Series, entry)
		case sectionTotals:
			totals, err := parseTotalsRow(line)
			if err != nil {
				return nil, err
			}
			parsed.Totals = totals
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return parsed, nil
}

func parseSeriesRow(line string) (SeriesEntry, error) {
	columns := strings.Fields(line)
	if len(columns) < 5 {
		return SeriesEntry{}, fmt.Errorf("series row has %d columns, expected at least 5", len(columns))
	}

	seriesNumber, err := strconv.Atoi(columns[0])
	if err != nil {
		return SeriesEntry{}, fmt.Errorf("invalid series number %q", columns[0])
	}
	fileCount, err := strconv.Atoi(columns[3])
	if err != nil {
		return SeriesEntry{}, fmt.Errorf("invalid file count %q", columns[3])
	}

	entry := SeriesEntry{
		SeriesNumber: seriesNumber,
		FileCount:    fileCount,
		Description:  columns[4],
	}
	if raw := columns[1]; len(raw) == 8 {
		entry.Date = raw[:4] + "/" + raw[4:6] + "/" + raw[6:8]
	}
	if raw := columns[2]; len(raw) == 12 {
		entry.Time = raw
	}
	if entry.Date != "" && entry.Time != "" {
		ts, err := time.Parse(timestampLayout, entry.Date+" "+entry.Time)
		if err != nil {
			return SeriesEntry{}, fmt.Errorf("invalid series timestamp %q %q", entry.Date, entry.Time)
		}
		entry.Timestamp = &ts
	}
	return entry, nil
}

func parseTotalsRow(line string) (Totals, error) {
	columns := strings.Fields(line)
	if len(columns) < 4 {
		return Totals{}, fmt.Errorf("totals row has %d columns, expected at least 4", len(columns))
	}

	seriesCount, err := strconv.Atoi(columns[0])
	if err != nil {
		return Totals{}, fmt.Errorf("invalid series count %q", columns[0])
	}
	totalFiles, err := strconv.Atoi(columns[3])
	if err != nil {
		return Totals{}, fmt.Errorf("invalid total file count %q", columns[3])
	}

	totals := Totals{SeriesCount: seriesCount, TotalFiles: totalFiles}
	if raw := columns[1]; len(raw) == 8 {
		totals.Date = raw[:4] + "/" + raw[4:6] + "/" + raw[6:8]
	}
	if raw := columns[2]; len(raw) == 12 {
		totals.Duration = raw
	}
	return totals, nil
}
