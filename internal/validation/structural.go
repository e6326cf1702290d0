package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"scanflow/internal/conversion"
	"scanflow/internal/services"
	"scanflow/internal/store"
)

// seriesCheck accumulates the structural validation outcome for one series.
type seriesCheck struct {
	series      *store.Series
	number      int
	description string
	fileCount   int
	entries     []conversion.LogEntry

	valid bool
	skip  bool

	criteria map[string]any
	tuple    conversion.Fingerprint
	inConfig bool
	checked  bool

	duplicates []int
}

// ValidateStructure runs the structural pass for one session: it reconciles
// the converter log against the recorded series, verifies every output file
// and sidecar exists, extracts metadata fingerprints, flags unrecognized and
// duplicate acquisitions, and persists the outcome. Mismatches go to the
// report; unreadable inputs return an error.
func (e *Engine) ValidateStructure(ctx context.Context, session *store.Session, report *Report) error {
	name := sessionName(session.DataFile)
	logger := e.logger.With("session", name)

	dbSeries, err := e.store.SeriesForSession(ctx, session.ID)
	if err != nil {
		return err
	}
	if len(dbSeries) == 0 {
		return services.Wrap(
			services.ErrValidation, "validation", "structural pass",
			"no series recorded for session "+name, nil)
	}

	entries, err := conversion.ParseLog(e.conversionLogPath(session), logger)
	if err != nil {
		return err
	}

	maxSeries := 0
	for _, entry := range entries {
		if entry.SeriesNumber > maxSeries {
			maxSeries = entry.SeriesNumber
		}
	}
	for _, sr := range dbSeries {
		if sr.SeriesNumber > maxSeries {
			maxSeries = sr.SeriesNumber
		}
	}

	byNumber := make(map[int]*store.Series, len(dbSeries))
	for _, sr := range dbSeries {
		byNumber[sr.SeriesNumber] = sr
	}

	var checks []*seriesCheck
	for number := 1; number <= maxSeries; number++ {
		var matching []conversion.LogEntry
		for _, entry := range entries {
			if entry.SeriesNumber == number {
				matching = append(matching, entry)
			}
		}
		// A series split across multiple output files can come out of
		// order in the log.
		sort.Slice(matching, func(i, j int) bool {
			return matching[i].File < matching[j].File
		})

		if len(matching) == 0 {
			report.Add(name, number, "no matching series found in converted files")
			continue
		}
		sr := byNumber[number]
		if sr == nil {
			report.Add(name, number, "no matching series found in database")
			continue
		}

		fileCount := 0
		for _, entry := range matching {
			fileCount += entry.FileCount
		}

		valid := true
		for _, entry := range matching {
			nifti := e.outputPath(session, number, entry.File+".nii.gz")
			sidecar := e.outputPath(session, number, entry.File+".json")
			if !fileExists(nifti) || !fileExists(sidecar) {
				valid = false
			}
		}
		if !valid {
			report.Add(name, number, "could not find all converted files")
		}

		checks = append(checks, &seriesCheck{
			series:      sr,
			number:      number,
			description: sr.Description,
			fileCount:   fileCount,
			entries:     matching,
			valid:       valid,
			skip:        !valid,
		})
	}

	if len(checks) != maxSeries {
		report.Add(name, 0, "could not find matching files for some series")
	}

	if err := e.extractFingerprints(session, checks); err != nil {
		return err
	}
	e.flagDuplicates(checks)

	now := e.now()
	allValid := true
	for _, check := range checks {
		update := store.SeriesUpdate{
			Description:    store.Ptr(check.description),
			FileCount:      store.Ptr(check.fileCount),
			ValidatedAt:    store.Ptr(now),
			Valid:          store.Ptr(check.valid),
			SkipProcessing: store.Ptr(check.skip),
		}
		if check.checked {
			update.CriteriaInConfig = store.Ptr(check.inConfig)
		}
		if len(check.criteria) > 0 {
			raw, err := json.Marshal(check.criteria)
			if err != nil {
				return fmt.Errorf("encode routing criteria for series %d: %w", check.number, err)
			}
			update.RoutingCriteria = store.Ptr(string(raw))
		}
		if len(check.duplicates) > 0 {
			raw, err := json.Marshal(check.duplicates)
			if err != nil {
				return fmt.Errorf("encode duplicate set for series %d: %w", check.number, err)
			}
			update.DuplicateSeries = store.Ptr(string(raw))
		}
		if err := e.store.UpdateSeries(ctx, check.series.ID, update); err != nil {
			return err
		}
		allValid = allValid && check.valid
	}

	err = e.store.UpdateSession(ctx, session.ID, store.SessionUpdate{
		ConversionValidatedAt: store.Ptr(now),
		ConversionValid:       store.Ptr(allValid),
	})
	if err != nil {
		return err
	}
	if err := e.store.Commit(); err != nil {
		return err
	}
	logger.Info("structural validation complete",
		"series_checked", len(checks), "valid", allValid)
	return nil
}

// extractFingerprints reads the sidecar of each validated series and resolves
// its routing criteria. When a series spans multiple output files they share
// one set of criteria; the lexicographically last sidecar wins.
func (e *Engine) extractFingerprints(session *store.Session, checks []*seriesCheck) error {
	for _, check := range checks {
		if !check.valid {
			continue
		}
		entry := check.entries[len(check.entries)-1]
		sidecar, err := conversion.ReadSidecar(e.outputPath(session, check.number, entry.File+".json"))
		if err != nil {
			return err
		}

		check.criteria, check.tuple = conversion.FingerprintFrom(sidecar, e.routing.Keys)
		check.inConfig = e.routing.ContainsCriteria(check.criteria)
		check.checked = true
		if !check.inConfig {
			check.skip = true
		}
		if description := sidecar.Description(); description != "" {
			check.description = description
		}
	}
	return nil
}

// flagDuplicates groups validated series by fingerprint. Every member of a
// group larger than one records the full sibling list; all but the highest
// series number are flagged to be skipped, keeping the most recent repeat.
func (e *Engine) flagDuplicates(checks []*seriesCheck) {
	groups := make(map[string][]*seriesCheck)
	for _, check := range checks {
		if !check.checked {
			continue
		}
		key := check.tuple.Key()
		groups[key] = append(groups[key], check)
	}

	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		numbers := make([]int, 0, len(members))
		highest := 0
		for _, member := range members {
			numbers = append(numbers, member.number)
			if member.number > highest {
				highest = member.number
			}
		}
		sort.Ints(numbers)
		for _, member := range members {
			member.duplicates = numbers
			if member.number != highest {
				member.skip = true
			}
		}
	}
}

func (e *Engine) outputPath(session *store.Session, seriesNumber int, file string) string {
	return filepath.Join(e.niftiDir(session), fmt.Sprintf("%03d", seriesNumber), file)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
