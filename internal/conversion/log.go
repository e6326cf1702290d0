// Package conversion parses the outputs of the DICOM to NIfTI converter: its
// run log, the per-file JSON sidecars, and the routing configuration that
// defines which metadata fingerprints are recognized downstream.
package conversion

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"scanflow/internal/services"
)

// LogEntry describes one converted output file reported by the converter log.
type LogEntry struct {
	SeriesNumber int
	Description  string
	// File is the output file name without extensions.
	File      string
	FileCount int
	// Dimensions is the pixel-dimension tuple printed at the end of the
	// log line, always four values.
	Dimensions []int
}

var (
	convertLine = regexp.MustCompile(`^Convert (\d+) DICOM as `)
)

// ParseLog reads a converter log and returns one entry per converted output
// file. Lines that do not carry a conversion record are ignored; conversion
// lines with a malformed payload are skipped with a warning. An unreadable
// file is fatal.
func ParseLog(path string, logger *slog.Logger) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(
			services.ErrConfig, "conversion", "parse log",
			"unable to open converter log "+path, err)
	}
	defer f.Close()
	return parseLog(f, path, logger)
}

func parseLog(r io.Reader, path string, logger *slog.Logger) ([]LogEntry, error) {
	var entries []LogEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		match := convertLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		fileCount, err := strconv.Atoi(match[1])
		if err != nil {
			logger.Warn("skipping converter log line with bad file count", "line", line)
			continue
		}

		sizeStart := strings.LastIndex(line, "(")
		sizeEnd := strings.LastIndex(line, ")")
		if sizeStart < 0 || sizeEnd < 0 || sizeEnd < sizeStart {
			logger.Warn("skipping converter log line without dimensions", "line", line)
			continue
		}

		outputPath := strings.TrimSpace(line[len(match[0]):sizeStart])
		outputPath = strings.ReplaceAll(outputPath, `\`, "/")
		fileName := outputPath[strings.LastIndex(outputPath, "/")+1:]

		seriesNumber, description, err := ParseConvertedFileName(fileName)
		if err != nil {
			logger.Warn("skipping converter log line with bad output name", "line", line, "error", err)
			continue
		}

		dimensions, err := parseDimensions(line[sizeStart+1 : sizeEnd])
		if err != nil {
			logger.Warn("skipping converter log line with bad dimensions", "line", line, "error", err)
			continue
		}

		entries = append(entries, LogEntry{
			SeriesNumber: seriesNumber,
			Description:  description,
			File:         fileName,
			FileCount:    fileCount,
			Dimensions:   dimensions,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(
			services.ErrConfig, "conversion", "parse log",
			"unable to read converter log "+path, err)
	}
	return entries, nil
}

func parseDimensions(raw string) ([]int, error) {
	parts := strings.Split(raw, "x")
	if len(parts) != 4 {
		return nil, fmt.Errorf("expected 4 dimensions, found %d", len(parts))
	}
	dims := make([]int, len(parts))
	for i, part := range parts {
		val, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		dims[i] = val
	}
	return dims, nil
}

// ParseConvertedFileName splits a converter output name into its series
// number prefix and description. Extensions are stripped repeatedly, but a
// long trailing segment is treated as part of the name since descriptions may
// contain periods.
func ParseConvertedFileName(name string) (int, string, error) {
	name = stripExtensions(name)
	parts := strings.SplitN(name, "_", 2)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("invalid converted file name %q", name)
	}
	seriesNumber, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("invalid series number in converted file name %q", name)
	}
	return seriesNumber, parts[1], nil
}

func stripExtensions(name string) string {
	for {
		ext := filepath.Ext(name)
		if ext == "" {
			return name
		}
		if len(ext) > 8 {
			return name
		}
		name = strings.TrimSuffix(name, ext)
	}
}
