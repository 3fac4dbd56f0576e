// Package ingest brings event-shaped records in from external sources:
// CSV exports of the operational workbook, a watched import directory,
// and the case-management feed. Records are validated and inserted by
// the store; ingest only handles transport and shape.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chainsmoker-project/chainsmoker/internal/store"
)

// workbookHeader is the column order of the operational spreadsheet.
// Column positions are used for field mapping, so order matters.
var workbookHeader = []string{
	"Date/Time MPNET",
	"MITRE Tactic",
	"Source Hostname/IP",
	"Target Hostname/IP",
	"Details",
	"Notes",
	"Operator",
	"Attack Chain",
}

// ReadResult contains the outcome of a CSV read.
type ReadResult struct {
	Records []store.EventFields
	Count   int
	Skipped int
}

// ValidateHeader checks that a CSV file carries the workbook header.
// Returns an error describing the mismatch if validation fails.
func ValidateHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(newNullStripper(f))
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	if len(header) < len(workbookHeader) {
		return fmt.Errorf("header too short: got %d columns, expected at least %d", len(header), len(workbookHeader))
	}

	for i, expected := range workbookHeader {
		if strings.TrimSpace(header[i]) != expected {
			return fmt.Errorf("header mismatch at column %d: expected %q, got %q", i, expected, header[i])
		}
	}

	return nil
}

// ReadRecords reads all event records from a workbook CSV export.
// Rows with no tactic at all are skipped here (spacer rows in the
// workbook); everything else passes through to store-level validation.
func ReadRecords(path string) (*ReadResult, error) {
	if err := ValidateHeader(path); err != nil {
		return nil, fmt.Errorf("invalid CSV: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(newNullStripper(f))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // allow variable field counts

	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	result := &ReadResult{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", result.Count+result.Skipped+1, err)
		}

		rec := rowToRecord(row)
		if strings.TrimSpace(rec.Tactic) == "" {
			result.Skipped++
			continue
		}

		result.Records = append(result.Records, rec)
		result.Count++
	}

	return result, nil
}

func rowToRecord(row []string) store.EventFields {
	return store.EventFields{
		Timestamp:  safeIndex(row, 0),
		Tactic:     safeIndex(row, 1),
		SourceHost: safeIndex(row, 2),
		DestHost:   safeIndex(row, 3),
		Details:    safeIndex(row, 4),
		Notes:      safeIndex(row, 5),
		Operator:   safeIndex(row, 6),
		ChainID:    safeIndex(row, 7),
	}
}

func safeIndex(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// nullStripper wraps a reader and strips null bytes from the stream.
// Workbook exports occasionally embed them and they break csv.Reader.
type nullStripper struct {
	r io.Reader
}

func newNullStripper(r io.Reader) io.Reader {
	return &nullStripper{r: r}
}

func (ns *nullStripper) Read(p []byte) (int, error) {
	n, err := ns.r.Read(p)
	if n > 0 {
		cleaned := strings.ReplaceAll(string(p[:n]), "\x00", "")
		copy(p, cleaned)
		n = len(cleaned)
	}
	return n, err
}
