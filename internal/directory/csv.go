package directory

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// rosterHeader is the expected header row of an uploaded roster file.
var rosterHeader = []string{"name", "number", "class"}

// ParseRosterCSV reads an uploaded roster file into RosterRows suitable for
// ReplaceRoster. The file must carry a "name,number,class" header; column
// order is fixed. Field-level validation (missing or duplicate identifiers)
// is left to ReplaceRoster.
func ParseRosterCSV(r io.Reader) ([]RosterRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &ValidationError{Reason: "roster file is empty"}
	}
	if err != nil {
		return nil, fmt.Errorf("read roster header: %w", err)
	}
	if err := checkRosterHeader(header); err != nil {
		return nil, err
	}

	var rows []RosterRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster row %d: %w", len(rows)+2, err)
		}
		if len(record) != len(rosterHeader) {
			return nil, &ValidationError{Row: len(rows) + 1, Reason: fmt.Sprintf("expected %d columns, got %d", len(rosterHeader), len(record))}
		}
		rows = append(rows, RosterRow{
			Name:       record[0],
			Identifier: record[1],
			GroupTag:   record[2],
		})
	}
	return rows, nil
}

// ParseAllowListCSV reads an uploaded allow-list file: one identifier per
// line, first column only, no header. Blank lines are skipped.
func ParseAllowListCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var identifiers []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read allow list row %d: %w", len(identifiers)+1, err)
		}
		if len(record) == 0 {
			continue
		}
		if id := strings.TrimSpace(record[0]); id != "" {
			identifiers = append(identifiers, id)
		}
	}
	return identifiers, nil
}

func checkRosterHeader(header []string) error {
	if len(header) != len(rosterHeader) {
		return &ValidationError{Reason: fmt.Sprintf("expected header %q, got %d columns", strings.Join(rosterHeader, ","), len(header))}
	}
	for i, want := range rosterHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return &ValidationError{Reason: fmt.Sprintf("expected header column %d to be %q, got %q", i+1, want, header[i])}
		}
	}
	return nil
}
