package parcel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
)

var ErrUnknownJurisdiction = errors.New("unknown jurisdiction")

type Jurisdiction int

const (
	Unknown Jurisdiction = iota
	Charleston
	Berkeley
)

func (j Jurisdiction) String() string {
	switch j {
	case Charleston:
		return "charleston"
	case Berkeley:
		return "berkeley"
	}
	return "unknown"
}

// ParseJurisdiction maps a county tag such as " Charleston " to its Jurisdiction.
func ParseJurisdiction(tag string) (Jurisdiction, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "charleston":
		return Charleston, nil
	case "berkeley":
		return Berkeley, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownJurisdiction, tag)
}

// Request asks for the records of one parcel.
type Request struct {
	// ID is the parcel identifier as given, separators included. It also names the
	// parcel's output directory.
	ID           string
	Jurisdiction Jurisdiction
	// Tag is the raw jurisdiction column, kept for logging unknown tags.
	Tag string
}

// SearchID is the identifier as typed into portal search forms: separators removed.
func (r Request) SearchID() string {
	return strings.Map(func(c rune) rune {
		if c == '-' || c == '.' || unicode.IsSpace(c) {
			return -1
		}
		return c
	}, r.ID)
}

// Read reads parcel requests from a spreadsheet, picking the format by the extension of
// name: .xlsx and .xlsm workbooks, anything else as CSV.
func Read(name string, r io.Reader) ([]Request, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(r)
	}
	return ReadCSV(r)
}

// ReadCSV reads parcel requests from rows with a "TMS" and a "County" column. Without a
// header row the first two columns are used. Rows with a blank identifier are dropped;
// rows with an unknown county are kept with Jurisdiction Unknown.
func ReadCSV(r io.Reader) ([]Request, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read parcels: %w", err)
	}
	return fromRows(rows)
}

// ReadXLSX reads parcel requests from the first sheet of a workbook, with the same
// columns as ReadCSV.
func ReadXLSX(r io.Reader) ([]Request, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("read parcels: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read parcels from sheet %q: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) ([]Request, error) {
	idCol, tagCol := 0, 1
	var reqs []Request
	for i, rec := range rows {
		line := i + 1
		if blank(rec) {
			continue
		}
		if i == 0 {
			if id, tag, ok := header(rec); ok {
				idCol, tagCol = id, tag
				continue
			}
		}
		if len(rec) <= idCol || len(rec) <= tagCol {
			return nil, fmt.Errorf("read parcels: line %d has %d columns", line, len(rec))
		}

		id := strings.TrimSpace(rec[idCol])
		if id == "" {
			continue
		}
		tag := rec[tagCol]
		j, _ := ParseJurisdiction(tag)
		reqs = append(reqs, Request{ID: id, Jurisdiction: j, Tag: strings.TrimSpace(tag)})
	}
	return reqs, nil
}

func blank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func header(rec []string) (idCol, tagCol int, ok bool) {
	idCol, tagCol = -1, -1
	for i, name := range rec {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "tms", "parcel", "parcel_id":
			idCol = i
		case "county", "jurisdiction":
			tagCol = i
		}
	}
	return idCol, tagCol, idCol >= 0 && tagCol >= 0
}
