// Package oefeed reads the authoritative order-entry-number list the
// PO-activity step compares against. The feed arrives as a spreadsheet
// exported from the order-entry system, or occasionally as plain CSV.
package oefeed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Read loads the OE number set from an .xlsx or .csv file, keyed by
// extension. Numbers are opaque strings compared by exact match.
func Read(path string) (map[string]struct{}, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readExcel(path)
	case ".csv":
		return readCSV(path)
	}
	return nil, fmt.Errorf("oe feed %s: unsupported format", path)
}

// readExcel takes the first column of the first sheet. A header row is
// skipped when its first cell does not look like an OE number (contains
// no digit).
func readExcel(path string) (map[string]struct{}, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open oe feed: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("oe feed %s: no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	out := make(map[string]struct{})
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		value := strings.TrimSpace(row[0])
		if value == "" {
			continue
		}
		if i == 0 && !strings.ContainsAny(value, "0123456789") {
			continue
		}
		out[value] = struct{}{}
	}
	return out, nil
}

func readCSV(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open oe feed: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	out := make(map[string]struct{})
	first := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read oe feed %s: %w", path, err)
		}
		if len(record) == 0 {
			continue
		}
		value := strings.TrimSpace(record[0])
		if value == "" {
			continue
		}
		if first {
			first = false
			if !strings.ContainsAny(value, "0123456789") {
				continue
			}
		}
		out[value] = struct{}{}
	}
	return out, nil
}
