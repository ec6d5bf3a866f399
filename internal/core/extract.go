package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MaxHeaderSearchRows is the maximum number of rows to scan for the header.
// Exports often carry a title block above the real header.
var MaxHeaderSearchRows = 20

// ReadExtract reads a .csv or .xlsx extract for def.
func ReadExtract(path string, def TableDefinition) (Extract, error) {
	f, err := os.Open(path)
	if err != nil {
		return Extract{}, fmt.Errorf("open extract: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		return ParseCSV(name, f, def)
	case ".xlsx", ".xlsm":
		return ParseXLSX(name, f, def)
	default:
		return Extract{}, fmt.Errorf("unsupported extract format %q", ext)
	}
}

// ParseCSV reads a comma-separated extract.
func ParseCSV(name string, r io.Reader, def TableDefinition) (Extract, error) {
	cr := csv.NewReader(NewExtractReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return Extract{}, fmt.Errorf("parse csv %s: %w", name, err)
	}
	return newExtract(name, records, def)
}

// ParseXLSX reads the first worksheet of an Excel workbook.
func ParseXLSX(name string, r io.Reader, def TableDefinition) (Extract, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return Extract{}, fmt.Errorf("open xlsx %s: %w", name, err)
	}
	defer func() { _ = wb.Close() }()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return Extract{}, fmt.Errorf("xlsx %s has no sheets", name)
	}

	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return Extract{}, fmt.Errorf("read rows from xlsx %s: %w", name, err)
	}
	return newExtract(name, rows, def)
}

func newExtract(name string, records [][]string, def TableDefinition) (Extract, error) {
	ex := Extract{Name: name}
	if len(records) == 0 {
		// An empty file is an empty load, not a failure.
		return ex, nil
	}

	var required []string
	for _, spec := range def.FieldSpecs {
		if spec.Required {
			required = append(required, spec.Name)
		}
	}

	at := findHeaderInRecords(records, required)
	if at < 0 {
		return Extract{}, fmt.Errorf("%s: header row not found in first %d rows", name, MaxHeaderSearchRows)
	}

	ex.Header = records[at]
	ex.Rows = records[at+1:]
	return ex, nil
}

// findHeaderInRecords returns the first row, within MaxHeaderSearchRows,
// containing every required column name. Returns -1 if none does.
func findHeaderInRecords(records [][]string, required []string) int {
	maxRows := MaxHeaderSearchRows
	if len(records) < maxRows {
		maxRows = len(records)
	}

	for i := 0; i < maxRows; i++ {
		if isEmptyRow(records[i]) {
			continue
		}
		idx := MakeHeaderIndex(records[i])
		if hasAll(idx, required) {
			return i
		}
	}
	return -1
}

func hasAll(idx HeaderIndex, names []string) bool {
	for _, n := range names {
		if _, ok := idx[strings.ToLower(n)]; !ok {
			return false
		}
	}
	return true
}
