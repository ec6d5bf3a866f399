package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// ============================================================================
// CSV Tests
// ============================================================================

func TestParseCSV_FindsHeaderBelowTitle(t *testing.T) {
	data := "\xef\xbb\xbfWidget export\nGenerated 2026-04-01\n\nCode,Label\na,one\nb,two\n"

	ex, err := ParseCSV("widgets.csv", strings.NewReader(data), widgetDef)
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}

	if ex.Name != "widgets.csv" {
		t.Errorf("Name = %q, want widgets.csv", ex.Name)
	}
	if len(ex.Header) != 2 || ex.Header[0] != "Code" {
		t.Errorf("Header = %v, want [Code Label]", ex.Header)
	}
	if len(ex.Rows) != 2 {
		t.Errorf("Rows = %d, want 2", len(ex.Rows))
	}
}

func TestParseCSV_RaggedRows(t *testing.T) {
	data := "Code,Label,Count\na,one\nb,two,3,extra\n"

	ex, err := ParseCSV("widgets.csv", strings.NewReader(data), widgetDef)
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}

	b, err := BuildBatch(widgetDef, ex)
	if err != nil {
		t.Fatalf("BuildBatch() error = %v", err)
	}
	if len(b.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(b.Rows))
	}
}

func TestParseCSV_EmptyFile(t *testing.T) {
	ex, err := ParseCSV("empty.csv", strings.NewReader(""), widgetDef)
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(ex.Header) != 0 || len(ex.Rows) != 0 {
		t.Errorf("expected empty extract, got %+v", ex)
	}
}

func TestParseCSV_HeaderNotFound(t *testing.T) {
	_, err := ParseCSV("widgets.csv", strings.NewReader("Name,Label\nx,y\n"), widgetDef)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "header row not found") {
		t.Errorf("error = %q, want header row not found", err)
	}
}

// ============================================================================
// XLSX Tests
// ============================================================================

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "widgets.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

func TestReadExtract_XLSX(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Widget export"},
		{"Code", "Label", "Count"},
		{"a", "one", 5},
		{"b", "two", 7},
	})

	ex, err := ReadExtract(path, widgetDef)
	if err != nil {
		t.Fatalf("ReadExtract() error = %v", err)
	}
	if ex.Name != "widgets.xlsx" {
		t.Errorf("Name = %q", ex.Name)
	}

	b, err := BuildBatch(widgetDef, ex)
	if err != nil {
		t.Fatalf("BuildBatch() error = %v", err)
	}
	if len(b.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(b.Rows))
	}
	if got := rowValues(b, 1); got["code"] != "B" || got["count"] != "7" {
		t.Errorf("row 1 = %v", got)
	}
}

func TestReadExtract_CSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.CSV")
	if err := os.WriteFile(path, []byte("Code,Label\na,one\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ex, err := ReadExtract(path, widgetDef)
	if err != nil {
		t.Fatalf("ReadExtract() error = %v", err)
	}
	if len(ex.Rows) != 1 {
		t.Errorf("Rows = %d, want 1", len(ex.Rows))
	}
}

func TestReadExtract_Errors(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "widgets.pdf")
	if err := os.WriteFile(pdf, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadExtract(pdf, widgetDef); err == nil || !strings.Contains(err.Error(), "unsupported extract format") {
		t.Errorf("pdf: error = %v, want unsupported extract format", err)
	}
	if _, err := ReadExtract(filepath.Join(dir, "missing.csv"), widgetDef); err == nil {
		t.Error("missing file: expected error")
	}
}

// ============================================================================
// Registry Tests
// ============================================================================

func TestRegister_RejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  TableDefinition
	}{
		{"no table", TableDefinition{Info: TableInfo{Key: "bad_no_table", UniqueKey: []string{"code"}}}},
		{"no key", TableDefinition{Info: TableInfo{Key: "bad_no_key", Table: "t"}}},
		{
			"optional key column",
			TableDefinition{
				Info:       TableInfo{Key: "bad_optional_key", Table: "t", UniqueKey: []string{"code"}},
				FieldSpecs: []FieldSpec{{Name: "Code"}},
			},
		},
		{
			"bookkeeping column",
			TableDefinition{
				Info:       TableInfo{Key: "bad_bookkeeping", Table: "t", UniqueKey: []string{"code"}},
				FieldSpecs: []FieldSpec{{Name: "Code", Required: true}, {Name: "Created_Date", Type: FieldDate}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			Register(tt.def)
		})
	}
}

func TestRegister_DefaultsAndDuplicates(t *testing.T) {
	def := TableDefinition{
		Info:       TableInfo{Key: "registry_test_widgets", Table: "test.widgets", UniqueKey: []string{"code"}},
		FieldSpecs: []FieldSpec{{Name: "Code", Required: true}},
	}
	Register(def)

	got, ok := Get("registry_test_widgets")
	if !ok {
		t.Fatal("dataset not registered")
	}
	if got.Info.SourceSystem != "CSV - registry_test_widgets" {
		t.Errorf("SourceSystem = %q", got.Info.SourceSystem)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate key")
		}
	}()
	Register(def)
}
