package diagnostic

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cellRef, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "questions.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestImportWorkbook(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"id", "text", "kind", "topic", "style", "weight", "answer", "options"},
		{"mc-1", "What is 1/2 + 1/4?", "multiple_choice", "fractions", "", "2", "",
			"3/4|||true;2/6;1/6"},
		{"open-1", "Solve 2x = 8.", "open_ended", "algebra", "", "", "x = 4", ""},
		{"scale-1", "I learn best by reading.", "scale", "", "reading", "", "", ""},
	})

	b := NewBank()
	result, err := b.ImportWorkbook(path, DefaultImportConfig())
	if err != nil {
		t.Fatalf("ImportWorkbook() error = %v", err)
	}
	if result.Processed != 3 || result.Added != 3 {
		t.Fatalf("result = %+v, want 3 processed and added", result)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("Errors = %v, want none", result.Errors)
	}

	q, ok := b.Get("mc-1")
	if !ok {
		t.Fatal("Get(mc-1) not found")
	}
	if q.Weight != 2 || q.Topic != "fractions" {
		t.Errorf("mc-1 = %+v, want weight 2 on topic fractions", q)
	}
	if len(q.Options) != 3 || !q.Options[0].Correct || q.Options[0].Text != "3/4" {
		t.Errorf("mc-1 options = %+v, want 3 parsed options with the first correct", q.Options)
	}

	if q, _ := b.Get("open-1"); q.Answer != "x = 4" {
		t.Errorf("open-1 answer = %q, want 'x = 4'", q.Answer)
	}
}

func TestImportWorkbookCollectsRowErrors(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"id", "text", "kind", "topic", "style", "weight", "answer", "options"},
		{"bad-weight", "q", "scale", "", "visual", "heavy", "", ""},
		{"bad-kind", "q", "essay", "", "", "", "", ""},
		{"good", "q", "scale", "", "visual", "1", "", ""},
	})

	b := NewBank()
	result, err := b.ImportWorkbook(path, DefaultImportConfig())
	if err != nil {
		t.Fatalf("ImportWorkbook() error = %v", err)
	}
	if result.Processed != 3 || result.Added != 1 {
		t.Errorf("result = %+v, want 3 processed, 1 added", result)
	}
	if len(result.Errors) != 2 {
		t.Errorf("Errors = %v, want 2 collected", result.Errors)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want only the valid row", b.Len())
	}
}

func TestImportWorkbookMissingSheet(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{{"id"}})
	b := NewBank()
	if _, err := b.ImportWorkbook(path, ImportConfig{SheetName: "NoSuchSheet"}); err == nil {
		t.Fatal("ImportWorkbook() error = nil, want missing sheet failure")
	}
}
