package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	setCell := func(sheet, cell string, value any) {
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			t.Fatalf("set cell %s!%s: %v", sheet, cell, err)
		}
	}
	setCell("Sheet1", "A1", "name")
	setCell("Sheet1", "B1", "amount")
	setCell("Sheet1", "A2", "widget")
	setCell("Sheet1", "B2", 42)

	if _, err := f.NewSheet("Totals"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	setCell("Totals", "A1", "total")
	setCell("Totals", "B1", 42)

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestExcelParser_RendersSheets(t *testing.T) {
	t.Parallel()

	p := NewExcelParser()
	res, err := p.Parse(context.Background(), "books.xlsx", buildWorkbook(t))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}

	for _, want := range []string{
		"=== Sheet: Sheet1 ===",
		"name\tamount",
		"widget\t42",
		"=== Sheet: Totals ===",
		"total\t42",
	} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("Text missing %q:\n%s", want, res.Text)
		}
	}
	if res.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", res.PageCount)
	}
}

func TestExcelParser_RejectsGarbage(t *testing.T) {
	t.Parallel()

	p := NewExcelParser()
	if _, err := p.Parse(context.Background(), "broken.xlsx", []byte("not a workbook")); err == nil {
		t.Fatal("Parse() accepted non-xlsx bytes")
	}
}
