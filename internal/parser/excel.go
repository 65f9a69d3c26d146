package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelParser extracts cell text from spreadsheets, one section per
// sheet with rows rendered as tab-separated lines.
type ExcelParser struct{}

// NewExcelParser creates a spreadsheet parser.
func NewExcelParser() *ExcelParser {
	return &ExcelParser{}
}

func (*ExcelParser) Supports(ext string) bool {
	return ext == ".xlsx" || ext == ".xls"
}

func (*ExcelParser) Parse(_ context.Context, filename string, data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet %s: %w", filename, err)
	}
	defer f.Close()

	var b strings.Builder
	sheets := f.GetSheetList()
	for i, sheet := range sheets {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== Sheet: %s ===\n", sheet)

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q in %s: %w", sheet, filename, err)
		}
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	// One page per sheet.
	return &Result{
		Text:      strings.TrimSpace(b.String()),
		PageCount: len(sheets),
	}, nil
}
