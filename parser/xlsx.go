package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser renders each sheet as a pipe table, one row per line, so the
// sentence splitter keeps rows apart. Blank rows and trailing empty cells
// are dropped.
type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	res := &ParseResult{Pages: len(sheets)}
	for i, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table, err := sheetTable(f, sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		if table == "" {
			continue
		}
		res.Sections = append(res.Sections, Section{Heading: sheet, Content: table, Page: i + 1})
	}
	if len(res.Sections) == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}
	return res, nil
}

func sheetTable(f *excelize.File, sheet string) (string, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return "", err
		}
		for len(cols) > 0 && strings.TrimSpace(cols[len(cols)-1]) == "" {
			cols = cols[:len(cols)-1]
		}
		if len(cols) == 0 {
			continue
		}
		b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	}
	return b.String(), rows.Error()
}
