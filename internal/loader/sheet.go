package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// XLSXLoader reads Office Open XML workbooks, one section per sheet.
type XLSXLoader struct{}

// XLSLoader reads legacy BIFF workbooks, one section per sheet.
type XLSLoader struct{}

// Extract implements Loader.
func (XLSXLoader) Extract(ctx context.Context, path string) (*Extraction, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	var sections []Section
	for _, name := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		sections = appendSheet(sections, name, rows)
	}

	return &Extraction{Text: joinSections(sections), Sections: sections}, nil
}

// Extract implements Loader.
func (XLSLoader) Extract(ctx context.Context, path string) (*Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	defer f.Close()

	wb, err := xls.OpenReader(f, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	if wb == nil {
		return nil, fmt.Errorf("open xls: no workbook stream")
	}

	var sections []Section
	for i := 0; i < wb.NumSheets(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}

		var rows [][]string
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := row.FirstCol(); c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		sections = appendSheet(sections, sheet.Name, rows)
	}

	return &Extraction{Text: joinSections(sections), Sections: sections}, nil
}

// appendSheet renders rows as tab-separated lines, dropping empty rows and
// trailing empty cells.
func appendSheet(sections []Section, name string, rows [][]string) []Section {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		end := len(row)
		for end > 0 && strings.TrimSpace(row[end-1]) == "" {
			end--
		}
		if end == 0 {
			continue
		}
		cells := make([]string, end)
		for i := 0; i < end; i++ {
			cells[i] = strings.TrimSpace(row[i])
		}
		lines = append(lines, strings.Join(cells, "\t"))
	}
	if len(lines) == 0 {
		return sections
	}
	return append(sections, Section{Kind: SectionSheet, Title: name, Text: strings.Join(lines, "\n")})
}
