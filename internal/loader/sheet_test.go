package loader

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestXLSXLoader_SheetsBecomeSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Item"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Cost"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Laptop"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 1200))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Notes", "A3", "Approved by finance"))
	_, err = f.NewSheet("Empty")
	require.NoError(t, err)
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	doc := NewDispatcher().Load(context.Background(), path)

	require.True(t, doc.OK(), doc.ErrorDetail)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, SectionSheet, doc.Sections[0].Kind)
	assert.Equal(t, "Sheet1", doc.Sections[0].Title)
	assert.Equal(t, "Item\tCost\nLaptop\t1200", doc.Sections[0].Text)
	assert.Equal(t, "Notes", doc.Sections[1].Title)
	assert.Equal(t, "Approved by finance", doc.Sections[1].Text)
}

func TestXLSLoader_CorruptFileFails(t *testing.T) {
	path := writeFile(t, t.TempDir(), "legacy.xls", "definitely not BIFF")

	doc := NewDispatcher().Load(context.Background(), path)

	assert.Equal(t, StatusFailed, doc.Status)
	assert.NotEmpty(t, doc.ErrorDetail)
}

func TestAppendSheet_DropsEmptyRowsAndTrailingCells(t *testing.T) {
	rows := [][]string{
		{"a", "b", "", " "},
		{"", ""},
		{"", "c"},
	}

	sections := appendSheet(nil, "S", rows)

	require.Len(t, sections, 1)
	assert.Equal(t, "a\tb\n\tc", sections[0].Text)
	assert.Empty(t, appendSheet(nil, "Empty", [][]string{{""}}))
}
