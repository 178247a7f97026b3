package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Excel refuses sheet names longer than 31 characters or containing
// any of the reserved punctuation below.
const maxSheetNameLen = 31

var sheetNameSanitizer = strings.NewReplacer(
	":", " ", "\\", " ", "/", " ", "?", " ", "*", " ", "[", " ", "]", " ",
)

// XLSXExporter renders an allocation dataset plus per-hall seat grids
// into a single workbook.
type XLSXExporter struct {
	gridColumns int
}

// NewXLSXExporter constructs an exporter laying hall grids out with the
// provided fixed column count.
func NewXLSXExporter(gridColumns int) *XLSXExporter {
	if gridColumns <= 0 {
		gridColumns = 5
	}
	return &XLSXExporter{gridColumns: gridColumns}
}

// Render writes the flat assignment table to the first sheet and one
// grid sheet per hall, in the order given.
func (e *XLSXExporter) Render(data Dataset, grids []Grid) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	sheet := f.GetSheetName(0)
	if err := f.SetSheetName(sheet, "Allocation"); err != nil {
		return nil, fmt.Errorf("rename allocation sheet: %w", err)
	}
	sheet = "Allocation"

	for i, header := range data.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	for r, row := range data.Rows {
		for c := range data.Headers {
			if c >= len(row) {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, row[c]); err != nil {
				return nil, fmt.Errorf("write row: %w", err)
			}
		}
	}

	used := map[string]bool{strings.ToLower(sheet): true}
	for _, grid := range grids {
		name := uniqueSheetName(grid.Hall, used)
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create hall sheet: %w", err)
		}
		for i, label := range grid.Cells {
			col := i%e.gridColumns + 1
			row := i/e.gridColumns + 1
			cell, _ := excelize.CoordinatesToCellName(col, row)
			if err := f.SetCellValue(name, cell, label); err != nil {
				return nil, fmt.Errorf("write seat cell: %w", err)
			}
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func uniqueSheetName(raw string, used map[string]bool) string {
	name := strings.TrimSpace(sheetNameSanitizer.Replace(raw))
	if name == "" {
		name = "Hall"
	}
	name = truncateRunes(name, maxSheetNameLen)
	base := name
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" %d", n)
		name = truncateRunes(base, maxSheetNameLen-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
