package spreadsheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadGrid decodes an xlsx workbook into a single headerless grid of
// string cells. Sheets are concatenated in workbook order; trailing
// blank rows are dropped, blank cells are kept so column positions
// survive for header mapping.
func ReadGrid(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	grid := make([][]string, 0)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			if isBlankRow(row) {
				continue
			}
			grid = append(grid, row)
		}
	}
	return grid, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
