package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"Hall", "Seat_No", "Name"},
		Rows: [][]string{
			{"Hall 1", "1", "ARJUN P R"},
			{"Hall 1", "2", "MEERA K"},
		},
	}
}

func TestXLSXRenderWritesTableAndGrids(t *testing.T) {
	exporter := NewXLSXExporter(2)
	grids := []Grid{
		{Hall: "Hall 1", Cells: []string{"REG001\nCST448", "EMPTY", "REG002\nMAT208"}},
	}

	payload, err := exporter.Render(sampleDataset(), grids)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Allocation", "Hall 1"}, f.GetSheetList())

	header, err := f.GetCellValue("Allocation", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Hall", header)
	name, err := f.GetCellValue("Allocation", "C3")
	require.NoError(t, err)
	assert.Equal(t, "MEERA K", name)

	// two columns: third cell wraps to the second row
	wrapped, err := f.GetCellValue("Hall 1", "A2")
	require.NoError(t, err)
	assert.Equal(t, "REG002\nMAT208", wrapped)
}

func TestXLSXRenderRequiresHeaders(t *testing.T) {
	exporter := NewXLSXExporter(5)

	_, err := exporter.Render(Dataset{}, nil)
	require.Error(t, err)
}

func TestUniqueSheetNameSanitizesReservedCharacters(t *testing.T) {
	used := map[string]bool{}

	name := uniqueSheetName("Block A/B: [West]?", used)
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, ":")
	assert.NotContains(t, name, "[")
	assert.NotContains(t, name, "?")
}

func TestUniqueSheetNameTruncatesLongNames(t *testing.T) {
	used := map[string]bool{}

	name := uniqueSheetName(strings.Repeat("Long Hall Name ", 5), used)
	assert.LessOrEqual(t, len([]rune(name)), maxSheetNameLen)
}

func TestUniqueSheetNameResolvesCollisions(t *testing.T) {
	used := map[string]bool{}

	first := uniqueSheetName("Hall 1", used)
	second := uniqueSheetName("Hall 1", used)
	third := uniqueSheetName("hall 1", used)

	assert.Equal(t, "Hall 1", first)
	assert.Equal(t, "Hall 1 2", second)
	assert.Equal(t, "hall 1 3", third)
}

func TestUniqueSheetNameEmptyFallsBack(t *testing.T) {
	used := map[string]bool{}

	assert.Equal(t, "Hall", uniqueSheetName("   ", used))
}
