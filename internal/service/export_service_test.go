package service

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/AnjithKrishna7/exam-seat-allocator/internal/models"
	appErrors "github.com/AnjithKrishna7/exam-seat-allocator/pkg/errors"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/storage"
)

func newExportFixture(t *testing.T) (*ExportService, *AllocationService, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)

	alloc := newAllocationFixture(nil, nil, nil)
	svc := NewExportService(alloc, store, signer, ExportConfig{APIPrefix: "/api/v1", GridColumns: 3}, nil)
	return svc, alloc, dir
}

func TestExportGenerateCSV(t *testing.T) {
	svc, alloc, dir := newExportFixture(t)
	students := studentFixtures(4, uniqueCodes(4))
	halls := []models.Hall{{Name: "Hall 1", Capacity: 4}}
	runID, _ := alloc.Generate(students, halls, 9, "")

	result, err := svc.Generate(runID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "csv", result.Format)
	assert.Contains(t, result.URL, "/api/v1/exports/download?token=")
	assert.True(t, result.ExpiresAt.After(time.Now()))

	payload, err := os.ReadFile(filepath.Join(dir, result.RelativePath))
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Hall", "Seat_No", "Name", "Register_No", "Subject_Code", "Subject_Name"}, rows[0])
	assert.Equal(t, "Hall 1", rows[1][0])
	assert.Equal(t, "1", rows[1][1])
}

func TestExportGeneratePDF(t *testing.T) {
	svc, alloc, dir := newExportFixture(t)
	students := studentFixtures(3, uniqueCodes(3))
	halls := []models.Hall{{Name: "Hall 1", Capacity: 3}}
	runID, _ := alloc.Generate(students, halls, 9, "")

	result, err := svc.Generate(runID, "pdf")
	require.NoError(t, err)

	payload, err := os.ReadFile(filepath.Join(dir, result.RelativePath))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestExportGenerateXLSX(t *testing.T) {
	svc, alloc, dir := newExportFixture(t)
	students := studentFixtures(5, []string{"CST301"})
	halls := []models.Hall{{Name: "Main Hall", Capacity: 5}}
	runID, _ := alloc.Generate(students, halls, 7, "")

	result, err := svc.Generate(runID, "xlsx")
	require.NoError(t, err)

	f, err := excelize.OpenFile(filepath.Join(dir, result.RelativePath))
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "Allocation")
	assert.Contains(t, sheets, "Main Hall")

	// single-subject pool alternates students and forced empty seats
	cell, err := f.GetCellValue("Main Hall", "B1")
	require.NoError(t, err)
	assert.Equal(t, EmptySeatLabel, cell)
}

func TestExportUnknownRun(t *testing.T) {
	svc, _, _ := newExportFixture(t)

	_, err := svc.Generate("missing-run", "csv")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRunNotFound.Code, appErr.Code)
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc, alloc, _ := newExportFixture(t)
	students := studentFixtures(2, uniqueCodes(2))
	halls := []models.Hall{{Name: "Hall 1", Capacity: 2}}
	runID, _ := alloc.Generate(students, halls, 1, "")

	_, err := svc.Generate(runID, "docx")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnsupportedFormat.Code, appErr.Code)
}

func TestBuildSeatGridsRendersEmptyLabel(t *testing.T) {
	result := &models.AllocationResult{
		HallOrder: []string{"Hall 1"},
		Layouts: map[string][]models.SeatCell{
			"Hall 1": {
				{Assignment: &models.SeatAssignment{RegisterNo: "REG001", SubjectCode: "CST448"}},
				{Empty: true},
			},
		},
	}

	grids := BuildSeatGrids(result)
	require.Len(t, grids, 1)
	assert.Equal(t, "Hall 1", grids[0].Hall)
	assert.Equal(t, []string{"REG001\nCST448", EmptySeatLabel}, grids[0].Cells)
}
