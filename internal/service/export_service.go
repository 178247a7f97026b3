package service

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/AnjithKrishna7/exam-seat-allocator/internal/models"
	appErrors "github.com/AnjithKrishna7/exam-seat-allocator/pkg/errors"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/export"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/storage"
)

// EmptySeatLabel is the rendered text for a deliberately unoccupied seat.
const EmptySeatLabel = "EMPTY"

var assignmentHeaders = []string{"Hall", "Seat_No", "Name", "Register_No", "Subject_Code", "Subject_Name"}

type runSnapshotter interface {
	Snapshot(runID string) (*models.AllocationResult, bool)
}

type planStorage interface {
	Save(filename string, data []byte) (string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset, grids []export.Grid) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix   string
	GridColumns int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       string
	ExpiresAt    time.Time
}

// ExportService renders generated seating plans and persists them for
// signed download.
type ExportService struct {
	runs    runSnapshotter
	storage planStorage
	signer  *storage.SignedURLSigner
	csv     csvRenderer
	pdf     pdfRenderer
	xlsx    xlsxRenderer
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(runs runSnapshotter, store planStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GridColumns <= 0 {
		cfg.GridColumns = 5
	}
	return &ExportService{
		runs:    runs,
		storage: store,
		signer:  signer,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		xlsx:    export.NewXLSXExporter(cfg.GridColumns),
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders the run in the requested format, stores the file
// and returns a signed download link.
func (s *ExportService) Generate(runID, format string) (*ExportResult, error) {
	result, ok := s.runs.Snapshot(runID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrRunNotFound, "")
	}

	dataset := BuildAssignmentDataset(result.Assignments)

	var payload []byte
	var filename string
	var err error
	switch format {
	case "csv":
		payload, err = s.csv.Render(dataset)
		filename = "allocation.csv"
	case "pdf":
		payload, err = s.pdf.Render(dataset, "Exam Seating Allocation")
		filename = "seating_plan.pdf"
	case "xlsx":
		payload, err = s.xlsx.Render(dataset, BuildSeatGrids(result))
		filename = "seating_plan.xlsx"
	default:
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render seating plan")
	}

	relPath := fmt.Sprintf("%s/%s", runID, filename)
	if _, err := s.storage.Save(relPath, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store rendered plan")
	}

	token, expiresAt, err := s.signer.Generate(runID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	s.logger.Info("seating plan exported",
		zap.String("run_id", runID),
		zap.String("format", format),
		zap.Int("bytes", len(payload)),
	)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download?token=%s", s.cfg.APIPrefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// BuildAssignmentDataset flattens assignments into the canonical
// export table.
func BuildAssignmentDataset(assignments []models.SeatAssignment) export.Dataset {
	rows := make([][]string, 0, len(assignments))
	for _, a := range assignments {
		rows = append(rows, []string{
			a.Hall,
			strconv.Itoa(a.SeatNo),
			a.Name,
			a.RegisterNo,
			a.SubjectCode,
			a.SubjectName,
		})
	}
	return export.Dataset{Headers: assignmentHeaders, Rows: rows}
}

// BuildSeatGrids renders each hall's layout into grid cell labels,
// in hall order.
func BuildSeatGrids(result *models.AllocationResult) []export.Grid {
	grids := make([]export.Grid, 0, len(result.HallOrder))
	for _, hall := range result.HallOrder {
		layout := result.Layouts[hall]
		cells := make([]string, 0, len(layout))
		for _, cell := range layout {
			cells = append(cells, RenderSeatCell(cell))
		}
		grids = append(grids, export.Grid{Hall: hall, Cells: cells})
	}
	return grids
}

// RenderSeatCell produces the display text for one layout cell.
func RenderSeatCell(cell models.SeatCell) string {
	if cell.Empty || cell.Assignment == nil {
		return EmptySeatLabel
	}
	return fmt.Sprintf("%s\n%s", cell.Assignment.RegisterNo, cell.Assignment.SubjectCode)
}
