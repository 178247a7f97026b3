package handler

import (
	"context"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/AnjithKrishna7/exam-seat-allocator/internal/dto"
	"github.com/AnjithKrishna7/exam-seat-allocator/internal/models"
	"github.com/AnjithKrishna7/exam-seat-allocator/internal/service"
	appErrors "github.com/AnjithKrishna7/exam-seat-allocator/pkg/errors"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/response"
	"github.com/AnjithKrishna7/exam-seat-allocator/pkg/spreadsheet"
)

const (
	studentsFileField = "students"
	hallsFileField    = "halls"
)

type allocationEngine interface {
	Generate(students []models.StudentRecord, halls []models.Hall, seed int64, label string) (string, *models.AllocationResult)
	Save(ctx context.Context, runID, label string) (*models.AllocationRun, error)
	ListRuns(ctx context.Context, page, pageSize int) ([]models.AllocationRun, *models.Pagination, error)
	Assignments(ctx context.Context, runID string) ([]models.SeatAssignment, error)
}

type planExporter interface {
	Generate(runID, format string) (*service.ExportResult, error)
}

// AllocationHandler exposes the allocation endpoints.
type AllocationHandler struct {
	roster   *service.RosterService
	engine   allocationEngine
	exports  planExporter
	metrics  *service.MetricsService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAllocationHandler constructs the handler.
func NewAllocationHandler(
	roster *service.RosterService,
	engine *service.AllocationService,
	exports *service.ExportService,
	metrics *service.MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *AllocationHandler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationHandler{
		roster:   roster,
		engine:   engine,
		exports:  exports,
		metrics:  metrics,
		validate: validate,
		logger:   logger,
	}
}

// Generate ingests roster workbooks, normalizes them and runs the
// seat assignment engine. The plan is held in memory until saved.
func (h *AllocationHandler) Generate(c *gin.Context) {
	var form dto.GenerateAllocationForm
	if err := c.ShouldBind(&form); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid form fields"))
		return
	}
	if err := h.validate.Struct(form); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid form fields"))
		return
	}

	mf, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "multipart form expected"))
		return
	}

	studentFiles := mf.File[studentsFileField]
	if len(studentFiles) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "at least one student workbook is required"))
		return
	}

	students, issues := h.collectStudents(studentFiles)
	if len(students) == 0 {
		h.logger.Warn("roster normalization produced no records", zap.Int("files", len(studentFiles)))
		if len(issues) == len(studentFiles) {
			response.Error(c, appErrors.Clone(appErrors.ErrNormalization, "none of the uploaded workbooks could be normalized"))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrEmptyPool, ""))
		return
	}

	halls, hallErr := h.resolveHalls(mf, form.HallSettings)
	if hallErr != nil {
		response.Error(c, hallErr)
		return
	}

	runID, result := h.engine.Generate(students, halls, form.Seed, form.Label)
	if h.metrics != nil {
		h.metrics.ObserveAllocation(result)
	}

	response.JSON(c, http.StatusOK, dto.GenerateAllocationResponse{
		RunID:         runID,
		Seed:          result.Seed,
		TotalStudents: result.Total,
		Placed:        len(result.Assignments),
		Unplaced:      len(result.Unplaced),
		Halls:         halls,
		Assignments:   result.Assignments,
		Layouts:       result.Layouts,
		FileIssues:    issues,
	}, nil)
}

// Save persists a generated run.
func (h *AllocationHandler) Save(c *gin.Context) {
	var req dto.SaveRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}

	run, err := h.engine.Save(c.Request.Context(), c.Param("id"), req.Label)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, run)
}

// List returns persisted runs, newest first.
func (h *AllocationHandler) List(c *gin.Context) {
	var query dto.RunListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid list query"))
		return
	}

	runs, pagination, err := h.engine.ListRuns(c.Request.Context(), query.Page, query.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// Assignments returns the flat seat table of a run.
func (h *AllocationHandler) Assignments(c *gin.Context) {
	assignments, err := h.engine.Assignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Export renders a run in the requested format and returns a signed
// download link.
func (h *AllocationHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnsupportedFormat, "format must be one of csv, pdf, xlsx"))
		return
	}

	runID := c.Param("id")
	result, err := h.exports.Generate(runID, req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ExportResponse{
		RunID:     runID,
		Format:    result.Format,
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil)
}

func (h *AllocationHandler) collectStudents(files []*multipart.FileHeader) ([]models.StudentRecord, []dto.FileIssue) {
	var students []models.StudentRecord
	var issues []dto.FileIssue

	for _, fh := range files {
		records, err := h.parseStudentFile(fh)
		if err != nil {
			appErr := appErrors.FromError(err)
			issues = append(issues, dto.FileIssue{
				File:    fh.Filename,
				Code:    appErr.Code,
				Message: appErr.Message,
			})
			h.logger.Warn("student workbook rejected",
				zap.String("file", fh.Filename),
				zap.Error(err),
			)
			continue
		}
		students = append(students, records...)
	}
	return students, issues
}

func (h *AllocationHandler) parseStudentFile(fh *multipart.FileHeader) ([]models.StudentRecord, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "could not open uploaded file")
	}
	defer f.Close()

	grid, err := spreadsheet.ReadGrid(f)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNormalization.Code, appErrors.ErrNormalization.Status, "could not read workbook")
	}
	return h.roster.ParseStudents(grid)
}

func (h *AllocationHandler) resolveHalls(mf *multipart.Form, settings dto.HallSettings) ([]models.Hall, error) {
	if files := mf.File[hallsFileField]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "could not open hall workbook")
		}
		defer f.Close()

		grid, err := spreadsheet.ReadGrid(f)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrNormalization.Code, appErrors.ErrNormalization.Status, "could not read hall workbook")
		}
		return h.roster.ParseHalls(grid)
	}

	if settings.HallCount > 0 && settings.SeatsPerHall > 0 {
		return service.SynthesizeHalls(settings.HallCount, settings.SeatsPerHall), nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "provide a hall workbook or hallCount and seatsPerHall")
}
