package dto

import "github.com/AnjithKrishna7/exam-seat-allocator/internal/models"

// HallSettings synthesizes a uniform hall list when no hall workbook
// is uploaded.
type HallSettings struct {
	HallCount    int `form:"hallCount" validate:"omitempty,min=1,max=100"`
	SeatsPerHall int `form:"seatsPerHall" validate:"omitempty,min=1,max=200"`
}

// GenerateAllocationForm carries the non-file fields of the generate
// request. Seed zero lets the engine pick a time-derived one.
type GenerateAllocationForm struct {
	HallSettings
	Seed  int64  `form:"seed"`
	Label string `form:"label" validate:"omitempty,max=120"`
}

// FileIssue reports a per-file normalization failure. One bad upload
// never aborts the rest of the batch.
type FileIssue struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GenerateAllocationResponse returns the generated seating plan.
type GenerateAllocationResponse struct {
	RunID         string                         `json:"runId"`
	Seed          int64                          `json:"seed"`
	TotalStudents int                            `json:"totalStudents"`
	Placed        int                            `json:"placed"`
	Unplaced      int                            `json:"unplaced"`
	Halls         []models.Hall                  `json:"halls"`
	Assignments   []models.SeatAssignment        `json:"assignments"`
	Layouts       map[string][]models.SeatCell   `json:"layouts"`
	FileIssues    []FileIssue                    `json:"fileIssues,omitempty"`
}

// SaveRunRequest persists a generated run.
type SaveRunRequest struct {
	Label string `json:"label" validate:"omitempty,max=120"`
}

// ExportRequest selects the rendering format for a run.
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf xlsx"`
}

// ExportResponse returns the signed download link for a rendered plan.
type ExportResponse struct {
	RunID     string `json:"runId"`
	Format    string `json:"format"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}

// RunListQuery paginates persisted allocation runs.
type RunListQuery struct {
	Page     int `form:"page" validate:"omitempty,min=1"`
	PageSize int `form:"pageSize" validate:"omitempty,min=1,max=100"`
}
