package models

import "time"

// SeatAssignment is one filled seat in the final plan. SeatNo is
// 1-based and dense within a hall.
type SeatAssignment struct {
	RunID       string `db:"run_id" json:"-"`
	Hall        string `db:"hall" json:"hall"`
	SeatNo      int    `db:"seat_no" json:"seat_no"`
	Name        string `db:"name" json:"name"`
	RegisterNo  string `db:"register_no" json:"register_no"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
}

// SeatCell is one position in a hall's serialized seat order. A nil
// Assignment marks a deliberately empty seat breaking subject adjacency.
type SeatCell struct {
	Assignment *SeatAssignment `json:"assignment,omitempty"`
	Empty      bool            `json:"empty"`
}

// AllocationResult is the full outcome of one engine invocation.
type AllocationResult struct {
	Assignments []SeatAssignment      `json:"assignments"`
	Layouts     map[string][]SeatCell `json:"layouts"`
	HallOrder   []string              `json:"hall_order"`
	Unplaced    []StudentRecord       `json:"unplaced"`
	Total       int                   `json:"total_students"`
	Seed        int64                 `json:"seed"`
}

// AllocationRun captures a persisted allocation with summary counts.
type AllocationRun struct {
	ID            string    `db:"id" json:"id"`
	Label         string    `db:"label" json:"label"`
	Seed          int64     `db:"seed" json:"seed"`
	TotalStudents int       `db:"total_students" json:"total_students"`
	PlacedCount   int       `db:"placed_count" json:"placed_count"`
	UnplacedCount int       `db:"unplaced_count" json:"unplaced_count"`
	HallCount     int       `db:"hall_count" json:"hall_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Pagination is shared list metadata for the API envelope.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}
