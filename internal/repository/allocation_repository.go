package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/AnjithKrishna7/exam-seat-allocator/internal/models"
)

// AllocationRepository manages persistence for allocation runs and
// their flat seat assignment tables.
type AllocationRepository struct {
	db *sqlx.DB
}

// NewAllocationRepository constructs an AllocationRepository.
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// CreateRun inserts the run summary row.
func (r *AllocationRepository) CreateRun(ctx context.Context, exec sqlx.ExtContext, run *models.AllocationRun) error {
	query := `INSERT INTO allocation_runs (id, label, seed, total_students, placed_count, unplaced_count, hall_count, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := exec.ExecContext(ctx, query,
		run.ID, run.Label, run.Seed, run.TotalStudents, run.PlacedCount, run.UnplacedCount, run.HallCount, run.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert allocation run: %w", err)
	}
	return nil
}

// InsertAssignments writes the flat seat table for a run.
func (r *AllocationRepository) InsertAssignments(ctx context.Context, exec sqlx.ExtContext, runID string, assignments []models.SeatAssignment) error {
	query := `INSERT INTO seat_assignments (run_id, hall, seat_no, name, register_no, subject_code, subject_name)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, a := range assignments {
		if _, err := exec.ExecContext(ctx, query,
			runID, a.Hall, a.SeatNo, a.Name, a.RegisterNo, a.SubjectCode, a.SubjectName,
		); err != nil {
			return fmt.Errorf("insert seat assignment: %w", err)
		}
	}
	return nil
}

// ListRuns returns persisted runs newest-first.
func (r *AllocationRepository) ListRuns(ctx context.Context, limit, offset int) ([]models.AllocationRun, int, error) {
	query := fmt.Sprintf(`SELECT id, label, seed, total_students, placed_count, unplaced_count, hall_count, created_at
        FROM allocation_runs ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	var runs []models.AllocationRun
	if err := r.db.SelectContext(ctx, &runs, query); err != nil {
		return nil, 0, fmt.Errorf("list allocation runs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM allocation_runs"); err != nil {
		return nil, 0, fmt.Errorf("count allocation runs: %w", err)
	}
	return runs, total, nil
}

// FindRun loads one run summary.
func (r *AllocationRepository) FindRun(ctx context.Context, id string) (*models.AllocationRun, error) {
	var run models.AllocationRun
	query := `SELECT id, label, seed, total_students, placed_count, unplaced_count, hall_count, created_at
        FROM allocation_runs WHERE id = $1`
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// AssignmentsByRun returns the flat seat table in hall and seat order.
func (r *AllocationRepository) AssignmentsByRun(ctx context.Context, runID string) ([]models.SeatAssignment, error) {
	var assignments []models.SeatAssignment
	query := `SELECT run_id, hall, seat_no, name, register_no, subject_code, subject_name
        FROM seat_assignments WHERE run_id = $1 ORDER BY hall, seat_no`
	if err := r.db.SelectContext(ctx, &assignments, query, runID); err != nil {
		return nil, fmt.Errorf("list seat assignments: %w", err)
	}
	return assignments, nil
}
