package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/AnjithKrishna7/exam-seat-allocator/internal/models"
	appErrors "github.com/AnjithKrishna7/exam-seat-allocator/pkg/errors"
)

type allocationRepository interface {
	CreateRun(ctx context.Context, exec sqlx.ExtContext, run *models.AllocationRun) error
	InsertAssignments(ctx context.Context, exec sqlx.ExtContext, runID string, assignments []models.SeatAssignment) error
	ListRuns(ctx context.Context, limit, offset int) ([]models.AllocationRun, int, error)
	FindRun(ctx context.Context, id string) (*models.AllocationRun, error)
	AssignmentsByRun(ctx context.Context, runID string) ([]models.SeatAssignment, error)
}

type allocationTxProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type datasetCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// AllocationConfig governs engine behaviour.
type AllocationConfig struct {
	// FillBuffer widens the per-hall fair-share target above the exact
	// students/halls ratio so halls are not systematically under-filled.
	FillBuffer float64
	RunTTL     time.Duration
	DatasetTTL time.Duration
}

// AllocationService runs the seat assignment engine and manages
// generated runs: an in-memory TTL store for fresh results and
// transactional persistence for accepted ones.
type AllocationService struct {
	repo   allocationRepository
	tx     allocationTxProvider
	cache  datasetCache
	logger *zap.Logger
	cfg    AllocationConfig
	store  *runStore
}

// NewAllocationService wires the allocation engine dependencies.
func NewAllocationService(
	repo allocationRepository,
	tx allocationTxProvider,
	cache datasetCache,
	logger *zap.Logger,
	cfg AllocationConfig,
) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FillBuffer <= 0 {
		cfg.FillBuffer = 1.2
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 30 * time.Minute
	}
	if cfg.DatasetTTL <= 0 {
		cfg.DatasetTTL = 10 * time.Minute
	}
	return &AllocationService{
		repo:   repo,
		tx:     tx,
		cache:  cache,
		logger: logger,
		cfg:    cfg,
		store:  newRunStore(cfg.RunTTL),
	}
}

// Allocate shuffles the student pool with the given seed and fills the
// halls in order under the adjacency constraint. A zero seed picks a
// time-derived one; the effective seed is echoed in the result so any
// run can be replayed.
//
// Each hall's fill limit is fixed up front from the original pool size
// (limit = min(capacity, floor(floor(total/halls) * buffer))) and is
// not rebalanced as earlier halls consume students. Students left over
// after the last hall are returned in Unplaced rather than erroring.
func (s *AllocationService) Allocate(students []models.StudentRecord, halls []models.Hall, seed int64) *models.AllocationResult {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	pool := newStudentArena(students, rng)

	baseFill := 0
	if len(halls) > 0 {
		baseFill = len(students) / len(halls)
	}

	result := &models.AllocationResult{
		Assignments: make([]models.SeatAssignment, 0, len(students)),
		Layouts:     make(map[string][]models.SeatCell, len(halls)),
		HallOrder:   make([]string, 0, len(halls)),
		Total:       len(students),
		Seed:        seed,
	}

	for _, hall := range halls {
		limit := int(float64(baseFill) * s.cfg.FillBuffer)
		if hall.Capacity < limit {
			limit = hall.Capacity
		}

		layout := make([]models.SeatCell, 0, limit)
		prevCode := ""
		filled := 0
		placed := 0

		// The empty-seat fallback makes every iteration advance
		// filled, so the loop is bounded by limit already; the 3x cap
		// guards against that invariant ever breaking.
		for iter := 0; filled < limit && pool.remaining() > 0 && iter < 3*limit; iter++ {
			idx, ok := pool.firstWithDifferentCode(prevCode)
			if !ok {
				// Every remaining student clashes with the previous
				// seat: leave this one empty and reset adjacency.
				layout = append(layout, models.SeatCell{Empty: true})
				prevCode = ""
				filled++
				continue
			}

			student := pool.consume(idx)
			placed++
			assignment := models.SeatAssignment{
				Hall:        hall.Name,
				SeatNo:      placed,
				Name:        student.Name,
				RegisterNo:  student.RegisterNo,
				SubjectCode: student.SubjectCode,
				SubjectName: student.SubjectName,
			}
			result.Assignments = append(result.Assignments, assignment)
			ref := assignment
			layout = append(layout, models.SeatCell{Assignment: &ref})
			prevCode = student.SubjectCode
			filled++
		}

		result.Layouts[hall.Name] = layout
		result.HallOrder = append(result.HallOrder, hall.Name)
	}

	result.Unplaced = pool.rest()

	s.logger.Info("allocation computed",
		zap.Int64("seed", seed),
		zap.Int("students", len(students)),
		zap.Int("halls", len(halls)),
		zap.Int("placed", len(result.Assignments)),
		zap.Int("unplaced", len(result.Unplaced)),
	)
	return result
}

// Generate allocates and parks the result in the run store under a
// fresh run ID so it can be saved or exported later.
func (s *AllocationService) Generate(students []models.StudentRecord, halls []models.Hall, seed int64, label string) (string, *models.AllocationResult) {
	result := s.Allocate(students, halls, seed)
	runID := uuid.NewString()
	s.store.Save(allocationRun{
		ID:        runID,
		Label:     label,
		HallCount: len(halls),
		Result:    result,
		CreatedAt: time.Now().UTC(),
	})
	return runID, result
}

// Snapshot returns a generated run still present in the store.
func (s *AllocationService) Snapshot(runID string) (*models.AllocationResult, bool) {
	run, ok := s.store.Get(runID)
	if !ok {
		return nil, false
	}
	return run.Result, true
}

// Save persists a generated run and its flat assignment table in one
// transaction. The run stays in the store so it can still be exported.
func (s *AllocationService) Save(ctx context.Context, runID, label string) (*models.AllocationRun, error) {
	run, ok := s.store.Get(runID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrRunNotFound, "")
	}
	if s.tx == nil || s.repo == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "persistence is not configured")
	}
	if label == "" {
		label = run.Label
	}

	record := &models.AllocationRun{
		ID:            run.ID,
		Label:         label,
		Seed:          run.Result.Seed,
		TotalStudents: run.Result.Total,
		PlacedCount:   len(run.Result.Assignments),
		UnplacedCount: len(run.Result.Unplaced),
		HallCount:     run.HallCount,
		CreatedAt:     time.Now().UTC(),
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.repo.CreateRun(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist allocation run")
		return nil, err
	}
	if err = s.repo.InsertAssignments(ctx, tx, run.ID, run.Result.Assignments); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist seat assignments")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit allocation run")
		return nil, err
	}
	return record, nil
}

// ListRuns returns persisted runs with pagination metadata.
func (s *AllocationService) ListRuns(ctx context.Context, page, pageSize int) ([]models.AllocationRun, *models.Pagination, error) {
	if s.repo == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "persistence is not configured")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	runs, total, err := s.repo.ListRuns(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list allocation runs")
	}
	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
	return runs, pagination, nil
}

// Assignments returns the flat seat table for a run, preferring the
// live store, then the Redis dataset cache, then the database.
func (s *AllocationService) Assignments(ctx context.Context, runID string) ([]models.SeatAssignment, error) {
	if run, ok := s.store.Get(runID); ok {
		return run.Result.Assignments, nil
	}

	cacheKey := "allocation:dataset:" + runID
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey); err == nil && len(raw) > 0 {
			var assignments []models.SeatAssignment
			if err := json.Unmarshal(raw, &assignments); err == nil {
				return assignments, nil
			}
		}
	}

	if s.repo == nil {
		return nil, appErrors.Clone(appErrors.ErrRunNotFound, "")
	}
	if _, err := s.repo.FindRun(ctx, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRunNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation run")
	}
	assignments, err := s.repo.AssignmentsByRun(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load seat assignments")
	}

	if s.cache != nil {
		if raw, err := json.Marshal(assignments); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, s.cfg.DatasetTTL); err != nil {
				s.logger.Warn("dataset cache write failed", zap.Error(err))
			}
		}
	}
	return assignments, nil
}

// --- Student arena ---

// studentArena owns the shuffled pool. Students leave it only through
// consume, never while a scan is in flight, which keeps the linear
// compatibility scan free of iterator invalidation.
type studentArena struct {
	records  []models.StudentRecord
	consumed []bool
	live     int
}

func newStudentArena(students []models.StudentRecord, rng *rand.Rand) *studentArena {
	records := make([]models.StudentRecord, len(students))
	copy(records, students)
	rng.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})
	return &studentArena{
		records:  records,
		consumed: make([]bool, len(records)),
		live:     len(records),
	}
}

func (a *studentArena) remaining() int {
	return a.live
}

// firstWithDifferentCode scans in shuffle order for the first pending
// student whose subject differs from the previous seat.
func (a *studentArena) firstWithDifferentCode(code string) (int, bool) {
	for i := range a.records {
		if a.consumed[i] {
			continue
		}
		if a.records[i].SubjectCode != code {
			return i, true
		}
	}
	return 0, false
}

func (a *studentArena) consume(idx int) models.StudentRecord {
	a.consumed[idx] = true
	a.live--
	return a.records[idx]
}

func (a *studentArena) rest() []models.StudentRecord {
	out := make([]models.StudentRecord, 0, a.live)
	for i := range a.records {
		if !a.consumed[i] {
			out = append(out, a.records[i])
		}
	}
	return out
}

// --- Run store ---

type allocationRun struct {
	ID        string
	Label     string
	HallCount int
	Result    *models.AllocationResult
	CreatedAt time.Time
}

type runStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]allocationRun
}

func newRunStore(ttl time.Duration) *runStore {
	return &runStore{
		ttl:   ttl,
		items: make(map[string]allocationRun),
	}
}

func (s *runStore) Save(run allocationRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[run.ID] = run
}

func (s *runStore) Get(id string) (allocationRun, bool) {
	s.mu.RLock()
	run, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return allocationRun{}, false
	}
	if time.Since(run.CreatedAt) > s.ttl {
		s.Delete(id)
		return allocationRun{}, false
	}
	return run, true
}

func (s *runStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
