package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AnjithKrishna7/exam-seat-allocator/internal/models"
	"github.com/AnjithKrishna7/exam-seat-allocator/internal/repository"
	appErrors "github.com/AnjithKrishna7/exam-seat-allocator/pkg/errors"
)

func newAllocationFixture(repo allocationRepository, tx allocationTxProvider, cache datasetCache) *AllocationService {
	return NewAllocationService(repo, tx, cache, zap.NewNop(), AllocationConfig{
		FillBuffer: 1.2,
		RunTTL:     time.Minute,
		DatasetTTL: time.Minute,
	})
}

func studentFixtures(n int, codes []string) []models.StudentRecord {
	students := make([]models.StudentRecord, 0, n)
	for i := 0; i < n; i++ {
		code := codes[i%len(codes)]
		students = append(students, models.StudentRecord{
			Name:        fmt.Sprintf("Student %02d", i+1),
			RegisterNo:  fmt.Sprintf("REG%03d", i+1),
			SubjectCode: code,
			SubjectName: "Subject " + code,
		})
	}
	return students
}

func uniqueCodes(n int) []string {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		codes = append(codes, fmt.Sprintf("CS%03d", i+1))
	}
	return codes
}

func TestAllocateFillsAllSeatsWhenSubjectsNeverClash(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(12, uniqueCodes(12))
	halls := []models.Hall{
		{Name: "Hall 1", Capacity: 6},
		{Name: "Hall 2", Capacity: 6},
	}

	result := service.Allocate(students, halls, 42)

	assert.Equal(t, 12, len(result.Assignments))
	assert.Empty(t, result.Unplaced)
	assert.Equal(t, 12, result.Total)
	assert.Equal(t, []string{"Hall 1", "Hall 2"}, result.HallOrder)
	assert.Len(t, result.Layouts["Hall 1"], 6)
	assert.Len(t, result.Layouts["Hall 2"], 6)
}

func TestAllocateAlternatesEmptySeatsForSingleSubject(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(5, []string{"CST301"})
	halls := []models.Hall{{Name: "Main Hall", Capacity: 5}}

	result := service.Allocate(students, halls, 7)

	layout := result.Layouts["Main Hall"]
	require.Len(t, layout, 5)
	for i, cell := range layout {
		if i%2 == 0 {
			assert.NotNil(t, layout[i].Assignment, "seat %d should be occupied", i+1)
		} else {
			assert.True(t, cell.Empty, "seat %d should be empty", i+1)
		}
	}
	assert.Equal(t, 3, len(result.Assignments))
	assert.Equal(t, 2, len(result.Unplaced))
}

func TestAllocateNoAdjacentSubjectCodes(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(30, []string{"MAT208", "CST206", "HUT200"})
	halls := []models.Hall{
		{Name: "Hall A", Capacity: 12},
		{Name: "Hall B", Capacity: 12},
		{Name: "Hall C", Capacity: 12},
	}

	result := service.Allocate(students, halls, 99)

	for hall, layout := range result.Layouts {
		prev := ""
		for i, cell := range layout {
			if cell.Empty {
				prev = ""
				continue
			}
			require.NotNil(t, cell.Assignment)
			if prev != "" {
				assert.NotEqual(t, prev, cell.Assignment.SubjectCode,
					"hall %s seat %d repeats the previous subject", hall, i+1)
			}
			prev = cell.Assignment.SubjectCode
		}
	}
}

func TestAllocateSeatNumbersAreDensePerHall(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(20, uniqueCodes(5))
	halls := []models.Hall{
		{Name: "Hall 1", Capacity: 8},
		{Name: "Hall 2", Capacity: 8},
	}

	result := service.Allocate(students, halls, 3)

	perHall := map[string][]int{}
	for _, a := range result.Assignments {
		perHall[a.Hall] = append(perHall[a.Hall], a.SeatNo)
	}
	for hall, seats := range perHall {
		for i, seatNo := range seats {
			assert.Equal(t, i+1, seatNo, "hall %s seat order is not dense", hall)
		}
	}
}

func TestAllocateEachStudentPlacedAtMostOnce(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(18, []string{"A1", "B2", "C3", "D4"})
	halls := []models.Hall{
		{Name: "Hall 1", Capacity: 10},
		{Name: "Hall 2", Capacity: 10},
	}

	result := service.Allocate(students, halls, 5)

	seen := map[string]bool{}
	for _, a := range result.Assignments {
		assert.False(t, seen[a.RegisterNo], "register no %s placed twice", a.RegisterNo)
		seen[a.RegisterNo] = true
	}
	for _, s := range result.Unplaced {
		assert.False(t, seen[s.RegisterNo], "unplaced student %s was also seated", s.RegisterNo)
	}
	assert.Equal(t, len(students), len(result.Assignments)+len(result.Unplaced))
}

func TestAllocateRespectsCapacityOverFairShare(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(40, uniqueCodes(8))
	halls := []models.Hall{
		{Name: "Small Hall", Capacity: 4},
		{Name: "Big Hall", Capacity: 100},
	}

	result := service.Allocate(students, halls, 11)

	assert.LessOrEqual(t, len(result.Layouts["Small Hall"]), 4)
	// fair share: floor(40/2) * 1.2 = 24 even though capacity is 100
	assert.LessOrEqual(t, len(result.Layouts["Big Hall"]), 24)
}

func TestAllocateFairShareLimitsEvenHalls(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(10, uniqueCodes(10))
	halls := []models.Hall{
		{Name: "Hall 1", Capacity: 100},
		{Name: "Hall 2", Capacity: 100},
	}

	result := service.Allocate(students, halls, 21)

	// limit per hall = floor(10/2 * 1.2) = 6
	assert.Len(t, result.Layouts["Hall 1"], 6)
	assert.Len(t, result.Layouts["Hall 2"], 4)
	assert.Empty(t, result.Unplaced)
}

func TestAllocateWithNoHalls(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(6, uniqueCodes(6))

	result := service.Allocate(students, nil, 13)

	assert.Empty(t, result.Assignments)
	assert.Len(t, result.Unplaced, 6)
	assert.Equal(t, 6, result.Total)
}

func TestAllocateWithNoStudents(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	halls := []models.Hall{{Name: "Hall 1", Capacity: 10}}

	result := service.Allocate(nil, halls, 17)

	assert.Empty(t, result.Assignments)
	assert.Empty(t, result.Unplaced)
	assert.Len(t, result.Layouts["Hall 1"], 0)
}

func TestAllocateSameSeedReproduces(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(24, []string{"PHY", "CHE", "MAT", "BIO"})
	halls := []models.Hall{
		{Name: "Hall 1", Capacity: 12},
		{Name: "Hall 2", Capacity: 12},
	}

	first := service.Allocate(students, halls, 1234)
	second := service.Allocate(students, halls, 1234)

	require.Equal(t, len(first.Assignments), len(second.Assignments))
	for i := range first.Assignments {
		assert.Equal(t, first.Assignments[i], second.Assignments[i])
	}
	assert.Equal(t, int64(1234), first.Seed)
}

func TestAllocateZeroSeedPicksOne(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(4, uniqueCodes(4))
	halls := []models.Hall{{Name: "Hall 1", Capacity: 4}}

	result := service.Allocate(students, halls, 0)

	assert.NotZero(t, result.Seed)
}

func TestGenerateParksRunForSnapshot(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(6, uniqueCodes(6))
	halls := []models.Hall{{Name: "Hall 1", Capacity: 6}}

	runID, result := service.Generate(students, halls, 8, "midterm")
	require.NotEmpty(t, runID)

	snapshot, ok := service.Snapshot(runID)
	require.True(t, ok)
	assert.Equal(t, result, snapshot)

	_, ok = service.Snapshot("unknown-run")
	assert.False(t, ok)
}

func newAllocationTxMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return sqlxdb, mock
}

func TestSavePersistsRunAndAssignments(t *testing.T) {
	db, mock := newAllocationTxMock(t)
	repo := repository.NewAllocationRepository(db)
	service := newAllocationFixture(repo, db, nil)

	students := studentFixtures(3, uniqueCodes(3))
	halls := []models.Hall{{Name: "Hall 1", Capacity: 3}}
	runID, _ := service.Generate(students, halls, 5, "")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO allocation_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO seat_assignments").WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	run, err := service.Save(context.Background(), runID, "final plan")
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, "final plan", run.Label)
	assert.Equal(t, 3, run.PlacedCount)
	assert.Equal(t, 0, run.UnplacedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRollsBackOnInsertFailure(t *testing.T) {
	db, mock := newAllocationTxMock(t)
	repo := repository.NewAllocationRepository(db)
	service := newAllocationFixture(repo, db, nil)

	students := studentFixtures(2, uniqueCodes(2))
	halls := []models.Hall{{Name: "Hall 1", Capacity: 2}}
	runID, _ := service.Generate(students, halls, 5, "")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO allocation_runs").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := service.Save(context.Background(), runID, "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUnknownRun(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)

	_, err := service.Save(context.Background(), "missing", "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRunNotFound.Code, appErr.Code)
}

type datasetCacheStub struct {
	data map[string][]byte
	sets int
}

func (c *datasetCacheStub) Get(_ context.Context, key string) ([]byte, error) {
	return c.data[key], nil
}

func (c *datasetCacheStub) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key] = value
	c.sets++
	return nil
}

func TestAssignmentsPrefersLiveStore(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)
	students := studentFixtures(4, uniqueCodes(4))
	halls := []models.Hall{{Name: "Hall 1", Capacity: 4}}
	runID, result := service.Generate(students, halls, 2, "")

	assignments, err := service.Assignments(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, result.Assignments, assignments)
}

func TestAssignmentsServedFromCache(t *testing.T) {
	cached := []models.SeatAssignment{
		{Hall: "Hall 1", SeatNo: 1, Name: "A", RegisterNo: "R1", SubjectCode: "CS1", SubjectName: "One"},
	}
	raw, err := json.Marshal(cached)
	require.NoError(t, err)

	cache := &datasetCacheStub{data: map[string][]byte{"allocation:dataset:run-1": raw}}
	service := newAllocationFixture(nil, nil, cache)

	assignments, err := service.Assignments(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, cached, assignments)
}

func TestAssignmentsUnknownRun(t *testing.T) {
	service := newAllocationFixture(nil, nil, nil)

	_, err := service.Assignments(context.Background(), "nope")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrRunNotFound.Code, appErr.Code)
}
