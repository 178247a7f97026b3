package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/AnjithKrishna7/exam-seat-allocator/internal/models"
	appErrors "github.com/AnjithKrishna7/exam-seat-allocator/pkg/errors"
)

// headerScanLimit bounds how deep the normalizer searches for a header
// row in a grid whose first rows are title or banner text.
const headerScanLimit = 20

var (
	// "ARJUN P R(NCE21CS025)" -> name before the parenthesis, register inside.
	studentCellPattern = regexp.MustCompile(`^(.*?)\(([^()]*)\)$`)
	// "INTERNET OF THINGS ( CST448 )" -> subject text, then a final
	// parenthesized code with optional inner whitespace.
	courseCellPattern = regexp.MustCompile(`^(.*)\(\s*([^()]*?)\s*\)\s*$`)
)

// RosterService normalizes raw spreadsheet grids into canonical
// student records and hall descriptors.
type RosterService struct {
	logger *zap.Logger
}

// NewRosterService constructs the roster normalizer.
func NewRosterService(logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{logger: logger}
}

// ParseStudents locates the header row, maps the Student and Course
// columns and extracts one record per usable row. Malformed cells
// degrade to best-effort values; only a missing header or missing
// required columns fail the whole grid.
func (s *RosterService) ParseStudents(grid models.RawGrid) ([]models.StudentRecord, error) {
	headerIdx, ok := findHeaderRow(grid)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNormalization, "no header row with a Student column found")
	}

	studentCol, courseCol, ok := mapRosterColumns(grid[headerIdx])
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNormalization, "header is missing a Student or Course/Branch Name column")
	}

	records := make([]models.StudentRecord, 0, len(grid)-headerIdx-1)
	for _, row := range grid[headerIdx+1:] {
		studentCell := strings.TrimSpace(cellAt(row, studentCol))
		if studentCell == "" || strings.EqualFold(studentCell, "nan") {
			continue
		}

		record := models.StudentRecord{}
		record.Name, record.RegisterNo = parseStudentCell(studentCell)

		courseCell := strings.TrimSpace(cellAt(row, courseCol))
		record.SubjectName, record.SubjectCode = parseCourseCell(courseCell)

		records = append(records, record)
	}

	s.logger.Debug("roster grid normalized",
		zap.Int("header_row", headerIdx),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// ParseHalls reads an externally supplied hall table with Hall_Name
// and Capacity columns. Rows without a usable name or positive
// capacity are skipped.
func (s *RosterService) ParseHalls(grid models.RawGrid) ([]models.Hall, error) {
	headerIdx, nameCol, capCol, ok := findHallHeader(grid)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNormalization, "hall table is missing Hall_Name or Capacity columns")
	}

	halls := make([]models.Hall, 0, len(grid)-headerIdx-1)
	for _, row := range grid[headerIdx+1:] {
		name := strings.TrimSpace(cellAt(row, nameCol))
		if name == "" {
			continue
		}
		capacity, err := parseCapacity(cellAt(row, capCol))
		if err != nil || capacity <= 0 {
			continue
		}
		halls = append(halls, models.Hall{Name: name, Capacity: capacity})
	}
	if len(halls) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNormalization, "hall table contains no usable rows")
	}
	return halls, nil
}

// SynthesizeHalls builds a uniform hall list from a count and per-hall
// seat number.
func SynthesizeHalls(count, seatsPerHall int) []models.Hall {
	halls := make([]models.Hall, 0, count)
	for i := 0; i < count; i++ {
		halls = append(halls, models.Hall{
			Name:     fmt.Sprintf("Hall %d", i+1),
			Capacity: seatsPerHall,
		})
	}
	return halls
}

// findHeaderRow accepts the first row outright when it already carries
// the expected labels; otherwise it scans the top of the grid for a
// row containing the literal token "Student".
func findHeaderRow(grid models.RawGrid) (int, bool) {
	if len(grid) == 0 {
		return 0, false
	}

	first := trimmedLabels(grid[0])
	if containsLabel(first, "Student") && (containsLabel(first, "Course") || containsLabel(first, "Branch Name")) {
		return 0, true
	}

	limit := len(grid)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}
	for i := 0; i < limit; i++ {
		if containsLabel(trimmedLabels(grid[i]), "Student") {
			return i, true
		}
	}
	return 0, false
}

// mapRosterColumns resolves the canonical columns by substring match,
// falling back to Branch Name when no Course column exists.
func mapRosterColumns(header []string) (studentCol, courseCol int, ok bool) {
	studentCol, courseCol = -1, -1
	branchCol := -1
	for i, raw := range header {
		label := strings.TrimSpace(raw)
		switch {
		case studentCol < 0 && strings.Contains(label, "Student"):
			studentCol = i
		case courseCol < 0 && strings.Contains(label, "Course"):
			courseCol = i
		case branchCol < 0 && strings.Contains(label, "Branch Name"):
			branchCol = i
		}
	}
	if courseCol < 0 {
		courseCol = branchCol
	}
	if studentCol < 0 || courseCol < 0 {
		return 0, 0, false
	}
	return studentCol, courseCol, true
}

func findHallHeader(grid models.RawGrid) (headerIdx, nameCol, capCol int, ok bool) {
	limit := len(grid)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}
	for i := 0; i < limit; i++ {
		nameCol, capCol = -1, -1
		for j, raw := range grid[i] {
			label := strings.TrimSpace(raw)
			if nameCol < 0 && strings.Contains(label, "Hall") {
				nameCol = j
			}
			if capCol < 0 && strings.Contains(label, "Capacity") {
				capCol = j
			}
		}
		if nameCol >= 0 && capCol >= 0 {
			return i, nameCol, capCol, true
		}
	}
	return 0, 0, 0, false
}

func parseStudentCell(cell string) (name, registerNo string) {
	if m := studentCellPattern.FindStringSubmatch(cell); m != nil {
		name = strings.TrimSpace(m[1])
		registerNo = strings.TrimSpace(m[2])
		if registerNo == "" {
			registerNo = models.RegisterNoMissing
		}
		return name, registerNo
	}
	return cell, models.RegisterNoMissing
}

func parseCourseCell(cell string) (subjectName, subjectCode string) {
	if m := courseCellPattern.FindStringSubmatch(cell); m != nil {
		code := strings.TrimSpace(m[2])
		if code != "" {
			return cleanWhitespace(m[1]), code
		}
	}
	// No distinguishable code: the raw subject text stands in for both.
	cleaned := cleanWhitespace(cell)
	return cleaned, cleaned
}

func parseCapacity(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if v, err := strconv.Atoi(trimmed); err == nil {
		return v, nil
	}
	// Spreadsheet numerics sometimes surface as "30.0".
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func trimmedLabels(row []string) []string {
	labels := make([]string, len(row))
	for i, cell := range row {
		labels[i] = strings.TrimSpace(cell)
	}
	return labels
}

func containsLabel(labels []string, target string) bool {
	for _, label := range labels {
		if label == target {
			return true
		}
	}
	return false
}

func cleanWhitespace(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
