package models

// RawGrid is a headerless table of cell values as decoded from an
// uploaded spreadsheet. Blank cells are empty strings.
type RawGrid [][]string

// RegisterNoMissing marks a student row whose register number could
// not be recovered from the raw cell.
const RegisterNoMissing = "N/A"

// StudentRecord is the canonical form of one roster row. Records are
// immutable once produced by the normalizer; SubjectCode is never empty.
type StudentRecord struct {
	Name        string `json:"name"`
	RegisterNo  string `json:"register_no"`
	SubjectName string `json:"subject_name"`
	SubjectCode string `json:"subject_code"`
}

// Hall describes one examination room. Capacity is a hard seat bound.
type Hall struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}
