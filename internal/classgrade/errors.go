// ============================================================================
// internal/classgrade/errors.go
// Domain errors for the gradebook engine
// ============================================================================

package classgrade

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, matchable with errors.Is by the gateway's error mapper.
var (
	ErrClassGradeNotFound = errors.New("class grade not found")
	ErrColumnNotFound     = errors.New("grade column not found")
	ErrRowNotFound        = errors.New("grade row not found")

	ErrNotClassTeacher = errors.New("You are not the teacher of this class")
	ErrNotClassStudent = errors.New("You are not the student of this class")

	ErrAlreadyFinished = errors.New("Class grade is already finished")
	ErrNotFinished     = errors.New("Class grade is not finished yet")

	ErrWeightSum         = errors.New("Grade column scale values must sum to 100%")
	ErrOrdinalSequence   = errors.New("Grade column ordinal values must be unique and in order")
	ErrDuplicateColName  = errors.New("Grade column names must be unique")
	ErrColumnNameTooLong = errors.New("Grade column name must be at most 100 characters")

	ErrUnsupportedFileType = errors.New("Invalid file type. Support [csv, xlsx]")
	ErrColumnCountMismatch = errors.New("Your file is not valid. The columns in your file does not match the columns in the template file.")
	ErrEmptyImport         = errors.New("No data found")
	ErrGradeOutOfRange     = errors.New("Grade must be between 0 and 10")
	ErrStudentIDTooLong    = errors.New("Student ID must be between 0 and 10 characters")
)

// UnknownColumnError reports grade keys in an upsert request that do not
// name any current column.
type UnknownColumnError struct {
	Keys []string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("Invalid grade column name [%s] in request body", strings.Join(e.Keys, ", "))
}

// DuplicateStudentError reports every student id appearing more than once
// in an imported sheet.
type DuplicateStudentError struct {
	IDs []string
}

func (e *DuplicateStudentError) Error() string {
	return fmt.Sprintf("Duplicate Student ID: [%s]", strings.Join(e.IDs, ", "))
}

// Cell validation failure kinds, in precedence order.
const (
	CellRuleRange     = "range"      // numeric but outside 0..10
	CellRuleStudentID = "student_id" // student id over the length cap
	CellRuleInvalid   = "invalid"    // not an integer
	CellRuleRequired  = "required"   // empty
)

// CellError locates a single invalid cell in an imported sheet. Row is the
// 1-based sheet row (header is row 1).
type CellError struct {
	Rule   string
	Row    int
	Column string
}

func (e *CellError) Error() string {
	switch e.Rule {
	case CellRuleRange:
		return ErrGradeOutOfRange.Error()
	case CellRuleStudentID:
		return ErrStudentIDTooLong.Error()
	case CellRuleInvalid:
		return fmt.Sprintf("Grade must be a number at row %d in column %s", e.Row, e.Column)
	default:
		return fmt.Sprintf("Field is missing at row %d in column '%s'", e.Row, e.Column)
	}
}

// IsValidationError reports whether err should map to a 400 at the gateway.
func IsValidationError(err error) bool {
	var unknownCol *UnknownColumnError
	var dupStudent *DuplicateStudentError
	var cell *CellError
	if errors.As(err, &unknownCol) || errors.As(err, &dupStudent) || errors.As(err, &cell) {
		return true
	}
	for _, sentinel := range []error{
		ErrAlreadyFinished, ErrNotFinished,
		ErrWeightSum, ErrOrdinalSequence, ErrDuplicateColName, ErrColumnNameTooLong,
		ErrUnsupportedFileType, ErrColumnCountMismatch, ErrEmptyImport,
		ErrGradeOutOfRange, ErrStudentIDTooLong,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
