package classgrade

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

func testColumns() []shared.GradeColumn {
	return []shared.GradeColumn{
		{ID: primitive.NewObjectID(), Name: "Midterm", Ordinal: 0, ScaleValue: 40},
		{ID: primitive.NewObjectID(), Name: "Final", Ordinal: 1, ScaleValue: 60},
	}
}

func TestComputeTouched(t *testing.T) {
	columns := testColumns()

	t.Run("Resolves known names", func(t *testing.T) {
		touched, unknown := computeTouched(columns, map[string]float64{"Midterm": 7})
		if len(unknown) != 0 {
			t.Fatalf("Expected no unknown keys, got %v", unknown)
		}
		if len(touched) != 1 || touched[0].Column != columns[0].ID || touched[0].Value != 7 {
			t.Fatalf("Unexpected touched set: %+v", touched)
		}
	})

	t.Run("Collects every unknown key sorted", func(t *testing.T) {
		_, unknown := computeTouched(columns, map[string]float64{
			"Zz": 1, "Aa": 2, "Midterm": 3,
		})
		if !reflect.DeepEqual(unknown, []string{"Aa", "Zz"}) {
			t.Fatalf("Expected [Aa Zz], got %v", unknown)
		}
	})

	t.Run("Trims keys before matching", func(t *testing.T) {
		touched, unknown := computeTouched(columns, map[string]float64{" Final ": 9})
		if len(unknown) != 0 || len(touched) != 1 {
			t.Fatalf("Expected trimmed key to match, got touched=%v unknown=%v", touched, unknown)
		}
	})

	t.Run("Empty grades map touches nothing", func(t *testing.T) {
		touched, unknown := computeTouched(columns, nil)
		if len(touched) != 0 || len(unknown) != 0 {
			t.Fatalf("Expected empty result, got touched=%v unknown=%v", touched, unknown)
		}
	})
}

func TestMergeGrades(t *testing.T) {
	columns := testColumns()
	midterm, final := columns[0].ID, columns[1].ID

	t.Run("New row defaults untouched columns to zero", func(t *testing.T) {
		merged := mergeGrades(columns, []shared.Grade{{Column: final, Value: 8}}, nil)
		want := []shared.Grade{{Column: midterm, Value: 0}, {Column: final, Value: 8}}
		if !reflect.DeepEqual(merged, want) {
			t.Fatalf("Expected %+v, got %+v", want, merged)
		}
	})

	t.Run("Touched wins over existing", func(t *testing.T) {
		existing := &shared.GradeRow{Grades: []shared.Grade{
			{Column: midterm, Value: 5},
			{Column: final, Value: 6},
		}}
		merged := mergeGrades(columns, []shared.Grade{{Column: midterm, Value: 9}}, existing)
		want := []shared.Grade{{Column: midterm, Value: 9}, {Column: final, Value: 6}}
		if !reflect.DeepEqual(merged, want) {
			t.Fatalf("Expected %+v, got %+v", want, merged)
		}
	})

	t.Run("Result follows ordinal order", func(t *testing.T) {
		reversed := []shared.GradeColumn{columns[1], columns[0]}
		merged := mergeGrades(reversed, nil, nil)
		if merged[0].Column != midterm || merged[1].Column != final {
			t.Fatalf("Expected ordinal order, got %+v", merged)
		}
	})

	t.Run("Entries for removed columns are dropped", func(t *testing.T) {
		stale := &shared.GradeRow{Grades: []shared.Grade{
			{Column: primitive.NewObjectID(), Value: 4},
			{Column: midterm, Value: 5},
		}}
		merged := mergeGrades(columns, nil, stale)
		if len(merged) != 2 {
			t.Fatalf("Expected exactly one entry per column, got %+v", merged)
		}
		if v := merged[0].Value; v != 5 {
			t.Fatalf("Expected surviving value 5, got %g", v)
		}
	})
}

func TestBulkOutcome(t *testing.T) {
	t.Run("AllSucceeded without failures", func(t *testing.T) {
		outcome := &BulkOutcome{Total: 3, Succeeded: 3}
		if !outcome.AllSucceeded() {
			t.Fatal("Expected AllSucceeded to be true")
		}
	})

	t.Run("Partial outcome reports failures", func(t *testing.T) {
		outcome := &BulkOutcome{Total: 3, Succeeded: 2, Failures: []RowFailure{{StudentID: "20110001"}}}
		if outcome.AllSucceeded() {
			t.Fatal("Expected AllSucceeded to be false")
		}
	})
}

func TestErrorClassification(t *testing.T) {
	t.Run("Validation errors map to bad request", func(t *testing.T) {
		cases := []error{
			ErrWeightSum,
			ErrOrdinalSequence,
			ErrDuplicateColName,
			ErrUnsupportedFileType,
			ErrColumnCountMismatch,
			ErrAlreadyFinished,
			&UnknownColumnError{Keys: []string{"Bonus"}},
			&DuplicateStudentError{IDs: []string{"20110001"}},
			&CellError{Rule: CellRuleRequired, Row: 3, Column: "Full name"},
		}
		for _, err := range cases {
			if !IsValidationError(err) {
				t.Errorf("Expected %v to classify as validation error", err)
			}
		}
	})

	t.Run("Not-found errors are not validation errors", func(t *testing.T) {
		for _, err := range []error{ErrClassGradeNotFound, ErrColumnNotFound} {
			if IsValidationError(err) {
				t.Errorf("Expected %v to not classify as validation error", err)
			}
		}
	})

	t.Run("Unknown column message lists offending keys", func(t *testing.T) {
		err := &UnknownColumnError{Keys: []string{"Bonus", "Extra"}}
		want := "Invalid grade column name [Bonus, Extra] in request body"
		if err.Error() != want {
			t.Fatalf("Expected %q, got %q", want, err.Error())
		}
	})

	t.Run("Cell error messages carry location", func(t *testing.T) {
		invalid := &CellError{Rule: CellRuleInvalid, Row: 4, Column: "Final"}
		if invalid.Error() != "Grade must be a number at row 4 in column Final" {
			t.Fatalf("Unexpected message: %q", invalid.Error())
		}
		required := &CellError{Rule: CellRuleRequired, Row: 2, Column: "Full name"}
		if required.Error() != "Field is missing at row 2 in column 'Full name'" {
			t.Fatalf("Unexpected message: %q", required.Error())
		}
	})
}
