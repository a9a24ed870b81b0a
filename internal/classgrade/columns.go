// ============================================================================
// internal/classgrade/columns.go
// Column set validation and construction
// ============================================================================

package classgrade

import (
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

// ColumnInput is one column in a replace-column-set request. ID is empty for
// columns being created; an existing hex id keeps the column's grades.
type ColumnInput struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name" validate:"required,max=100"`
	Ordinal    int     `json:"ordinal" validate:"min=0"`
	ScaleValue float64 `json:"scaleValue" validate:"min=0,max=100"`
}

// ValidateColumnSet checks the three column-set invariants. An empty set is
// always valid (a gradebook may have no columns yet).
func ValidateColumnSet(columns []ColumnInput) error {
	if len(columns) == 0 {
		return nil
	}

	// 1. Scale values sum to exactly 100
	var total float64
	for _, c := range columns {
		total += c.ScaleValue
	}
	if total != shared.ColumnScaleTotal {
		return ErrWeightSum
	}

	// 2. Ordinals form the exact sequence 0..n-1
	ordinals := make([]int, len(columns))
	for i, c := range columns {
		ordinals[i] = c.Ordinal
	}
	sort.Ints(ordinals)
	for i, ord := range ordinals {
		if ord != i {
			return ErrOrdinalSequence
		}
	}

	// 3. Names unique after trimming
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		name := strings.TrimSpace(c.Name)
		if len(name) > shared.MaxColumnNameLength {
			return ErrColumnNameTooLong
		}
		if seen[name] {
			return ErrDuplicateColName
		}
		seen[name] = true
	}

	return nil
}

// buildColumnSet turns validated inputs into stored columns, minting a fresh
// ObjectID for every column submitted without one. Inputs with a malformed id
// are treated as new columns rather than rejected, so a client resubmitting a
// stale id cannot silently claim another column's grades.
func buildColumnSet(columns []ColumnInput) []shared.GradeColumn {
	result := make([]shared.GradeColumn, 0, len(columns))
	for _, c := range columns {
		id := primitive.NewObjectID()
		if c.ID != "" {
			if parsed, err := primitive.ObjectIDFromHex(c.ID); err == nil {
				id = parsed
			}
		}
		result = append(result, shared.GradeColumn{
			ID:         id,
			Name:       strings.TrimSpace(c.Name),
			Ordinal:    c.Ordinal,
			ScaleValue: c.ScaleValue,
		})
	}
	return result
}

// sortedByOrdinal returns a copy ordered for display and export.
func sortedByOrdinal(columns []shared.GradeColumn) []shared.GradeColumn {
	out := make([]shared.GradeColumn, len(columns))
	copy(out, columns)
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}
