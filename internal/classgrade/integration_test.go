package classgrade

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

// setupTestService connects to the MongoDB named by MONGO_URI and returns a
// service bound to a throwaway database. Tests are skipped when no MongoDB
// is available.
func setupTestService(t *testing.T) (*Service, func()) {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping MongoDB-backed tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	dbName := fmt.Sprintf("gradebook_test_%d", time.Now().UnixNano())
	db := client.Database(dbName)

	cleanup := func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		db.Drop(dropCtx)
		client.Disconnect(dropCtx)
	}

	return NewService(db), cleanup
}

func replaceColumns(t *testing.T, s *Service, classID primitive.ObjectID, inputs []ColumnInput) *shared.ClassGrade {
	t.Helper()
	doc, err := s.ReplaceColumnSet(context.Background(), classID, inputs)
	if err != nil {
		t.Fatalf("ReplaceColumnSet failed: %v", err)
	}
	return doc
}

func TestGradebookLifecycle(t *testing.T) {
	s, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	classID := primitive.NewObjectID()

	created, err := s.Create(ctx, classID)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.IsFinished || len(created.GradeColumns) != 0 || len(created.GradeRows) != 0 {
		t.Fatalf("Expected empty unfinished gradebook, got %+v", created)
	}

	t.Run("Upsert appends then merges", func(t *testing.T) {
		replaceColumns(t, s, classID, []ColumnInput{
			{Name: "Midterm", Ordinal: 0, ScaleValue: 40},
			{Name: "Final", Ordinal: 1, ScaleValue: 60},
		})

		doc, err := s.UpsertStudentGrade(ctx, classID, RowUpdate{
			StudentID: "20110001",
			FullName:  "An Nguyen",
			Grades:    map[string]float64{"Midterm": 7},
		})
		if err != nil {
			t.Fatalf("UpsertStudentGrade failed: %v", err)
		}
		row, ok := doc.RowForStudent("20110001")
		if !ok {
			t.Fatal("Expected row to be appended")
		}
		if len(row.Grades) != 2 {
			t.Fatalf("Expected one entry per column, got %d", len(row.Grades))
		}
		firstRowID := row.ID

		// Second upsert touches the other column; the first value survives
		doc, err = s.UpsertStudentGrade(ctx, classID, RowUpdate{
			StudentID: "20110001",
			Grades:    map[string]float64{"Final": 9},
		})
		if err != nil {
			t.Fatalf("Second upsert failed: %v", err)
		}
		row, _ = doc.RowForStudent("20110001")
		if row.ID != firstRowID {
			t.Fatal("Expected in-place merge to keep the row id")
		}
		midterm, _ := doc.ColumnByID(doc.GradeColumns[0].ID)
		if v, _ := row.GradeFor(midterm.ID); v != 7 {
			t.Fatalf("Expected untouched Midterm to stay 7, got %g", v)
		}
	})

	t.Run("Unknown grade key rejected with all offenders", func(t *testing.T) {
		_, err := s.UpsertStudentGrade(ctx, classID, RowUpdate{
			StudentID: "20110001",
			Grades:    map[string]float64{"Bonus": 1, "Extra": 2},
		})
		var unknownErr *UnknownColumnError
		if !errors.As(err, &unknownErr) {
			t.Fatalf("Expected UnknownColumnError, got %v", err)
		}
		if len(unknownErr.Keys) != 2 {
			t.Fatalf("Expected both offending keys, got %v", unknownErr.Keys)
		}
	})

	t.Run("Reconciliation backfills and prunes", func(t *testing.T) {
		doc, _ := s.FindByClassID(ctx, classID)
		keepID := doc.GradeColumns[0].ID

		// Replace with: keep Midterm, drop Final, add Quiz
		updated := replaceColumns(t, s, classID, []ColumnInput{
			{ID: keepID.Hex(), Name: "Midterm", Ordinal: 0, ScaleValue: 50},
			{Name: "Quiz", Ordinal: 1, ScaleValue: 50},
		})

		row, _ := updated.RowForStudent("20110001")
		if len(row.Grades) != 2 {
			t.Fatalf("Expected 2 entries after reconcile, got %d", len(row.Grades))
		}
		if v, ok := row.GradeFor(keepID); !ok || v != 7 {
			t.Fatalf("Expected kept column to retain 7, got (%g, %t)", v, ok)
		}
		quiz := updated.GradeColumns[1]
		if v, ok := row.GradeFor(quiz.ID); !ok || v != 0 {
			t.Fatalf("Expected new column to backfill 0, got (%g, %t)", v, ok)
		}

		// Running the same replacement again changes nothing
		again := replaceColumns(t, s, classID, []ColumnInput{
			{ID: keepID.Hex(), Name: "Midterm", Ordinal: 0, ScaleValue: 50},
			{ID: quiz.ID.Hex(), Name: "Quiz", Ordinal: 1, ScaleValue: 50},
		})
		rowAgain, _ := again.RowForStudent("20110001")
		if len(rowAgain.Grades) != 2 {
			t.Fatalf("Expected reconcile to be idempotent, got %d entries", len(rowAgain.Grades))
		}
	})

	t.Run("Re-added column name starts from zero", func(t *testing.T) {
		doc, _ := s.FindByClassID(ctx, classID)
		quizID := doc.GradeColumns[1].ID

		// Drop Midterm entirely, then bring the name back without its old id
		replaceColumns(t, s, classID, []ColumnInput{
			{ID: quizID.Hex(), Name: "Quiz", Ordinal: 0, ScaleValue: 100},
		})
		updated := replaceColumns(t, s, classID, []ColumnInput{
			{ID: quizID.Hex(), Name: "Quiz", Ordinal: 0, ScaleValue: 50},
			{Name: "Midterm", Ordinal: 1, ScaleValue: 50},
		})

		midterm := updated.GradeColumns[1]
		row, _ := updated.RowForStudent("20110001")
		if v, ok := row.GradeFor(midterm.ID); !ok || v != 0 {
			t.Fatalf("Expected re-added column to reset to 0, got (%g, %t)", v, ok)
		}
	})

	t.Run("Bulk update is per-row independent", func(t *testing.T) {
		outcome, err := s.UpdateManyGrades(ctx, classID, []RowUpdate{
			{StudentID: "20110002", FullName: "Binh Tran", Grades: map[string]float64{"Midterm": 6}},
			{StudentID: "20110003", FullName: "Chi Le", Grades: map[string]float64{"Nope": 1}},
		})
		if err != nil {
			t.Fatalf("UpdateManyGrades failed: %v", err)
		}
		if outcome.Succeeded != 1 || len(outcome.Failures) != 1 {
			t.Fatalf("Expected 1 success and 1 failure, got %+v", outcome)
		}
		if outcome.Failures[0].StudentID != "20110003" {
			t.Fatalf("Expected the bad row to fail, got %+v", outcome.Failures)
		}
	})

	t.Run("Row removal is idempotent", func(t *testing.T) {
		doc, _ := s.FindByClassID(ctx, classID)
		row, _ := doc.RowForStudent("20110002")
		if _, err := s.RemoveGradeRow(ctx, classID, row.ID); err != nil {
			t.Fatalf("RemoveGradeRow failed: %v", err)
		}
		doc, err := s.RemoveGradeRow(ctx, classID, row.ID)
		if err != nil {
			t.Fatalf("Second RemoveGradeRow failed: %v", err)
		}
		if _, ok := doc.RowForStudent("20110002"); ok {
			t.Fatal("Expected row to be gone")
		}
	})

	t.Run("Finished flag", func(t *testing.T) {
		// MarkFinished needs the class and owner documents
		owner := shared.User{ID: primitive.NewObjectID(), FirstName: "Tran", LastName: "Binh", Role: shared.RoleTeacher}
		if _, err := s.usersCol.InsertOne(ctx, owner); err != nil {
			t.Fatalf("Failed to insert owner: %v", err)
		}
		_, err := s.classesCol.InsertOne(ctx, bson.M{
			"_id": classID, "name": "AWP", "owner": owner.ID,
			"teachers": []primitive.ObjectID{}, "students": []primitive.ObjectID{},
		})
		if err != nil {
			t.Fatalf("Failed to insert class: %v", err)
		}

		effect, err := s.MarkFinished(ctx, classID)
		if err != nil {
			t.Fatalf("MarkFinished failed: %v", err)
		}
		if effect.Event != EventGradeFinished || effect.Title != "AWP" {
			t.Fatalf("Unexpected effect: %+v", effect)
		}

		if _, err := s.MarkFinished(ctx, classID); !errors.Is(err, ErrAlreadyFinished) {
			t.Fatalf("Expected ErrAlreadyFinished, got %v", err)
		}

		// Reopening twice is fine
		if _, err := s.MarkUnfinished(ctx, classID); err != nil {
			t.Fatalf("MarkUnfinished failed: %v", err)
		}
		if _, err := s.MarkUnfinished(ctx, classID); err != nil {
			t.Fatalf("Second MarkUnfinished failed: %v", err)
		}
	})
}
