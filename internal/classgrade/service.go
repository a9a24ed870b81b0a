// ============================================================================
// internal/classgrade/service.go
// Gradebook engine: column registry, row reconciliation, grade upserts
// ============================================================================

package classgrade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

const queryTimeout = 5 * time.Second

// Service owns every read and write against the class_grades collection.
// All grade mutations in the system go through it.
type Service struct {
	db         *mongo.Database
	col        *mongo.Collection // class_grades
	classesCol *mongo.Collection
	usersCol   *mongo.Collection
}

// NewService creates a new gradebook service
func NewService(db *mongo.Database) *Service {
	return &Service{
		db:         db,
		col:        db.Collection("class_grades"),
		classesCol: db.Collection("classes"),
		usersCol:   db.Collection("users"),
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

// Create inserts the empty gradebook for a newly created class. Each class
// owns exactly one gradebook; the unique index on class enforces it.
func (s *Service) Create(ctx context.Context, classID primitive.ObjectID) (*shared.ClassGrade, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	doc := shared.ClassGrade{
		Class:        classID,
		GradeColumns: []shared.GradeColumn{},
		GradeRows:    []shared.GradeRow{},
		IsFinished:   false,
		CreatedAt:    time.Now(),
	}

	result, err := s.col.InsertOne(qCtx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create class grade: %w", err)
	}

	doc.ID = result.InsertedID.(primitive.ObjectID)
	log.Printf("Created gradebook %s for class %s", doc.ID.Hex(), classID.Hex())
	return &doc, nil
}

// Remove deletes a class's gradebook. Idempotent.
func (s *Service) Remove(ctx context.Context, classID primitive.ObjectID) error {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.col.DeleteOne(qCtx, bson.M{"class": classID}); err != nil {
		return fmt.Errorf("failed to remove class grade: %w", err)
	}
	return nil
}

// ============================================================================
// Views
// ============================================================================

// FindByClassID returns the full gradebook (teacher view).
func (s *Service) FindByClassID(ctx context.Context, classID primitive.ObjectID) (*shared.ClassGrade, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var doc shared.ClassGrade
	err := s.col.FindOne(qCtx, bson.M{"class": classID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrClassGradeNotFound
		}
		return nil, fmt.Errorf("failed to find class grade: %w", err)
	}
	return &doc, nil
}

// FindForStudent returns the gradebook narrowed to the caller's own row.
// Students only see grades once the teacher has marked the book finished.
func (s *Service) FindForStudent(ctx context.Context, classID primitive.ObjectID, user *shared.User) (*shared.ClassGrade, error) {
	doc, err := s.FindByClassID(ctx, classID)
	if err != nil {
		return nil, err
	}
	if !doc.IsFinished {
		return nil, ErrNotFinished
	}

	own := make([]shared.GradeRow, 0, 1)
	for _, row := range doc.GradeRows {
		if row.Student == user.ID || (user.StudentID != "" && row.StudentID == user.StudentID) {
			own = append(own, row)
			break
		}
	}
	doc.GradeRows = own
	return doc, nil
}

// ============================================================================
// Membership Checks
// ============================================================================

// IsTeacherOf verifies via $lookup that the user owns or teaches the class
// behind a gradebook. Returns ErrNotClassTeacher when membership fails.
func (s *Service) IsTeacherOf(ctx context.Context, classID, userID primitive.ObjectID) error {
	return s.checkMembership(ctx, classID, bson.M{"$or": []bson.M{
		{"class_doc.owner": userID},
		{"class_doc.teachers": userID},
	}}, ErrNotClassTeacher)
}

// IsStudentOf verifies via $lookup that the user is enrolled in the class
// behind a gradebook. Returns ErrNotClassStudent when membership fails.
func (s *Service) IsStudentOf(ctx context.Context, classID, userID primitive.ObjectID) error {
	return s.checkMembership(ctx, classID, bson.M{"class_doc.students": userID}, ErrNotClassStudent)
}

func (s *Service) checkMembership(ctx context.Context, classID primitive.ObjectID, match bson.M, denied error) error {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"class": classID}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "classes",
			"localField":   "class",
			"foreignField": "_id",
			"as":           "class_doc",
		}}},
		{{Key: "$unwind", Value: "$class_doc"}},
		{{Key: "$match", Value: match}},
		{{Key: "$limit", Value: 1}},
		{{Key: "$project", Value: bson.M{"_id": 1}}},
	}

	cursor, err := s.col.Aggregate(qCtx, pipeline)
	if err != nil {
		return fmt.Errorf("membership check failed: %w", err)
	}
	defer cursor.Close(qCtx)

	if cursor.Next(qCtx) {
		return nil
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("membership check failed: %w", err)
	}

	// Distinguish a missing gradebook from a denied caller
	count, err := s.col.CountDocuments(qCtx, bson.M{"class": classID})
	if err != nil {
		return fmt.Errorf("membership check failed: %w", err)
	}
	if count == 0 {
		return ErrClassGradeNotFound
	}
	return denied
}

// ============================================================================
// Column Registry
// ============================================================================

// ReplaceColumnSet validates and installs a full replacement column set, then
// reconciles every row against it. If reconciliation fails the previous
// column set is restored before the error is returned.
func (s *Service) ReplaceColumnSet(ctx context.Context, classID primitive.ObjectID, inputs []ColumnInput) (*shared.ClassGrade, error) {
	// 1. Validate the incoming set before touching storage
	if err := ValidateColumnSet(inputs); err != nil {
		return nil, err
	}

	// 2. Snapshot the current columns for rollback
	current, err := s.FindByClassID(ctx, classID)
	if err != nil {
		return nil, err
	}
	oldColumns := current.GradeColumns

	// 3. Install the new set (fresh ids for new columns, trimmed names)
	newColumns := buildColumnSet(inputs)
	if err := s.setColumns(ctx, classID, newColumns); err != nil {
		return nil, err
	}

	// 4. Reconcile rows; restore the old set if anything goes wrong
	if err := s.reconcile(ctx, classID, newColumns); err != nil {
		log.Printf("Column reconciliation failed for class %s, rolling back: %v", classID.Hex(), err)
		if rbErr := s.setColumns(ctx, classID, oldColumns); rbErr != nil {
			log.Printf("Rollback of column set failed for class %s: %v", classID.Hex(), rbErr)
		}
		return nil, err
	}

	log.Printf("Replaced column set for class %s (%d columns)", classID.Hex(), len(newColumns))
	return s.FindByClassID(ctx, classID)
}

func (s *Service) setColumns(ctx context.Context, classID primitive.ObjectID, columns []shared.GradeColumn) error {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.col.UpdateOne(qCtx,
		bson.M{"class": classID},
		bson.M{"$set": bson.M{"grade_columns": columns, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to set grade columns: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrClassGradeNotFound
	}
	return nil
}

// reconcile brings every grade row in line with the column set: an additive
// pass backfills a zero entry for each column absent from the rows, then a
// subtractive pass strips entries whose column no longer exists. Both passes
// are idempotent, so a retry after a partial failure converges.
func (s *Service) reconcile(ctx context.Context, classID primitive.ObjectID, columns []shared.GradeColumn) error {
	qCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Additive pass. A column is considered present once any row carries it;
	// rows never diverge on membership outside of a mid-reconcile window.
	for _, col := range columns {
		err := s.col.FindOne(qCtx, bson.M{
			"class":                    classID,
			"grade_rows.grades.column": col.ID,
		}).Err()
		if err == nil {
			continue
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("failed to probe column %s: %w", col.ID.Hex(), err)
		}

		_, err = s.col.UpdateOne(qCtx,
			bson.M{"class": classID},
			bson.M{"$addToSet": bson.M{
				"grade_rows.$[].grades": shared.Grade{Column: col.ID, Value: 0},
			}},
		)
		if err != nil {
			return fmt.Errorf("failed to backfill column %s: %w", col.ID.Hex(), err)
		}
	}

	// Subtractive pass
	ids := make([]primitive.ObjectID, len(columns))
	for i, col := range columns {
		ids[i] = col.ID
	}
	_, err := s.col.UpdateOne(qCtx,
		bson.M{"class": classID},
		bson.M{"$pull": bson.M{
			"grade_rows.$[].grades": bson.M{"column": bson.M{"$nin": ids}},
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to prune removed columns: %w", err)
	}

	return nil
}

// ============================================================================
// Grade Upserts
// ============================================================================

// RowUpdate is one student's grade change. Grades is keyed by column name and
// may cover any subset of columns; untouched columns keep their values (or
// default to zero for a brand-new row). Student and FullName are optional
// metadata, kept from the existing row when omitted.
type RowUpdate struct {
	RowID     primitive.ObjectID
	Student   primitive.ObjectID
	StudentID string
	FullName  string
	Grades    map[string]float64
}

// UpsertStudentGrade applies one RowUpdate and returns the reloaded document.
// The row is keyed by external student id: if a row for the student exists its
// grades are merged in place, otherwise a new row is appended.
func (s *Service) UpsertStudentGrade(ctx context.Context, classID primitive.ObjectID, upd RowUpdate) (*shared.ClassGrade, error) {
	if err := s.applyStudentGrade(ctx, classID, upd); err != nil {
		return nil, err
	}
	return s.FindByClassID(ctx, classID)
}

// applyStudentGrade performs the merge and write for one RowUpdate without
// reloading, so bulk updates skip the per-row refetch. The write is a single
// aggregation-pipeline update so concurrent upserts for different students
// never clobber each other's rows.
func (s *Service) applyStudentGrade(ctx context.Context, classID primitive.ObjectID, upd RowUpdate) error {
	if strings.TrimSpace(upd.StudentID) == "" {
		return &CellError{Rule: CellRuleRequired, Row: 0, Column: "Student ID"}
	}

	// 1. Load the current document for column resolution and merge base
	doc, err := s.FindByClassID(ctx, classID)
	if err != nil {
		return err
	}

	// 2. Resolve grade keys against the column set; reject unknown names
	touched, unknown := computeTouched(doc.GradeColumns, upd.Grades)
	if len(unknown) > 0 {
		return &UnknownColumnError{Keys: unknown}
	}

	// 3. Build the complete merged grades array for this student
	existing, _ := doc.RowForStudent(upd.StudentID)
	merged := mergeGrades(doc.GradeColumns, touched, existing)

	// 4. Carry metadata forward when the update omits it
	fullName := upd.FullName
	student := upd.Student
	rowID := upd.RowID
	if existing != nil {
		if fullName == "" {
			fullName = existing.FullName
		}
		if student.IsZero() {
			student = existing.Student
		}
		rowID = existing.ID
	}
	if rowID.IsZero() {
		rowID = primitive.NewObjectID()
	}

	newRow := shared.GradeRow{
		ID:        rowID,
		Student:   student,
		StudentID: upd.StudentID,
		FullName:  fullName,
		Grades:    merged,
	}

	// 5. Conditional array rewrite: replace the student's row in place when
	// it exists at write time, append otherwise
	rewritten := bson.M{"$map": bson.M{
		"input": "$grade_rows",
		"as":    "row",
		"in": bson.M{"$cond": bson.M{
			"if":   bson.M{"$eq": []interface{}{"$$row.student_id", upd.StudentID}},
			"then": bson.M{"$mergeObjects": []interface{}{"$$row", bson.M{
				"full_name": fullName,
				"grades":    merged,
			}}},
			"else": "$$row",
		}},
	}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"grade_rows": bson.M{"$cond": bson.M{
				"if":   bson.M{"$in": []interface{}{upd.StudentID, "$grade_rows.student_id"}},
				"then": rewritten,
				"else": bson.M{"$concatArrays": []interface{}{"$grade_rows", []shared.GradeRow{newRow}}},
			}},
			"updated_at": time.Now(),
		}}},
	}

	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.col.UpdateOne(qCtx, bson.M{"class": classID}, pipeline)
	if err != nil {
		return fmt.Errorf("failed to upsert grade row: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrClassGradeNotFound
	}
	return nil
}

// computeTouched resolves name-keyed grade values to column-keyed entries.
// Unknown names are collected (sorted) rather than failing fast, so the
// caller sees every offending key at once.
func computeTouched(columns []shared.GradeColumn, grades map[string]float64) ([]shared.Grade, []string) {
	byName := make(map[string]primitive.ObjectID, len(columns))
	for _, col := range columns {
		byName[col.Name] = col.ID
	}

	touched := make([]shared.Grade, 0, len(grades))
	var unknown []string
	for name, value := range grades {
		colID, ok := byName[strings.TrimSpace(name)]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		touched = append(touched, shared.Grade{Column: colID, Value: value})
	}
	sort.Strings(unknown)
	return touched, unknown
}

// mergeGrades produces the student's complete grades array in ordinal order:
// touched values win, existing values survive for untouched columns, and any
// column the row has never seen defaults to zero.
func mergeGrades(columns []shared.GradeColumn, touched []shared.Grade, existing *shared.GradeRow) []shared.Grade {
	touchedBy := make(map[primitive.ObjectID]float64, len(touched))
	for _, g := range touched {
		touchedBy[g.Column] = g.Value
	}

	merged := make([]shared.Grade, 0, len(columns))
	for _, col := range sortedByOrdinal(columns) {
		value := 0.0
		if existing != nil {
			if v, ok := existing.GradeFor(col.ID); ok {
				value = v
			}
		}
		if v, ok := touchedBy[col.ID]; ok {
			value = v
		}
		merged = append(merged, shared.Grade{Column: col.ID, Value: value})
	}
	return merged
}

// ============================================================================
// Bulk Upserts
// ============================================================================

// RowFailure records one row that could not be applied in a bulk update.
type RowFailure struct {
	StudentID string `json:"student_id"`
	Message   string `json:"message"`
}

// BulkOutcome summarizes a bulk grade update. Rows are independent, so a
// partial result is possible and the caller must inspect Failures.
type BulkOutcome struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failures  []RowFailure `json:"failures,omitempty"`
}

// AllSucceeded reports whether every row was applied.
func (o *BulkOutcome) AllSucceeded() bool {
	return len(o.Failures) == 0
}

// UpdateManyGrades applies each RowUpdate concurrently. One row failing does
// not stop or undo the others.
func (s *Service) UpdateManyGrades(ctx context.Context, classID primitive.ObjectID, updates []RowUpdate) (*BulkOutcome, error) {
	outcome := &BulkOutcome{Total: len(updates)}
	if len(updates) == 0 {
		return outcome, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(8)

	for _, upd := range updates {
		upd := upd
		g.Go(func() error {
			if err := s.applyStudentGrade(ctx, classID, upd); err != nil {
				mu.Lock()
				outcome.Failures = append(outcome.Failures, RowFailure{
					StudentID: upd.StudentID,
					Message:   err.Error(),
				})
				mu.Unlock()
			}
			// Failures are reported per row, never propagated through the
			// group, so every row gets its attempt.
			return nil
		})
	}
	g.Wait()

	outcome.Succeeded = outcome.Total - len(outcome.Failures)
	sort.Slice(outcome.Failures, func(i, j int) bool {
		return outcome.Failures[i].StudentID < outcome.Failures[j].StudentID
	})

	log.Printf("Bulk grade update for class %s: %d/%d rows applied", classID.Hex(), outcome.Succeeded, outcome.Total)
	return outcome, nil
}

// RemoveGradeRow pulls one row from the gradebook and returns the reloaded
// document. Removing an absent row is not an error.
func (s *Service) RemoveGradeRow(ctx context.Context, classID, rowID primitive.ObjectID) (*shared.ClassGrade, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.col.UpdateOne(qCtx,
		bson.M{"class": classID},
		bson.M{"$pull": bson.M{"grade_rows": bson.M{"_id": rowID}}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to remove grade row: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, ErrClassGradeNotFound
	}
	return s.FindByClassID(ctx, classID)
}

// ============================================================================
// Finished Flag
// ============================================================================

// Grade effect event names
const (
	EventGradeFinished   = "class_grades.finished"
	EventGradeUnfinished = "class_grades.unfinished"
)

// GradeEffect describes the side effect a finish-flag change asks the caller
// to apply (notification fan-out to the class roster). The engine returns it
// instead of publishing anywhere itself.
type GradeEffect struct {
	Event     string
	Class     primitive.ObjectID
	Title     string
	Message   string
	Sender    primitive.ObjectID
	Receivers []primitive.ObjectID
	RefURL    string
}

// MarkFinished flips the gradebook to finished and returns the notification
// effect for the class roster. Finishing an already-finished book is an error.
func (s *Service) MarkFinished(ctx context.Context, classID primitive.ObjectID) (*GradeEffect, error) {
	doc, err := s.FindByClassID(ctx, classID)
	if err != nil {
		return nil, err
	}
	if doc.IsFinished {
		return nil, ErrAlreadyFinished
	}

	if err := s.setFinished(ctx, classID, true); err != nil {
		return nil, err
	}

	class, owner, err := s.classWithOwner(ctx, classID)
	if err != nil {
		return nil, err
	}

	log.Printf("Gradebook for class %s marked finished", classID.Hex())
	return &GradeEffect{
		Event:     EventGradeFinished,
		Class:     classID,
		Title:     class.Name,
		Message:   fmt.Sprintf("Teacher %s has finished the grade of class. Please check it out!", owner.DisplayName()),
		Sender:    class.Owner,
		Receivers: class.Students,
		RefURL:    fmt.Sprintf("/class/%s/grade", classID.Hex()),
	}, nil
}

// MarkUnfinished reopens the gradebook. Idempotent.
func (s *Service) MarkUnfinished(ctx context.Context, classID primitive.ObjectID) (*GradeEffect, error) {
	if err := s.setFinished(ctx, classID, false); err != nil {
		return nil, err
	}

	class, _, err := s.classWithOwner(ctx, classID)
	if err != nil {
		return nil, err
	}

	log.Printf("Gradebook for class %s marked unfinished", classID.Hex())
	return &GradeEffect{
		Event:     EventGradeUnfinished,
		Class:     classID,
		Title:     class.Name,
		Sender:    class.Owner,
		Receivers: class.Students,
	}, nil
}

func (s *Service) setFinished(ctx context.Context, classID primitive.ObjectID, finished bool) error {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.col.UpdateOne(qCtx,
		bson.M{"class": classID},
		bson.M{"$set": bson.M{"isFinished": finished, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update finished flag: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrClassGradeNotFound
	}
	return nil
}

func (s *Service) classWithOwner(ctx context.Context, classID primitive.ObjectID) (*shared.Class, *shared.User, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var class shared.Class
	if err := s.classesCol.FindOne(qCtx, bson.M{"_id": classID}).Decode(&class); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, ErrClassGradeNotFound
		}
		return nil, nil, fmt.Errorf("failed to find class: %w", err)
	}

	var owner shared.User
	if err := s.usersCol.FindOne(qCtx, bson.M{"_id": class.Owner}).Decode(&owner); err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil, fmt.Errorf("failed to find class owner: %w", err)
	}
	return &class, &owner, nil
}

// ============================================================================
// Column Statistics
// ============================================================================

// ColumnStatsEntry is the per-column summary for the teacher dashboard.
type ColumnStatsEntry struct {
	Column primitive.ObjectID `json:"column"`
	Name   string             `json:"name"`
	Count  int                `json:"count"`
	Mean   float64            `json:"mean"`
	Median float64            `json:"median"`
	StdDev float64            `json:"std_dev"`
	Min    float64            `json:"min"`
	Max    float64            `json:"max"`
}

// ColumnStats computes descriptive statistics for every column across all
// rows of a gradebook.
func (s *Service) ColumnStats(ctx context.Context, classID primitive.ObjectID) ([]ColumnStatsEntry, error) {
	doc, err := s.FindByClassID(ctx, classID)
	if err != nil {
		return nil, err
	}

	entries := make([]ColumnStatsEntry, 0, len(doc.GradeColumns))
	for _, col := range sortedByOrdinal(doc.GradeColumns) {
		values := make(stats.Float64Data, 0, len(doc.GradeRows))
		for _, row := range doc.GradeRows {
			if v, ok := row.GradeFor(col.ID); ok {
				values = append(values, v)
			}
		}

		entry := ColumnStatsEntry{Column: col.ID, Name: col.Name, Count: len(values)}
		if len(values) > 0 {
			entry.Mean, _ = stats.Mean(values)
			entry.Median, _ = stats.Median(values)
			entry.StdDev, _ = stats.StandardDeviation(values)
			entry.Min, _ = stats.Min(values)
			entry.Max, _ = stats.Max(values)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
