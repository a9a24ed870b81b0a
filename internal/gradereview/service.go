// ============================================================================
// internal/gradereview/service.go
// Grade review requests: create, discuss, resolve
// ============================================================================

package gradereview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Dqvinh20/awp-go-be/internal/classgrade"
	"github.com/Dqvinh20/awp-go-be/internal/notification"
	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

const queryTimeout = 5 * time.Second

var (
	ErrReviewNotFound  = errors.New("grade review not found")
	ErrReviewFinished  = errors.New("grade review is already finished")
	ErrOpenReviewExist = errors.New("You already have an open review for this grade")
	ErrNoGradeRow      = errors.New("You have no grade row in this class")
)

// Service manages grade review requests. All grade changes a review produces
// go through the gradebook engine, never directly to storage.
type Service struct {
	col           *mongo.Collection
	classesCol    *mongo.Collection
	grades        *classgrade.Service
	notifications *notification.Service
}

// NewService creates a new grade review service
func NewService(db *mongo.Database, grades *classgrade.Service, notifications *notification.Service) *Service {
	return &Service{
		col:           db.Collection("grade_reviews"),
		classesCol:    db.Collection("classes"),
		grades:        grades,
		notifications: notifications,
	}
}

// CreateReviewInput is a student's request to re-examine one grade
type CreateReviewInput struct {
	ClassID       string  `json:"class_id" validate:"required"`
	ColumnID      string  `json:"column_id" validate:"required"`
	ExpectedGrade float64 `json:"expected_grade" validate:"min=0,max=10"`
	Explanation   string  `json:"explanation" validate:"max=2000"`
}

// Create opens a review for one of the caller's grades. The current grade and
// column name are snapshotted so the request stays meaningful even if the
// column set changes later.
func (s *Service) Create(ctx context.Context, student *shared.User, input CreateReviewInput) (*shared.GradeReview, error) {
	classID, err := primitive.ObjectIDFromHex(input.ClassID)
	if err != nil {
		return nil, classgrade.ErrClassGradeNotFound
	}
	columnID, err := primitive.ObjectIDFromHex(input.ColumnID)
	if err != nil {
		return nil, classgrade.ErrColumnNotFound
	}

	// 1. Caller must be a student of the class
	if err := s.grades.IsStudentOf(ctx, classID, student.ID); err != nil {
		return nil, err
	}

	// 2. Snapshot the column and the current grade
	doc, err := s.grades.FindByClassID(ctx, classID)
	if err != nil {
		return nil, err
	}
	column, ok := doc.ColumnByID(columnID)
	if !ok {
		return nil, classgrade.ErrColumnNotFound
	}
	row, ok := doc.RowForStudent(student.StudentID)
	if !ok {
		return nil, ErrNoGradeRow
	}
	currentGrade, _ := row.GradeFor(columnID)

	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 3. One open review per class/student/column
	count, err := s.col.CountDocuments(qCtx, bson.M{
		"class":           classID,
		"request_student": student.ID,
		"column":          columnID,
		"isFinished":      false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check open reviews: %w", err)
	}
	if count > 0 {
		return nil, ErrOpenReviewExist
	}

	review := shared.GradeReview{
		Class:          classID,
		RequestStudent: student.ID,
		StudentID:      student.StudentID,
		Column:         columnID,
		ColumnName:     column.Name,
		CurrentGrade:   currentGrade,
		ExpectedGrade:  input.ExpectedGrade,
		Explanation:    input.Explanation,
		Comments:       []shared.ReviewComment{},
		CreatedAt:      time.Now(),
	}

	result, err := s.col.InsertOne(qCtx, review)
	if err != nil {
		return nil, fmt.Errorf("failed to create grade review: %w", err)
	}
	review.ID = result.InsertedID.(primitive.ObjectID)

	// 4. Tell the teaching staff
	if class, cErr := s.findClass(ctx, classID); cErr == nil {
		receivers := append([]primitive.ObjectID{class.Owner}, class.Teachers...)
		nErr := s.notifications.Notify(ctx, &shared.Notification{
			Title:     class.Name,
			Message:   fmt.Sprintf("%s requested a review of %s", student.DisplayName(), column.Name),
			Sender:    student.ID,
			Receivers: receivers,
			Class:     classID,
			RefURL:    fmt.Sprintf("/class/%s/grade-review/%s", classID.Hex(), review.ID.Hex()),
		})
		if nErr != nil {
			log.Printf("Failed to notify teachers about review %s: %v", review.ID.Hex(), nErr)
		}
	}

	log.Printf("Student %s opened review %s for column %s", student.ID.Hex(), review.ID.Hex(), columnID.Hex())
	return &review, nil
}

// FindByID returns one review.
func (s *Service) FindByID(ctx context.Context, id primitive.ObjectID) (*shared.GradeReview, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var review shared.GradeReview
	if err := s.col.FindOne(qCtx, bson.M{"_id": id}).Decode(&review); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to find grade review: %w", err)
	}
	return &review, nil
}

// FindAllByStudent lists the caller's own reviews, newest first.
func (s *Service) FindAllByStudent(ctx context.Context, studentID primitive.ObjectID) ([]shared.GradeReview, error) {
	return s.list(ctx, bson.M{"request_student": studentID})
}

// FindAllByTeacher lists reviews across every class the caller owns or
// teaches.
func (s *Service) FindAllByTeacher(ctx context.Context, teacherID primitive.ObjectID) ([]shared.GradeReview, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cursor, err := s.classesCol.Find(qCtx, bson.M{"$or": []bson.M{
		{"owner": teacherID},
		{"teachers": teacherID},
	}}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	defer cursor.Close(qCtx)

	var classes []shared.Class
	if err := cursor.All(qCtx, &classes); err != nil {
		return nil, fmt.Errorf("failed to decode classes: %w", err)
	}
	if len(classes) == 0 {
		return []shared.GradeReview{}, nil
	}

	ids := make([]primitive.ObjectID, len(classes))
	for i, c := range classes {
		ids[i] = c.ID
	}
	return s.list(ctx, bson.M{"class": bson.M{"$in": ids}})
}

func (s *Service) list(ctx context.Context, filter bson.M) ([]shared.GradeReview, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.col.Find(qCtx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list grade reviews: %w", err)
	}
	defer cursor.Close(qCtx)

	var reviews []shared.GradeReview
	if err := cursor.All(qCtx, &reviews); err != nil {
		return nil, fmt.Errorf("failed to decode grade reviews: %w", err)
	}
	return reviews, nil
}

// AddComment appends to the review thread. The caller must be the requesting
// student or a teacher of the class.
func (s *Service) AddComment(ctx context.Context, reviewID primitive.ObjectID, user *shared.User, comment string) (*shared.GradeReview, error) {
	review, err := s.FindByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.IsFinished {
		return nil, ErrReviewFinished
	}

	if err := s.checkParticipant(ctx, review, user); err != nil {
		return nil, err
	}

	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	entry := shared.ReviewComment{Comment: comment, Sender: user.ID, CreatedAt: time.Now()}
	_, err = s.col.UpdateOne(qCtx,
		bson.M{"_id": reviewID},
		bson.M{
			"$push": bson.M{"comments": entry},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}

	review.Comments = append(review.Comments, entry)
	return review, nil
}

// MarkFinished resolves a review: the teacher's final grade is written
// through the gradebook engine, then the review is closed.
func (s *Service) MarkFinished(ctx context.Context, reviewID primitive.ObjectID, teacher *shared.User, finalGrade float64) (*shared.GradeReview, error) {
	review, err := s.FindByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.IsFinished {
		return nil, ErrReviewFinished
	}

	if err := s.grades.IsTeacherOf(ctx, review.Class, teacher.ID); err != nil {
		return nil, err
	}

	// Resolve the column's current name; the snapshot may be stale
	doc, err := s.grades.FindByClassID(ctx, review.Class)
	if err != nil {
		return nil, err
	}
	column, ok := doc.ColumnByID(review.Column)
	if !ok {
		return nil, classgrade.ErrColumnNotFound
	}

	_, err = s.grades.UpsertStudentGrade(ctx, review.Class, classgrade.RowUpdate{
		StudentID: review.StudentID,
		Grades:    map[string]float64{column.Name: finalGrade},
	})
	if err != nil {
		return nil, err
	}

	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = s.col.UpdateOne(qCtx,
		bson.M{"_id": reviewID},
		bson.M{"$set": bson.M{
			"isFinished":    true,
			"updated_grade": finalGrade,
			"updated_at":    time.Now(),
		}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to finish grade review: %w", err)
	}

	if class, cErr := s.findClass(ctx, review.Class); cErr == nil {
		nErr := s.notifications.Notify(ctx, &shared.Notification{
			Title:     class.Name,
			Message:   fmt.Sprintf("Your review of %s has been resolved with grade %g", column.Name, finalGrade),
			Sender:    teacher.ID,
			Receivers: []primitive.ObjectID{review.RequestStudent},
			Class:     review.Class,
			RefURL:    fmt.Sprintf("/class/%s/grade-review/%s", review.Class.Hex(), reviewID.Hex()),
		})
		if nErr != nil {
			log.Printf("Failed to notify student about review %s: %v", reviewID.Hex(), nErr)
		}
	}

	review.IsFinished = true
	review.UpdatedGrade = finalGrade
	log.Printf("Review %s finished by teacher %s with grade %g", reviewID.Hex(), teacher.ID.Hex(), finalGrade)
	return review, nil
}

func (s *Service) checkParticipant(ctx context.Context, review *shared.GradeReview, user *shared.User) error {
	if review.RequestStudent == user.ID {
		return nil
	}
	return s.grades.IsTeacherOf(ctx, review.Class, user.ID)
}

func (s *Service) findClass(ctx context.Context, classID primitive.ObjectID) (*shared.Class, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var class shared.Class
	if err := s.classesCol.FindOne(qCtx, bson.M{"_id": classID}).Decode(&class); err != nil {
		return nil, fmt.Errorf("failed to find class: %w", err)
	}
	return &class, nil
}
