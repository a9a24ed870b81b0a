// ============================================================================
// internal/class/service.go
// Class lifecycle and membership
// ============================================================================

package class

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Dqvinh20/awp-go-be/internal/classgrade"
	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

const queryTimeout = 5 * time.Second

var (
	ErrClassNotFound = errors.New("class not found")
	ErrAlreadyJoined = errors.New("You are already a member of this class")
	ErrNoStudentID   = errors.New("Your account has no student id, please set it before joining a class")
	ErrNotATeacher   = errors.New("Only teachers can create classes")
)

// Join codes are short and unambiguous (no 0/O or 1/I/l)
const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 7
)

// Service manages class documents. Creating a class also creates its
// gradebook, and a student joining gets a grade row, so the service holds the
// gradebook engine.
type Service struct {
	col    *mongo.Collection
	grades *classgrade.Service
}

// NewService creates a new class service
func NewService(db *mongo.Database, grades *classgrade.Service) *Service {
	return &Service{
		col:    db.Collection("classes"),
		grades: grades,
	}
}

// CreateClassInput is the payload for creating a class
type CreateClassInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// Create inserts a class owned by the caller together with its empty
// gradebook. The owner is not listed among teachers or students.
func (s *Service) Create(ctx context.Context, owner *shared.User, input CreateClassInput) (*shared.Class, error) {
	if owner.Role != shared.RoleTeacher && owner.Role != shared.RoleAdmin {
		return nil, ErrNotATeacher
	}

	code, err := generateJoinCode()
	if err != nil {
		return nil, err
	}

	doc := shared.Class{
		Code:        code,
		Name:        input.Name,
		Description: input.Description,
		Owner:       owner.ID,
		Teachers:    []primitive.ObjectID{},
		Students:    []primitive.ObjectID{},
		CreatedAt:   time.Now(),
	}

	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.col.InsertOne(qCtx, doc)
	if err != nil {
		// Regenerate once on a join-code collision
		if mongo.IsDuplicateKeyError(err) {
			if doc.Code, err = generateJoinCode(); err != nil {
				return nil, err
			}
			if result, err = s.col.InsertOne(qCtx, doc); err != nil {
				return nil, fmt.Errorf("failed to create class: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to create class: %w", err)
		}
	}
	doc.ID = result.InsertedID.(primitive.ObjectID)

	// Every class owns exactly one gradebook; undo the class if it cannot
	// be created
	if _, err := s.grades.Create(ctx, doc.ID); err != nil {
		if _, delErr := s.col.DeleteOne(qCtx, bson.M{"_id": doc.ID}); delErr != nil {
			log.Printf("Failed to clean up class %s after gradebook error: %v", doc.ID.Hex(), delErr)
		}
		return nil, err
	}

	log.Printf("Created class %s (%s) with join code %s", doc.ID.Hex(), doc.Name, doc.Code)
	return &doc, nil
}

// FindByID returns one class.
func (s *Service) FindByID(ctx context.Context, id primitive.ObjectID) (*shared.Class, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var doc shared.Class
	if err := s.col.FindOne(qCtx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to find class: %w", err)
	}
	return &doc, nil
}

// FindForUser lists every class the user owns, teaches or attends.
func (s *Service) FindForUser(ctx context.Context, userID primitive.ObjectID) ([]shared.Class, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{"$or": []bson.M{
		{"owner": userID},
		{"teachers": userID},
		{"students": userID},
	}}

	cursor, err := s.col.Find(qCtx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	defer cursor.Close(qCtx)

	var classes []shared.Class
	if err := cursor.All(qCtx, &classes); err != nil {
		return nil, fmt.Errorf("failed to decode classes: %w", err)
	}
	return classes, nil
}

// JoinByCode enrolls a student via the class join code and creates the
// student's grade row with zeroes for every current column.
func (s *Service) JoinByCode(ctx context.Context, code string, user *shared.User) (*shared.Class, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var doc shared.Class
	if err := s.col.FindOne(qCtx, bson.M{"code": code}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to find class: %w", err)
	}

	if doc.HasTeacher(user.ID) || doc.HasStudent(user.ID) {
		return nil, ErrAlreadyJoined
	}
	if user.StudentID == "" {
		return nil, ErrNoStudentID
	}

	_, err := s.col.UpdateOne(qCtx,
		bson.M{"_id": doc.ID},
		bson.M{
			"$addToSet": bson.M{"students": user.ID},
			"$set":      bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to join class: %w", err)
	}
	doc.Students = append(doc.Students, user.ID)

	// Seed the student's row so the gradebook shows every member
	_, err = s.grades.UpsertStudentGrade(ctx, doc.ID, classgrade.RowUpdate{
		Student:   user.ID,
		StudentID: user.StudentID,
		FullName:  user.DisplayName(),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("User %s joined class %s as student", user.ID.Hex(), doc.ID.Hex())
	return &doc, nil
}

// generateJoinCode builds a random 7-character class code.
func generateJoinCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate join code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
