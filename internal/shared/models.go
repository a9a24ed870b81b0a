// ============================================================================
// internal/shared/models.go
// Shared data models and structs for MongoDB documents
// ============================================================================

package shared

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ============================================================================
// User Models
// ============================================================================

// User represents a user account (student, teacher, or admin)
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"` // Never expose in JSON
	Role         string             `bson:"role" json:"role"`       // student, teacher, admin
	FirstName    string             `bson:"first_name" json:"first_name"`
	LastName     string             `bson:"last_name" json:"last_name"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at,omitempty" json:"updated_at,omitempty"`

	// Student-specific: the external identifier printed on grade sheets,
	// distinct from the Mongo document id
	StudentID string `bson:"student_id,omitempty" json:"student_id,omitempty"`

	// Account status
	IsActive bool `bson:"is_active" json:"is_active"`
}

// DisplayName returns the user's full name, falling back to email
func (u *User) DisplayName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Email
	}
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Session represents an active user session (for JWT tracking)
type Session struct {
	ID        string             `bson:"_id" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Token     string             `bson:"token" json:"token"`
	ExpiresAt time.Time          `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// IsExpired checks if a session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// ============================================================================
// Class Models
// ============================================================================

// Class represents a class with its membership lists
type Class struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Code        string               `bson:"code" json:"code"` // short join code
	Name        string               `bson:"name" json:"name"`
	Description string               `bson:"description,omitempty" json:"description,omitempty"`
	Owner       primitive.ObjectID   `bson:"owner" json:"owner"`
	Teachers    []primitive.ObjectID `bson:"teachers" json:"teachers"`
	Students    []primitive.ObjectID `bson:"students" json:"students"`
	CreatedAt   time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// HasTeacher reports whether the user owns or teaches the class
func (c *Class) HasTeacher(userID primitive.ObjectID) bool {
	if c.Owner == userID {
		return true
	}
	for _, id := range c.Teachers {
		if id == userID {
			return true
		}
	}
	return false
}

// HasStudent reports whether the user is enrolled in the class
func (c *Class) HasStudent(userID primitive.ObjectID) bool {
	for _, id := range c.Students {
		if id == userID {
			return true
		}
	}
	return false
}

// ============================================================================
// Gradebook Models
// ============================================================================

// GradeColumn is a named, weighted grading criterion scoped to one class
type GradeColumn struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	Name       string             `bson:"name" json:"name"` // unique within the class, <=100 chars, trimmed
	Ordinal    int                `bson:"ordinal" json:"ordinal"`
	ScaleValue float64            `bson:"scaleValue" json:"scaleValue"` // weights sum to 100 per class
}

// Grade is one student's value for one column
type Grade struct {
	Column primitive.ObjectID `bson:"column" json:"column"`
	Value  float64            `bson:"value" json:"value"` // 0-10, default 0
}

// GradeRow is one student's grades within a class
type GradeRow struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Student   primitive.ObjectID `bson:"student,omitempty" json:"student,omitempty"`
	StudentID string             `bson:"student_id" json:"student_id"` // external identifier
	FullName  string             `bson:"full_name,omitempty" json:"full_name,omitempty"`
	Grades    []Grade            `bson:"grades" json:"grades"`
}

// GradeFor looks up the row's value for a column, reporting presence
func (r *GradeRow) GradeFor(columnID primitive.ObjectID) (float64, bool) {
	for _, g := range r.Grades {
		if g.Column == columnID {
			return g.Value, true
		}
	}
	return 0, false
}

// ClassGrade is the gradebook aggregate root, one per class
type ClassGrade struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Class        primitive.ObjectID `bson:"class" json:"class"`
	GradeColumns []GradeColumn      `bson:"grade_columns" json:"grade_columns"`
	GradeRows    []GradeRow         `bson:"grade_rows" json:"grade_rows"`
	IsFinished   bool               `bson:"isFinished" json:"isFinished"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// ColumnByID finds a column in the current set
func (cg *ClassGrade) ColumnByID(columnID primitive.ObjectID) (*GradeColumn, bool) {
	for i := range cg.GradeColumns {
		if cg.GradeColumns[i].ID == columnID {
			return &cg.GradeColumns[i], true
		}
	}
	return nil, false
}

// RowForStudent finds the row keyed by external student id
func (cg *ClassGrade) RowForStudent(studentID string) (*GradeRow, bool) {
	for i := range cg.GradeRows {
		if cg.GradeRows[i].StudentID == studentID {
			return &cg.GradeRows[i], true
		}
	}
	return nil, false
}

// ============================================================================
// Notification Models
// ============================================================================

// Notification is a persisted fan-out message for class members
type Notification struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Title     string               `bson:"title" json:"title"`
	Message   string               `bson:"message" json:"message"`
	Sender    primitive.ObjectID   `bson:"sender,omitempty" json:"sender,omitempty"`
	Receivers []primitive.ObjectID `bson:"receivers" json:"receivers"`
	Class     primitive.ObjectID   `bson:"class,omitempty" json:"class,omitempty"`
	RefURL    string               `bson:"ref_url,omitempty" json:"ref_url,omitempty"`
	Seen      []primitive.ObjectID `bson:"seen" json:"seen"`
	CreatedAt time.Time            `bson:"created_at" json:"created_at"`
}

// ============================================================================
// Grade Review Models
// ============================================================================

// ReviewComment is one message on a grade review thread
type ReviewComment struct {
	Comment   string             `bson:"comment" json:"comment"`
	Sender    primitive.ObjectID `bson:"sender" json:"sender"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// GradeReview is a student's request to re-examine one grade cell
type GradeReview struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Class          primitive.ObjectID `bson:"class" json:"class"`
	RequestStudent primitive.ObjectID `bson:"request_student" json:"request_student"`
	StudentID      string             `bson:"request_student_id" json:"request_student_id"`
	Column         primitive.ObjectID `bson:"column" json:"column"`
	ColumnName     string             `bson:"column_name" json:"column_name"` // snapshot at creation time
	CurrentGrade   float64            `bson:"current_grade" json:"current_grade"`
	ExpectedGrade  float64            `bson:"expected_grade" json:"expected_grade"`
	Explanation    string             `bson:"explanation,omitempty" json:"explanation,omitempty"`
	Comments       []ReviewComment    `bson:"comments" json:"comments"`
	IsFinished     bool               `bson:"isFinished" json:"isFinished"`
	UpdatedGrade   float64            `bson:"updated_grade,omitempty" json:"updated_grade,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// ============================================================================
// Validation Constants
// ============================================================================

const (
	// User roles
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"

	// Gradebook limits
	MaxColumnNameLength = 100
	MinGradeValue       = 0
	MaxGradeValue       = 10
	ColumnScaleTotal    = 100
)

// IsValidRole checks if user role is valid
func IsValidRole(role string) bool {
	validRoles := map[string]bool{
		RoleStudent: true, RoleTeacher: true, RoleAdmin: true,
	}
	return validRoles[role]
}
