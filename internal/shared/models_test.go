package shared

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUserDisplayName(t *testing.T) {
	cases := []struct {
		name string
		user User
		want string
	}{
		{"Full name", User{FirstName: "An", LastName: "Nguyen"}, "An Nguyen"},
		{"First only", User{FirstName: "An"}, "An"},
		{"Last only", User{LastName: "Nguyen"}, "Nguyen"},
		{"Email fallback", User{Email: "a@b.c"}, "a@b.c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.user.DisplayName(); got != tc.want {
				t.Fatalf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassMembership(t *testing.T) {
	owner := primitive.NewObjectID()
	teacher := primitive.NewObjectID()
	student := primitive.NewObjectID()
	outsider := primitive.NewObjectID()

	c := Class{
		Owner:    owner,
		Teachers: []primitive.ObjectID{teacher},
		Students: []primitive.ObjectID{student},
	}

	if !c.HasTeacher(owner) || !c.HasTeacher(teacher) {
		t.Error("Expected owner and teacher to count as teachers")
	}
	if c.HasTeacher(student) || c.HasTeacher(outsider) {
		t.Error("Expected student and outsider to not count as teachers")
	}
	if !c.HasStudent(student) || c.HasStudent(teacher) {
		t.Error("Unexpected student membership")
	}
}

func TestGradeRowLookups(t *testing.T) {
	colA := primitive.NewObjectID()
	colB := primitive.NewObjectID()
	row := GradeRow{Grades: []Grade{{Column: colA, Value: 7}}}

	if v, ok := row.GradeFor(colA); !ok || v != 7 {
		t.Fatalf("Expected (7, true), got (%g, %t)", v, ok)
	}
	if _, ok := row.GradeFor(colB); ok {
		t.Fatal("Expected missing column to report absence")
	}

	cg := ClassGrade{
		GradeColumns: []GradeColumn{{ID: colA, Name: "Quiz"}},
		GradeRows:    []GradeRow{{StudentID: "20110001"}},
	}
	if _, ok := cg.ColumnByID(colA); !ok {
		t.Fatal("Expected column lookup to succeed")
	}
	if _, ok := cg.RowForStudent("20110002"); ok {
		t.Fatal("Expected unknown student to report absence")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, role := range []string{RoleStudent, RoleTeacher, RoleAdmin} {
		if !IsValidRole(role) {
			t.Errorf("Expected %q to be valid", role)
		}
	}
	if IsValidRole("principal") {
		t.Error("Expected unknown role to be invalid")
	}
}
