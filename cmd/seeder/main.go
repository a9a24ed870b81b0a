// ============================================================================
// cmd/seeder/main.go
// Seeds a demo teacher, students, a class and its gradebook
// ============================================================================

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dqvinh20/awp-go-be/internal/class"
	"github.com/Dqvinh20/awp-go-be/internal/classgrade"
	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

const defaultPassword = "password123"

func main() {
	log.SetFlags(log.LstdFlags)

	shared.LoadEnv("")
	config, err := shared.LoadServerConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client, db, err := shared.ConnectMongoDB(&config.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer shared.DisconnectMongoDB(client)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := shared.EnsureIndexes(ctx, db); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	usersCol := db.Collection("users")

	// Users
	seedUser(ctx, usersCol, "admin@example.com", shared.RoleAdmin, "Ada", "Admin", "")
	teacher := seedUser(ctx, usersCol, "teacher@example.com", shared.RoleTeacher, "Tran", "Binh", "")
	students := make([]*shared.User, 0, 5)
	for i := 1; i <= 5; i++ {
		student := seedUser(ctx, usersCol,
			fmt.Sprintf("student%d@example.com", i),
			shared.RoleStudent,
			fmt.Sprintf("Student%d", i), "Nguyen",
			fmt.Sprintf("2011%04d", i),
		)
		students = append(students, student)
	}

	// Class with its gradebook
	gradeService := classgrade.NewService(db)
	classService := class.NewService(db, gradeService)

	demoClass, err := classService.Create(ctx, teacher, class.CreateClassInput{
		Name:        "Advanced Web Programming",
		Description: "Demo class seeded for local development",
	})
	if err != nil {
		log.Fatalf("Failed to seed class: %v", err)
	}

	// Grading scheme
	_, err = gradeService.ReplaceColumnSet(ctx, demoClass.ID, []classgrade.ColumnInput{
		{Name: "Midterm", Ordinal: 0, ScaleValue: 30},
		{Name: "Final", Ordinal: 1, ScaleValue: 50},
		{Name: "Project", Ordinal: 2, ScaleValue: 20},
	})
	if err != nil {
		log.Fatalf("Failed to seed grade columns: %v", err)
	}

	// Enroll the students
	for _, student := range students {
		if _, err := classService.JoinByCode(ctx, demoClass.Code, student); err != nil {
			log.Fatalf("Failed to enroll student %s: %v", student.Email, err)
		}
	}

	log.Printf("Seed complete. Class %q join code: %s", demoClass.Name, demoClass.Code)
	log.Printf("All accounts use the password %q", defaultPassword)
}

// seedUser upserts one user by email and returns the stored document.
func seedUser(ctx context.Context, col *mongo.Collection, email, role, firstName, lastName, studentID string) *shared.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user := shared.User{
		ID:           primitive.NewObjectID(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		FirstName:    firstName,
		LastName:     lastName,
		StudentID:    studentID,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}

	var existing shared.User
	err = col.FindOne(ctx, bson.M{"email": email}).Decode(&existing)
	if err == nil {
		log.Printf("User %s already exists, skipping", email)
		return &existing
	}

	if _, err := col.InsertOne(ctx, user); err != nil {
		log.Fatalf("Failed to seed user %s: %v", email, err)
	}
	log.Printf("Seeded %s user %s", role, email)
	return &user
}
