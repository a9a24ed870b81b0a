package auth

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

func testService() *Service {
	return &Service{
		jwtSecret:  []byte("test-secret-key"),
		expiration: time.Hour,
		bcryptCost: 4,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := testService()
	user := &shared.User{
		ID:    primitive.NewObjectID(),
		Email: "teacher@example.com",
		Role:  shared.RoleTeacher,
	}

	t.Run("Claims survive sign and parse", func(t *testing.T) {
		token, err := s.signToken(user, "session-1", time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("signToken failed: %v", err)
		}

		claims, err := s.parseToken(token)
		if err != nil {
			t.Fatalf("parseToken failed: %v", err)
		}
		if claims.UserID != user.ID.Hex() {
			t.Errorf("Expected user id %s, got %s", user.ID.Hex(), claims.UserID)
		}
		if claims.Email != user.Email || claims.Role != shared.RoleTeacher {
			t.Errorf("Unexpected claims: %+v", claims)
		}
		if claims.SessionID != "session-1" {
			t.Errorf("Expected session-1, got %s", claims.SessionID)
		}
	})

	t.Run("Expired token rejected", func(t *testing.T) {
		token, err := s.signToken(user, "session-2", time.Now().Add(-time.Minute))
		if err != nil {
			t.Fatalf("signToken failed: %v", err)
		}
		if _, err := s.parseToken(token); err == nil {
			t.Fatal("Expected expired token to be rejected")
		}
	})

	t.Run("Wrong secret rejected", func(t *testing.T) {
		token, err := s.signToken(user, "session-3", time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("signToken failed: %v", err)
		}

		other := &Service{jwtSecret: []byte("different-secret"), expiration: time.Hour}
		if _, err := other.parseToken(token); err == nil {
			t.Fatal("Expected token signed with another secret to be rejected")
		}
	})

	t.Run("Garbage rejected", func(t *testing.T) {
		if _, err := s.parseToken("not.a.token"); err == nil {
			t.Fatal("Expected garbage token to be rejected")
		}
	})
}

func TestHashPassword(t *testing.T) {
	s := testService()

	hash, err := s.HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "password123" {
		t.Fatal("Expected hash to differ from plaintext")
	}

	second, err := s.HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == second {
		t.Fatal("Expected salted hashes to differ")
	}
}
