// ============================================================================
// internal/auth/service.go
// Authentication: login, JWT issuance, session revocation
// ============================================================================

package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

const queryTimeout = 5 * time.Second

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrSessionRevoked     = errors.New("session has been revoked")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// CustomClaims are the JWT claims carried by every access token
type CustomClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Service handles authentication against the users and sessions collections
type Service struct {
	usersCol    *mongo.Collection
	sessionsCol *mongo.Collection
	jwtSecret   []byte
	expiration  time.Duration
	bcryptCost  int
}

// NewService creates a new auth service
func NewService(db *mongo.Database, cfg shared.SecurityConfig) *Service {
	return &Service{
		usersCol:    db.Collection("users"),
		sessionsCol: db.Collection("sessions"),
		jwtSecret:   []byte(cfg.JWTSecret),
		expiration:  time.Duration(cfg.JWTExpirationHours) * time.Hour,
		bcryptCost:  cfg.BCryptCost,
	}
}

// LoginResult is what a successful login returns to the gateway
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *shared.User `json:"user"`
}

// Login verifies the identifier (email or student id) and password, creates a
// session and returns a signed token.
func (s *Service) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 1. Find the user by email or external student id
	var user shared.User
	err := s.usersCol.FindOne(qCtx, bson.M{"$or": []bson.M{
		{"email": identifier},
		{"student_id": identifier},
	}}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// 2. Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	// 3. Create the session and sign the token
	sessionID := uuid.NewString()
	expiresAt := time.Now().Add(s.expiration)

	token, err := s.signToken(&user, sessionID, expiresAt)
	if err != nil {
		return nil, err
	}

	session := shared.Session{
		ID:        sessionID,
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if _, err := s.sessionsCol.InsertOne(qCtx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("User %s logged in (session %s)", user.Email, sessionID)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: &user}, nil
}

// Logout deletes the session behind a token. Unknown or already-revoked
// tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.parseToken(token)
	if err != nil {
		return nil
	}

	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.sessionsCol.DeleteOne(qCtx, bson.M{"_id": claims.SessionID}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ValidateToken checks the signature, the session and the user behind a
// token, returning the current user document.
func (s *Service) ValidateToken(ctx context.Context, token string) (*shared.User, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Session must still exist (logout and password changes revoke it)
	var session shared.Session
	if err := s.sessionsCol.FindOne(qCtx, bson.M{"_id": claims.SessionID}).Decode(&session); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session.IsExpired() {
		return nil, ErrInvalidToken
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var user shared.User
	if err := s.usersCol.FindOne(qCtx, bson.M{"_id": userID}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	return &user, nil
}

// ChangePassword verifies the old password, stores the new hash and revokes
// every session of the user.
func (s *Service) ChangePassword(ctx context.Context, userID primitive.ObjectID, oldPassword, newPassword string) error {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var user shared.User
	if err := s.usersCol.FindOne(qCtx, bson.M{"_id": userID}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.usersCol.UpdateOne(qCtx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"password_hash": string(hash), "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	// Force re-login everywhere
	if _, err := s.sessionsCol.DeleteMany(qCtx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	log.Printf("User %s changed password, sessions revoked", user.Email)
	return nil
}

// HashPassword hashes a plaintext password with the configured cost. Used by
// the seeder.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) signToken(user *shared.User, sessionID string, expiresAt time.Time) (string, error) {
	claims := CustomClaims{
		UserID:    user.ID.Hex(),
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parseToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
