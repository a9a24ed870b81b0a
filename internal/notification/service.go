// ============================================================================
// internal/notification/service.go
// Notification fan-out and per-user inbox
// ============================================================================

package notification

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
	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

const queryTimeout = 5 * time.Second

var ErrNotificationNotFound = errors.New("notification not found")

// Service persists notifications and serves each user's inbox
type Service struct {
	col *mongo.Collection
}

// NewService creates a new notification service
func NewService(db *mongo.Database) *Service {
	return &Service{col: db.Collection("notifications")}
}

// ApplyGradeEffect persists the fan-out a gradebook state change asks for.
// Only the finished event notifies students; reopening a gradebook is silent.
func (s *Service) ApplyGradeEffect(ctx context.Context, effect *classgrade.GradeEffect) error {
	if effect == nil || effect.Event != classgrade.EventGradeFinished {
		return nil
	}
	if len(effect.Receivers) == 0 {
		return nil
	}

	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	doc := shared.Notification{
		Title:     effect.Title,
		Message:   effect.Message,
		Sender:    effect.Sender,
		Receivers: effect.Receivers,
		Class:     effect.Class,
		RefURL:    effect.RefURL,
		Seen:      []primitive.ObjectID{},
		CreatedAt: time.Now(),
	}

	if _, err := s.col.InsertOne(qCtx, doc); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	log.Printf("Notified %d students about class %s", len(effect.Receivers), effect.Class.Hex())
	return nil
}

// Notify persists an arbitrary notification (grade review workflow).
func (s *Service) Notify(ctx context.Context, n *shared.Notification) error {
	if len(n.Receivers) == 0 {
		return nil
	}

	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	n.Seen = []primitive.ObjectID{}
	n.CreatedAt = time.Now()
	if _, err := s.col.InsertOne(qCtx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListForUser returns the user's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]shared.Notification, error) {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(100)
	cursor, err := s.col.Find(qCtx, bson.M{"receivers": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cursor.Close(qCtx)

	var notifications []shared.Notification
	if err := cursor.All(qCtx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return notifications, nil
}

// MarkSeen records that the user has seen one notification. Idempotent; only
// receivers can mark their own copy.
func (s *Service) MarkSeen(ctx context.Context, notificationID, userID primitive.ObjectID) error {
	qCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := s.col.UpdateOne(qCtx,
		bson.M{"_id": notificationID, "receivers": userID},
		bson.M{"$addToSet": bson.M{"seen": userID}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification seen: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
