// ============================================================================
// internal/gateway/handlers/notification_handler.go
// Notification inbox endpoints
// ============================================================================

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dqvinh20/awp-go-be/internal/gateway/util"
	"github.com/Dqvinh20/awp-go-be/internal/notification"
)

// NotificationHandler serves the per-user notification inbox
type NotificationHandler struct {
	notificationService *notification.Service
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notificationService *notification.Service) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.notificationService.ListForUser(r.Context(), CurrentUser(r).ID)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, notifications)
}

// MarkSeen handles PATCH /api/notifications/{id}/seen
func (h *NotificationHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid notification id")
		return
	}

	if err := h.notificationService.MarkSeen(r.Context(), id, CurrentUser(r).ID); err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as seen"})
}
