// ============================================================================
// internal/gateway/handlers/class_handler.go
// Class endpoints
// ============================================================================

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dqvinh20/awp-go-be/internal/class"
	"github.com/Dqvinh20/awp-go-be/internal/gateway/util"
)

// ClassHandler serves class lifecycle and membership endpoints
type ClassHandler struct {
	classService *class.Service
}

// NewClassHandler creates a new class handler
func NewClassHandler(classService *class.Service) *ClassHandler {
	return &ClassHandler{classService: classService}
}

// Create handles POST /api/classes
func (h *ClassHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req class.CreateClassInput
	if err := util.DecodeAndValidate(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	created, err := h.classService.Create(r.Context(), CurrentUser(r), req)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusCreated, created)
}

// List handles GET /api/classes
func (h *ClassHandler) List(w http.ResponseWriter, r *http.Request) {
	classes, err := h.classService.FindForUser(r.Context(), CurrentUser(r).ID)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, classes)
}

// Get handles GET /api/classes/{id}
func (h *ClassHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid class id")
		return
	}

	found, err := h.classService.FindByID(r.Context(), id)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}

	user := CurrentUser(r)
	if !found.HasTeacher(user.ID) && !found.HasStudent(user.ID) {
		util.WriteJSONError(w, http.StatusForbidden, "Forbidden", "You are not a member of this class")
		return
	}

	util.WriteJSON(w, http.StatusOK, found)
}

type joinClassRequest struct {
	Code string `json:"code" validate:"required,len=7"`
}

// Join handles POST /api/classes/join
func (h *ClassHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinClassRequest
	if err := util.DecodeAndValidate(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	joined, err := h.classService.JoinByCode(r.Context(), req.Code, CurrentUser(r))
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, joined)
}
