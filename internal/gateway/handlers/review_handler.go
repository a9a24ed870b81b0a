// ============================================================================
// internal/gateway/handlers/review_handler.go
// Grade review endpoints
// ============================================================================

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dqvinh20/awp-go-be/internal/gateway/util"
	"github.com/Dqvinh20/awp-go-be/internal/gradereview"
	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

// ReviewHandler serves grade review endpoints
type ReviewHandler struct {
	reviewService *gradereview.Service
}

// NewReviewHandler creates a new grade review handler
func NewReviewHandler(reviewService *gradereview.Service) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

func reviewIDParam(r *http.Request) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
}

// List handles GET /api/grade-reviews. Teachers see reviews across their
// classes, students see their own requests.
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)

	var (
		reviews []shared.GradeReview
		err     error
	)
	if user.Role == shared.RoleTeacher || user.Role == shared.RoleAdmin {
		reviews, err = h.reviewService.FindAllByTeacher(r.Context(), user.ID)
	} else {
		reviews, err = h.reviewService.FindAllByStudent(r.Context(), user.ID)
	}
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, reviews)
}

// Create handles POST /api/grade-reviews
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req gradereview.CreateReviewInput
	if err := util.DecodeAndValidate(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	review, err := h.reviewService.Create(r.Context(), CurrentUser(r), req)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, review)
}

type addCommentRequest struct {
	Comment string `json:"comment" validate:"required,max=2000"`
}

// AddComment handles POST /api/grade-reviews/{id}/comments
func (h *ReviewHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	id, err := reviewIDParam(r)
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid review id")
		return
	}

	var req addCommentRequest
	if err := util.DecodeAndValidate(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	review, err := h.reviewService.AddComment(r.Context(), id, CurrentUser(r), req.Comment)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, review)
}

type finishReviewRequest struct {
	Grade float64 `json:"grade" validate:"min=0,max=10"`
}

// Finish handles PATCH /api/grade-reviews/{id}/finish
func (h *ReviewHandler) Finish(w http.ResponseWriter, r *http.Request) {
	id, err := reviewIDParam(r)
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid review id")
		return
	}

	var req finishReviewRequest
	if err := util.DecodeAndValidate(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	review, err := h.reviewService.MarkFinished(r.Context(), id, CurrentUser(r), req.Grade)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, review)
}
