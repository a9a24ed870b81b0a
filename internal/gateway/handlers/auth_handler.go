// ============================================================================
// internal/gateway/handlers/auth_handler.go
// Authentication endpoints
// ============================================================================

package handlers

import (
	"net/http"

	"github.com/Dqvinh20/awp-go-be/internal/auth"
	"github.com/Dqvinh20/awp-go-be/internal/gateway/util"
)

// AuthHandler serves login, logout and account endpoints
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := util.DecodeAndValidate(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	result, err := h.authService.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		util.HandleServiceError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, result)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := util.ExtractToken(r)
	if token != "" {
		if err := h.authService.Logout(r.Context(), token); err != nil {
			util.HandleServiceError(w, err)
			return
		}
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Validate handles GET /api/auth/validate
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, CurrentUser(r))
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// ChangePassword handles POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := util.DecodeAndValidate(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	user := CurrentUser(r)
	if err := h.authService.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		util.HandleServiceError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password changed, please log in again"})
}
