// ============================================================================
// internal/gateway/handlers/middleware.go
// Authentication middleware and request context helpers
// ============================================================================

package handlers

import (
	"context"
	"net/http"

	"github.com/Dqvinh20/awp-go-be/internal/auth"
	"github.com/Dqvinh20/awp-go-be/internal/gateway/util"
	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

type contextKey string

const userContextKey contextKey = "current_user"

// AuthMiddleware validates the bearer token and stores the current user on
// the request context.
func AuthMiddleware(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := util.ExtractToken(r)
			if token == "" {
				util.WriteJSONError(w, http.StatusUnauthorized, "Unauthorized", "Missing authorization token")
				return
			}

			user, err := authService.ValidateToken(r.Context(), token)
			if err != nil {
				util.HandleServiceError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CurrentUser returns the authenticated user stored by AuthMiddleware.
func CurrentUser(r *http.Request) *shared.User {
	user, _ := r.Context().Value(userContextKey).(*shared.User)
	return user
}
