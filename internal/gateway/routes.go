// ============================================================================
// internal/gateway/routes.go
// HTTP router: middleware stack and route table
// ============================================================================

package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Dqvinh20/awp-go-be/internal/auth"
	"github.com/Dqvinh20/awp-go-be/internal/class"
	"github.com/Dqvinh20/awp-go-be/internal/classgrade"
	"github.com/Dqvinh20/awp-go-be/internal/gateway/handlers"
	"github.com/Dqvinh20/awp-go-be/internal/gateway/util"
	"github.com/Dqvinh20/awp-go-be/internal/gradereview"
	"github.com/Dqvinh20/awp-go-be/internal/notification"
	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

// Services bundles everything the router needs
type Services struct {
	Auth          *auth.Service
	Class         *class.Service
	ClassGrades   *classgrade.Service
	Reviews       *gradereview.Service
	Notifications *notification.Service
}

// NewRouter builds the chi router with the full API surface
func NewRouter(config *shared.ServerConfig, services *Services) *chi.Mux {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.CORS.AllowedOrigins,
		AllowedMethods:   config.CORS.AllowedMethods,
		AllowedHeaders:   config.CORS.AllowedHeaders,
		AllowCredentials: config.CORS.AllowCredentials,
		MaxAge:           config.CORS.MaxAge,
	}))

	// Handlers
	authHandler := handlers.NewAuthHandler(services.Auth)
	classHandler := handlers.NewClassHandler(services.Class)
	gradeHandler := handlers.NewClassGradeHandler(
		services.ClassGrades, services.Class, services.Notifications,
		config.Import.MaxFileSize,
	)
	reviewHandler := handlers.NewReviewHandler(services.Reviews)
	notificationHandler := handlers.NewNotificationHandler(services.Notifications)

	requireAuth := handlers.AuthMiddleware(services.Auth)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		util.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": config.ServiceName,
		})
	})

	r.Route("/api", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		// Everything else requires a valid session
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/auth/validate", authHandler.Validate)
			r.Post("/auth/change-password", authHandler.ChangePassword)

			r.Route("/classes", func(r chi.Router) {
				r.Get("/", classHandler.List)
				r.Post("/", classHandler.Create)
				r.Post("/join", classHandler.Join)
				r.Get("/{id}", classHandler.Get)
			})

			r.Route("/class-grades/{class_id}", func(r chi.Router) {
				r.Get("/", gradeHandler.Get)
				r.Get("/columns", gradeHandler.GetColumns)
				r.Post("/columns", gradeHandler.ReplaceColumns)
				r.Patch("/rows", gradeHandler.UpdateRows)
				r.Delete("/rows/{row_id}", gradeHandler.RemoveRow)
				r.Patch("/finish", gradeHandler.Finish)
				r.Patch("/unfinish", gradeHandler.Unfinish)
				r.Get("/stats", gradeHandler.Stats)
				r.Get("/export", gradeHandler.ExportBoard)
				r.Get("/template", gradeHandler.ExportTemplate)
				r.Get("/template/{column_id}", gradeHandler.ExportColumnTemplate)
				r.Post("/import", gradeHandler.ImportBoard)
				r.Post("/import/{column_id}", gradeHandler.ImportColumn)
			})

			r.Route("/grade-reviews", func(r chi.Router) {
				r.Get("/", reviewHandler.List)
				r.Post("/", reviewHandler.Create)
				r.Post("/{id}/comments", reviewHandler.AddComment)
				r.Patch("/{id}/finish", reviewHandler.Finish)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.Patch("/{id}/seen", notificationHandler.MarkSeen)
			})
		})
	})

	return r
}
