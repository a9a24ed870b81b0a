// ============================================================================
// cmd/server/main.go
// Gradebook API server entry point
// ============================================================================

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dqvinh20/awp-go-be/internal/auth"
	"github.com/Dqvinh20/awp-go-be/internal/class"
	"github.com/Dqvinh20/awp-go-be/internal/classgrade"
	"github.com/Dqvinh20/awp-go-be/internal/gateway"
	"github.com/Dqvinh20/awp-go-be/internal/gradereview"
	"github.com/Dqvinh20/awp-go-be/internal/notification"
	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// 1. Load configuration
	shared.LoadEnv("")
	config, err := shared.LoadServerConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := shared.ValidateServerConfig(config); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Connect to MongoDB
	client, db, err := shared.ConnectMongoDB(&config.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := shared.DisconnectMongoDB(client); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	if err := shared.EnsureIndexes(context.Background(), db); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	// 3. Wire services
	gradeService := classgrade.NewService(db)
	notificationService := notification.NewService(db)
	services := &gateway.Services{
		Auth:          auth.NewService(db, config.Security),
		Class:         class.NewService(db, gradeService),
		ClassGrades:   gradeService,
		Reviews:       gradereview.NewService(db, gradeService, notificationService),
		Notifications: notificationService,
	}

	// 4. Start the HTTP server
	router := gateway.NewRouter(config, services)
	server := &http.Server{
		Addr:         ":" + config.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("%s listening on port %s (%s)", config.ServiceName, config.HTTPPort, config.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 5. Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
