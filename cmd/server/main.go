// File: cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/tutorlink/go-tutorlink/internal/config"
	"github.com/tutorlink/go-tutorlink/internal/handlers"
	"github.com/tutorlink/go-tutorlink/internal/middleware"
	"github.com/tutorlink/go-tutorlink/internal/ratelimit"
	"github.com/tutorlink/go-tutorlink/internal/repository/docstore"
	"github.com/tutorlink/go-tutorlink/internal/services"
	"github.com/tutorlink/go-tutorlink/internal/services/chat"
	"github.com/tutorlink/go-tutorlink/internal/services/render"
)

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	cfg := config.Load()

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{})
	if err != nil {
		log.Fatalf("DB Error: %v", err)
	}
	if err := docstore.AutoMigrate(db); err != nil {
		log.Fatalf("DB Migration Error: %v", err)
	}

	store := docstore.NewGormStore(db)
	defer store.Close()

	logger := services.NewLogger("go_tutorlink")

	chatConfig := &chat.Config{
		MaxMessageLength: cfg.MaxMessageLength,
		WriteTimeout:     time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		MarkSeenTimeout:  time.Duration(cfg.SeenTimeoutSeconds) * time.Second,
	}
	chatService, err := chat.NewService(store, chatConfig, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Chat Service: %v", err)
	}

	renderer := render.New()

	// --- Handlers ---
	chatHandler := handlers.NewChatHandler(chatService, renderer)

	// --- Rate Limiting ---
	sendLimiter := ratelimit.NewMemoryRateLimiter(ratelimit.DefaultSendConfig())
	defer sendLimiter.Close()

	// --- Router Setup ---
	r := mux.NewRouter()
	authMiddleware := middleware.NewJWTMiddleware([]byte(cfg.JWTSecretKey))

	r.Use(corsMiddleware)
	r.Use(middleware.RecoverPanic)
	r.Use(middleware.LoggingMiddleware)

	// --- Public Routes ---
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("OK")) }).Methods("GET")
	r.HandleFunc("/api/log", handlers.LogFrontendEvent).Methods("POST")

	// --- Protected Routes ---
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware)
	api.HandleFunc("/chats/direct", chatHandler.OpenDirectChat).Methods("POST")
	api.HandleFunc("/chats/global", chatHandler.OpenGlobalChat).Methods("POST")
	api.HandleFunc("/chats/{id}/stream", chatHandler.StreamTimeline).Methods("GET")
	api.HandleFunc("/chats/{id}/selection", chatHandler.GetSelection).Methods("GET")
	api.HandleFunc("/chats/{id}/selection/toggle", chatHandler.ToggleSelection).Methods("POST")
	api.HandleFunc("/chats/{id}/selection/cancel", chatHandler.CancelSelection).Methods("POST")
	api.HandleFunc("/chats/{id}/selection/delete-for-me", chatHandler.DeleteForMe).Methods("POST")
	api.HandleFunc("/chats/{id}/selection/delete-for-everyone", chatHandler.DeleteForEveryone).Methods("POST")
	api.HandleFunc("/chats/{id}", chatHandler.CloseChat).Methods("DELETE")

	send := api.PathPrefix("/chats/{id}/messages").Subrouter()
	send.Use(middleware.RateLimitMiddleware(sendLimiter, "send_message"))
	send.HandleFunc("", chatHandler.SendMessage).Methods("POST")

	// --- Server Configuration ---
	port := ":8081"
	if cfg.ServerPort != "" {
		port = ":" + cfg.ServerPort
	}
	srv := &http.Server{
		Addr:    port,
		Handler: r,
	}

	// --- Startup Logging ---
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("==================================================")
	log.Printf("TutorLink Chat Service")
	log.Printf("==================================================")
	log.Printf("Server starting on port %s", port)
	log.Printf("Local access: http://localhost%s", port)
	log.Printf("Server ready to accept connections!")
	log.Printf("==================================================")

	// --- Start Server in Goroutine ---
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server startup failed: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped gracefully")
}
