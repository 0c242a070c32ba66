package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"synchub/audit"
	"synchub/availability"
	"synchub/integration"
	"synchub/providers"
	"synchub/ratelimit"
	"synchub/security"
	"synchub/syncer"
)

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	Service string `json:"service"`
}

const VERSION = "0.0.1"

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	log.Println("Starting SyncHub Server...")

	// Initialize Redis
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	// Remove redis:// prefix if present
	if strings.HasPrefix(redisURL, "redis://") {
		redisURL = strings.TrimPrefix(redisURL, "redis://")
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")

	// Stores and shared services
	integrations := integration.NewStore(redisClient)
	blocked := availability.NewStore(redisClient)
	auditLogger := audit.NewLogger(redisClient)
	limiter := ratelimit.New(redisClient, loadRateLimitOverrides(),
		parseIntOrDefault(os.Getenv("INTEGRATION_DAILY_API_LIMIT"), 0))

	// OAuth and token lifecycle
	creds := loadProviderCredentials()
	if len(creds) == 0 {
		log.Println("Warning: no provider OAuth credentials configured")
	}
	tokens := security.NewTokenManager(redisClient, integrations, auditLogger, creds)
	oauthService := security.NewOAuthService(redisClient, integrations, tokens)

	// Provider clients
	registry := providers.NewRegistry(providers.Deps{
		Limiter:    limiter,
		Audit:      auditLogger,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	})

	// Calendar sync
	lookahead := parseDurationOrDefault(os.Getenv("CALENDAR_SYNC_LOOKAHEAD"), syncer.DefaultLookahead)
	workers := parseIntOrDefault(os.Getenv("CALENDAR_SYNC_WORKERS"), syncer.DefaultWorkers)
	sync := syncer.New(registry, tokens, integrations, blocked, auditLogger, lookahead, workers)

	syncEnabled := strings.ToLower(strings.TrimSpace(os.Getenv("CALENDAR_SYNC_ENABLED"))) != "false"
	syncInterval := parseDurationOrDefault(os.Getenv("CALENDAR_SYNC_INTERVAL"), 15*time.Minute)
	scheduler := NewSyncScheduler(sync, syncInterval, syncEnabled)
	scheduler.Start(ctx)

	// Outbound webhook delivery
	dispatcher := NewWebhookDispatcher(integrations, auditLogger)

	r := mux.NewRouter()

	// Health check endpoint
	r.HandleFunc("/healthz", healthHandler).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	registerOAuthRoutes(r, oauthService, sync, integrations)
	registerIntegrationRoutes(r, integrations, blocked, registry, tokens, sync, auditLogger)
	registerWebhookRoutes(r, integrations, auditLogger, dispatcher)

	// Configure server
	port := getEnv("PORT", "8080")
	srv := &http.Server{
		Handler:      r,
		Addr:         "0.0.0.0:" + port,
		WriteTimeout: 180 * time.Second,
		ReadTimeout:  180 * time.Second,
	}

	log.Printf("SyncHub Server v%s starting on %s", VERSION, srv.Addr)

	// Setup graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := HealthResponse{
		OK:      true,
		Version: VERSION,
		Service: "synchub",
	}

	json.NewEncoder(w).Encode(response)
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]string{
		"message": "SyncHub API Server",
		"version": VERSION,
		"docs":    "/docs",
	}

	json.NewEncoder(w).Encode(response)
}
