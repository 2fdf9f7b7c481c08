package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"shipmode-access/internal/circuitbreaker"
	"shipmode-access/internal/common/httpx"
	"shipmode-access/internal/common/logging"
	"shipmode-access/internal/config"
	"shipmode-access/internal/github"
	"shipmode-access/internal/handlers"
	"shipmode-access/internal/middleware"
	"shipmode-access/internal/provision"
	"shipmode-access/internal/ratelimit"
	"shipmode-access/internal/redis"
	"shipmode-access/internal/server"
	"shipmode-access/internal/signature"
)

func main() {
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	logger := logging.GetGlobalLogger()

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Outbound GitHub client behind a circuit breaker
	breaker := circuitbreaker.New("github", circuitbreaker.HTTPConfig, logger)
	apiClient := httpx.New(cfg.GitHubTimeout, cfg.GitHubToken, logger, httpx.WithBreaker(breaker))
	directory := github.NewClient(apiClient, cfg.GitHubAPIURL, cfg.GitHubOrg, cfg.GitHubRepo, logger)
	provisioner := provision.NewService(directory, logger)

	// One verifier per shared secret; the internal scheme carries no
	// timestamp, so no tolerance applies to it.
	stripeVerifier := signature.NewVerifier([]byte(cfg.StripeWebhookSecret), cfg.SignatureTolerance, logger)
	internalVerifier := signature.NewVerifier([]byte(cfg.InternalSecret), 0, logger)

	h := handlers.New(stripeVerifier, internalVerifier, provisioner, logger)

	// Set up routes
	router := mux.NewRouter()
	router.HandleFunc("/webhook/stripe", h.HandleStripeWebhook).Methods("POST")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/invite", h.HandleInvite).Methods("POST")
	api.HandleFunc("/access/status", h.HandleAccessStatus).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	var handler http.Handler = router

	// Rate limiting is active only when Redis is configured
	if cfg.RedisAddress != "" && cfg.RateLimitEnabled {
		db, _ := strconv.Atoi(cfg.RedisDB)
		redisClient, err := redis.NewClient(&redis.Config{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       db,
		})
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()

		limit, _ := strconv.Atoi(cfg.RateLimitDefault)
		window, _ := time.ParseDuration(cfg.RateLimitWindow)
		limiter := ratelimit.NewLimiter(redisClient, &ratelimit.Config{
			DefaultLimit:  limit,
			DefaultWindow: window,
			Enabled:       true,
		})
		handler = limiter.HTTPMiddleware(ratelimit.IPBasedKey)(handler)
	}

	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)

	// Set up HTTP server
	srv := server.New(handler, cfg.Port, cfg.TLSCert, cfg.TLSKey)
	errCh := srv.Start()
	logger.Info("Server started",
		logging.Field{Key: "port", Value: cfg.Port},
		logging.Field{Key: "repository", Value: cfg.GitHubOrg + "/" + cfg.GitHubRepo},
	)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case <-quit:
	}

	logger.Info("Shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
