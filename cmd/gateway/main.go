package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/signalnoise/factgate/internal/gateway/analysis"
	"github.com/signalnoise/factgate/internal/gateway/billing"
	"github.com/signalnoise/factgate/internal/gateway/entitlement"
	"github.com/signalnoise/factgate/internal/gateway/handlers"
	"github.com/signalnoise/factgate/internal/gateway/ledger"
	"github.com/signalnoise/factgate/internal/gateway/promo"
	"github.com/signalnoise/factgate/internal/gateway/providers"
	"github.com/signalnoise/factgate/internal/shared/config"
	"github.com/signalnoise/factgate/internal/shared/database"
	"github.com/signalnoise/factgate/internal/shared/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting factgate on port %s (env: %s)", cfg.Port, cfg.Env)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("✓ Connected to PostgreSQL")

	// Initialize Redis
	store, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer store.Close()
	log.Println("✓ Connected to Redis")

	// Core services
	anthropic := providers.NewAnthropicClient(cfg.AnthropicAPIKey)
	entitlements := entitlement.New(store)
	quotaLedger := ledger.New(store, entitlements, ledger.Limits{
		SubjectDaily:   cfg.FreeTierChecks,
		NetworkDaily:   cfg.NetworkDailyLimit,
		DailyBudgetUSD: cfg.DailyBudgetUSD,
		CostPerTurnUSD: cfg.CostPerTurnUSD,
	})
	promos := promo.New(store)
	billingProcessor := billing.NewProcessor(entitlements)

	runner := analysis.NewRunner(anthropic, cfg.MaxTurns, cfg.TurnTimeout)
	controller := analysis.NewController(runner, cfg.CheapModel, cfg.ExpensiveModel, cfg.EscalationConfidence)
	analyzer := analysis.NewService(runner, controller)
	log.Println("✓ Initialized analysis pipeline")

	// Initialize handlers
	middleware := handlers.NewMiddleware(cfg.AllowedOrigins)
	analyzeHandler := handlers.NewAnalyzeHandler(quotaLedger, analyzer, db, cfg.UpgradeURL, cfg.MaxBodyBytes, cfg.CostPerTurnUSD)
	messagesHandler := handlers.NewMessagesHandler(quotaLedger, anthropic, db, cfg.UpgradeURL, cfg.MaxBodyBytes, cfg.CostPerTurnUSD)
	promoHandler := handlers.NewPromoHandler(promos)
	webhookHandler := handlers.NewWebhookHandler(billingProcessor, cfg.BillingWebhookSecret)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(5 * time.Minute))

	// Health check (no origin gating)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Billing webhook is server-to-server, authenticated by signature, not
	// origin.
	r.Post("/v1/webhooks/billing", webhookHandler.HandleWebhook)

	// Browser-facing API
	r.Group(func(r chi.Router) {
		r.Use(middleware.OriginMiddleware)

		r.Post("/v1/analyze", analyzeHandler.HandleAnalyze)
		r.Post("/v1/messages", messagesHandler.HandleMessages)
		r.Post("/v1/promo", promoHandler.HandlePromo)
	})

	// HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("🚀 Server listening on http://localhost:%s", cfg.Port)
		log.Println("   POST /v1/analyze          - Orchestrated fact-check analysis")
		log.Println("   POST /v1/messages         - Raw Messages API pass-through")
		log.Println("   POST /v1/promo            - Promo code redemption")
		log.Println("   POST /v1/webhooks/billing - Billing webhook")
		log.Println("   GET  /health              - Health check")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
