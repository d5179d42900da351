package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Upstream
	AnthropicAPIKey string

	// Billing webhook
	BillingWebhookSecret string

	// Origin allow-list (prefix match); same-origin requests carry no Origin header
	AllowedOrigins []string

	// Quota & budget
	FreeTierChecks    int     // per-subject daily limit
	NetworkDailyLimit int     // per-network daily limit (catches incognito abuse)
	DailyBudgetUSD    float64 // global spend circuit breaker
	CostPerTurnUSD    float64 // flat cost estimate per model turn
	UpgradeURL        string

	// Analysis loop
	MaxTurns             int
	TurnTimeout          time.Duration
	EscalationConfidence int // triage confidence below this escalates
	CheapModel           string
	ExpensiveModel       string

	// Request limits
	MaxBodyBytes int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379"),
		AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		BillingWebhookSecret: getEnv("BILLING_WEBHOOK_SECRET", ""),
		AllowedOrigins:       getEnvList("ALLOWED_ORIGINS", "https://signalnoise.tech,https://www.signalnoise.tech"),
		FreeTierChecks:       getEnvInt("FREE_TIER_CHECKS", 2),
		NetworkDailyLimit:    getEnvInt("NETWORK_DAILY_LIMIT", 5),
		DailyBudgetUSD:       getEnvFloat("DAILY_BUDGET_USD", 50),
		CostPerTurnUSD:       getEnvFloat("COST_PER_TURN_USD", 0.015),
		UpgradeURL:           getEnv("UPGRADE_URL", "/upgrade"),
		MaxTurns:             getEnvInt("MAX_TURNS", 5),
		TurnTimeout:          time.Duration(getEnvInt("TURN_TIMEOUT_SECONDS", 40)) * time.Second,
		EscalationConfidence: getEnvInt("ESCALATION_CONFIDENCE", 85),
		CheapModel:           getEnv("CHEAP_MODEL", "claude-haiku-4-5-20251001"),
		ExpensiveModel:       getEnv("EXPENSIVE_MODEL", "claude-sonnet-4-5-20250929"),
		MaxBodyBytes:         int64(getEnvInt("MAX_BODY_BYTES", 50*1024)),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if cfg.BillingWebhookSecret == "" {
		return nil, fmt.Errorf("BILLING_WEBHOOK_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
