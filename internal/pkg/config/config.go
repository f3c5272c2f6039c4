package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/ArtFox/app/models"
	"github.com/ManuelReschke/ArtFox/internal/pkg/env"
)

const (
	StateBackendFile = "file"
	StateBackendDB   = "db"

	GuardBackendLocal = "local"
	GuardBackendRedis = "redis"
)

// Config is the typed application configuration built from the environment.
type Config struct {
	AppHost string `validate:"required"`
	AppPort string `validate:"required,numeric"`

	// Credits
	FreeCredits        int `validate:"min=0,max=1000"`
	MaxPurchaseCredits int `validate:"min=1"`

	// State persistence
	StateBackend       string `validate:"oneof=file db"`
	StateDir           string `validate:"required"`
	ProcessedEventsCap int    `validate:"min=1"`

	// Concurrency guard
	GuardBackend string        `validate:"oneof=local redis"`
	GuardTTL     time.Duration `validate:"min=1s"`

	// Payment provider webhook
	WebhookNotificationURL string
	WebhookSignatureKeys   []string

	// Protects internal endpoints called by the checkout flow
	InternalAPIKey string

	// External collaborators
	GenerationAPIURL       string `validate:"omitempty,url"`
	GenerationAPIKey       string
	GenerationMaxDimension int    `validate:"min=64,max=8192"`
	CouponAPIURL           string `validate:"omitempty,url"`
	CouponAPIKey           string

	// Background print data jobs
	PrintWorkers int `validate:"min=1,max=64"`

	// Requests per IP and minute on /api, 0 disables the limiter
	APIRateLimit int `validate:"min=0"`

	MetricsUser     string
	MetricsPassword string
}

// Load reads the configuration from env and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		AppHost:                env.GetEnv("APP_HOST", "localhost"),
		AppPort:                env.GetEnv("APP_PORT", "4000"),
		FreeCredits:            env.GetEnvInt("FREE_CREDITS", 3),
		MaxPurchaseCredits:     env.GetEnvInt("MAX_PURCHASE_CREDITS", 100),
		StateBackend:           strings.ToLower(env.GetEnv("STATE_BACKEND", StateBackendFile)),
		StateDir:               env.GetEnv("STATE_DIR", "./data"),
		ProcessedEventsCap:     env.GetEnvInt("PROCESSED_EVENTS_CAP", 1000),
		GuardBackend:           strings.ToLower(env.GetEnv("GUARD_BACKEND", GuardBackendLocal)),
		GuardTTL:               time.Duration(env.GetEnvInt("GUARD_TTL_SECONDS", 300)) * time.Second,
		WebhookNotificationURL: strings.TrimSpace(env.GetEnv("PAYMENT_WEBHOOK_NOTIFICATION_URL", "")),
		WebhookSignatureKeys:   env.GetEnvList("PAYMENT_WEBHOOK_SIGNATURE_KEYS"),
		InternalAPIKey:         strings.TrimSpace(env.GetEnv("INTERNAL_API_KEY", "")),
		GenerationAPIURL:       strings.TrimSpace(env.GetEnv("GENERATION_API_URL", "")),
		GenerationAPIKey:       strings.TrimSpace(env.GetEnv("GENERATION_API_KEY", "")),
		GenerationMaxDimension: env.GetEnvInt("GENERATION_MAX_DIMENSION", 1536),
		CouponAPIURL:           strings.TrimSpace(env.GetEnv("COUPON_API_URL", "")),
		CouponAPIKey:           strings.TrimSpace(env.GetEnv("COUPON_API_KEY", "")),
		PrintWorkers:           env.GetEnvInt("PRINT_WORKERS", 2),
		APIRateLimit:           env.GetEnvInt("API_RATE_LIMIT", 120),
		MetricsUser:            env.GetEnv("METRICS_USER", "admin"),
		MetricsPassword:        env.GetEnv("METRICS_PASSWORD", ""),
	}

	if err := models.Validator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the host:port pair the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.AppHost, c.AppPort)
}
