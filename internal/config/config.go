package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "ExpertA"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultSessionTTL     = 30 * 24 * time.Hour
	defaultUpstreamWait   = 15 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultFreeTurns      = 3
	defaultPaidTurns      = 20
	defaultSignInPerMin   = 5
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string

	// Upstream collaborators.
	IdentityURL string
	ChatURL     string
	PaymentURL  string

	// Optional backing stores; the gateway falls back to in-process state
	// without them.
	DatabaseURL string
	RedisURL    string

	SessionTTL      time.Duration
	UpstreamTimeout time.Duration
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration

	// Quota defaults used when an expert profile does not carry its own.
	FreeTurns int
	PaidTurns int

	SignInPerMinute int
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		IdentityURL:     os.Getenv("IDENTITY_URL"),
		ChatURL:         os.Getenv("CHAT_URL"),
		PaymentURL:      os.Getenv("PAYMENT_URL"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		SessionTTL:      defaultSessionTTL,
		UpstreamTimeout: defaultUpstreamWait,
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		FreeTurns:       defaultFreeTurns,
		PaidTurns:       defaultPaidTurns,
		SignInPerMinute: defaultSignInPerMin,
	}

	var err error
	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", cfg.SessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.UpstreamTimeout, err = durationEnv("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.FreeTurns, err = intEnv("FREE_TURNS", cfg.FreeTurns); err != nil {
		return Config{}, err
	}
	if cfg.PaidTurns, err = intEnv("PAID_TURNS", cfg.PaidTurns); err != nil {
		return Config{}, err
	}
	if cfg.SignInPerMinute, err = intEnv("SIGNIN_PER_MINUTE", cfg.SignInPerMinute); err != nil {
		return Config{}, err
	}

	if cfg.IdentityURL == "" {
		return Config{}, fmt.Errorf("IDENTITY_URL must be set")
	}
	if cfg.ChatURL == "" {
		return Config{}, fmt.Errorf("CHAT_URL must be set")
	}
	if cfg.PaymentURL == "" {
		return Config{}, fmt.Errorf("PAYMENT_URL must be set")
	}
	if cfg.FreeTurns < 0 || cfg.PaidTurns <= 0 {
		return Config{}, fmt.Errorf("FREE_TURNS must be >= 0 and PAID_TURNS > 0")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the configured environment is a development one.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
