// Package config loads process configuration from .env and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"lab-booking/internal/core"

	"github.com/joho/godotenv"
)

// Config is the resolved process configuration.
type Config struct {
	Env            string
	DatabaseURL    string
	Port           string
	AllowedOrigins string
	JWTSecret      string

	RedisAddr       string
	CatalogCacheTTL time.Duration

	KafkaBrokers       []string
	KafkaTopic         string
	OutboxPollInterval time.Duration

	Rules core.Rules
}

// Load reads .env files (if any) and then the environment. Unset variables
// take their defaults; malformed values are an error.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		Env:            getenv("APP_ENV", "production"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		Port:           getenv("SERVER_PORT", "8080"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getenv("KAFKA_TOPIC", "lab-reservations.events"),
		Rules:          core.DefaultRules(),
	}

	var err error
	if cfg.CatalogCacheTTL, err = duration("CATALOG_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.OutboxPollInterval, err = duration("OUTBOX_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.CatalogCacheTTL <= 0 || cfg.OutboxPollInterval <= 0 {
		return nil, fmt.Errorf("CATALOG_CACHE_TTL and OUTBOX_POLL_INTERVAL must be positive")
	}

	r := &cfg.Rules
	if r.PastBuffer, err = duration("RESERVATION_PAST_BUFFER", r.PastBuffer); err != nil {
		return nil, err
	}
	days, err := integer("RESERVATION_HORIZON_DAYS", int(r.Horizon.Hours()/24))
	if err != nil {
		return nil, err
	}
	r.Horizon = time.Duration(days) * 24 * time.Hour
	if r.MaxDuration, err = duration("RESERVATION_MAX_DURATION", r.MaxDuration); err != nil {
		return nil, err
	}
	if r.CartTTL, err = duration("CART_TTL", r.CartTTL); err != nil {
		return nil, err
	}
	if r.SlidingCartTTL, err = boolean("CART_SLIDING_TTL", r.SlidingCartTTL); err != nil {
		return nil, err
	}
	if tz := os.Getenv("APP_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
		}
		r.Location = loc
	}

	if r.PastBuffer < 0 || r.Horizon <= 0 || r.MaxDuration <= 0 || r.CartTTL <= 0 {
		return nil, fmt.Errorf("reservation rule durations must be positive")
	}
	return cfg, nil
}

// Development reports whether the process runs with development defaults.
func (c *Config) Development() bool {
	return c.Env == "development"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func integer(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func boolean(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
