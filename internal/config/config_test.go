package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("CART_TTL", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.Development())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.CatalogCacheTTL)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.Equal(t, 24*time.Hour, cfg.Rules.CartTTL)
	assert.True(t, cfg.Rules.SlidingCartTTL)
	assert.Equal(t, 365*24*time.Hour, cfg.Rules.Horizon)
	assert.Equal(t, 10, cfg.Rules.MaxCartSlots)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("CART_TTL", "2h")
	t.Setenv("CART_SLIDING_TTL", "false")
	t.Setenv("RESERVATION_HORIZON_DAYS", "30")
	t.Setenv("RESERVATION_MAX_DURATION", "8h")
	t.Setenv("APP_TIMEZONE", "Europe/Paris")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Development())
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Hour, cfg.Rules.CartTTL)
	assert.False(t, cfg.Rules.SlidingCartTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Rules.Horizon)
	assert.Equal(t, 8*time.Hour, cfg.Rules.MaxDuration)
	assert.Equal(t, "Europe/Paris", cfg.Rules.Location.String())
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestLoad_Malformed(t *testing.T) {
	cases := map[string]string{
		"CART_TTL":                 "a day",
		"CART_SLIDING_TTL":         "maybe",
		"RESERVATION_HORIZON_DAYS": "one year",
		"APP_TIMEZONE":             "Mars/Olympus",
		"RESERVATION_MAX_DURATION": "-1h",
		"OUTBOX_POLL_INTERVAL":     "0s",
		"CATALOG_CACHE_TTL":        "-30s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
