package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MESSAGE_ENCRYPTION_KEY", validKey)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, 15, cfg.JWT.AccessTokenExpiry)
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.OpTimeout)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, 5, cfg.RateLimit.LoginAttempts)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MESSAGE_ENCRYPTION_KEY", validKey)
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_OP_TIMEOUT", "100ms")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 100*time.Millisecond, cfg.Redis.OpTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Log.Development)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing jwt secret", map[string]string{"JWT_SECRET": "", "MESSAGE_ENCRYPTION_KEY": validKey}},
		{"short encryption key", map[string]string{"JWT_SECRET": "s", "MESSAGE_ENCRYPTION_KEY": "abcd"}},
		{"bad port", map[string]string{"JWT_SECRET": "s", "MESSAGE_ENCRYPTION_KEY": validKey, "SERVER_PORT": "http"}},
		{"zero rate limit", map[string]string{"JWT_SECRET": "s", "MESSAGE_ENCRYPTION_KEY": validKey, "RATE_LIMIT_TYPING_PER_MINUTE": "0"}},
		{"bad duration", map[string]string{"JWT_SECRET": "s", "MESSAGE_ENCRYPTION_KEY": validKey, "REDIS_OP_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
