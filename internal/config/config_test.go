package config

import (
	"testing"
	"time"

	"companion-api/pkg/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() []string {
	return []string{
		"MONGO_URI=mongodb://localhost:27017",
		"JWT_SECRET=0123456789abcdef0123",
		"SESSION_SECRET=fedcba9876543210fedc",
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(baseEnv())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "", cfg.APIPrefix)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, "companion", cfg.MongoDatabase)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiry)
	assert.Equal(t, "session", cfg.Session.CookieName)
	assert.Equal(t, 14*24*time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, "localhost:6379", cfg.Redis.RedisAddr())

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, ratelimit.DefaultExpiryGrace, cfg.RateLimit.ExpiryGrace)
	assert.Equal(t, "memory", cfg.RateLimit.StatsBackend)
	assert.Equal(t, ratelimit.Limit{Rate: 30, Per: 10 * time.Second}, cfg.RateLimit.Limits["player_json"])
}

func TestFromEnv_Overrides(t *testing.T) {
	env := append(baseEnv(),
		"PORT=9000",
		"API_PREFIX=/api/",
		"ALLOWED_ORIGINS=https://a.example, https://b.example ,",
		"JWT_EXPIRY=2h",
		"SESSION_MAX_AGE=3600",
		"REDIS_DB=2",
		"RATELIMIT_ENABLED=false",
		"RATELIMIT_EXPIRY_GRACE=30s",
		"RATELIMIT_STATS_BACKEND=Redis",
		"LIMIT_PLAYER_JSON=60/60s",
		"LIMIT_CUSTOM_ENDPOINT=5/10/user",
	)

	cfg, err := FromEnv(env)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 2*time.Hour, cfg.JWT.Expiry)
	assert.Equal(t, time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.ExpiryGrace)
	assert.Equal(t, "redis", cfg.RateLimit.StatsBackend)
	assert.Equal(t, ratelimit.Limit{Rate: 60, Per: time.Minute}, cfg.RateLimit.Limits["player_json"])
	assert.Equal(t, ratelimit.Limit{Rate: 5, Per: 10 * time.Second, Bucket: ratelimit.BucketUser}, cfg.RateLimit.Limits["custom_endpoint"])
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  []string
	}{
		{"missing mongo", []string{"JWT_SECRET=0123456789abcdef0123", "SESSION_SECRET=fedcba9876543210fedc"}},
		{"short jwt secret", []string{"MONGO_URI=mongodb://x", "JWT_SECRET=short", "SESSION_SECRET=fedcba9876543210fedc"}},
		{"bad limit", append(baseEnv(), "LIMIT_QUOTES=0/10")},
		{"bad limit format", append(baseEnv(), "LIMIT_QUOTES=lots")},
		{"bad bool", append(baseEnv(), "RATELIMIT_ENABLED=maybe")},
		{"bad duration", append(baseEnv(), "JWT_EXPIRY=soon")},
		{"bad backend", append(baseEnv(), "RATELIMIT_STATS_BACKEND=etcd")},
		{"bad prefix", append(baseEnv(), "API_PREFIX=api")},
		{"negative grace", append(baseEnv(), "RATELIMIT_EXPIRY_GRACE=-1s")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromEnv(tt.env)
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, ratelimit.ErrInvalidConfiguration)
		})
	}
}
