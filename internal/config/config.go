package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"companion-api/pkg/ratelimit"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the process configuration assembled from .env and the environment
type Config struct {
	Port           string   `validate:"required,numeric"`
	APIPrefix      string   `validate:"omitempty,startswith=/"`
	GinMode        string   `validate:"omitempty,oneof=debug release test"`
	AllowedOrigins []string `validate:"min=1,dive,required"`
	MongoURI       string   `validate:"required"`
	MongoDatabase  string   `validate:"required"`

	JWT       JWTConfig
	Session   SessionConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// JWTConfig configures API bearer tokens
type JWTConfig struct {
	Secret string        `validate:"required,min=16"`
	Expiry time.Duration `validate:"gt=0"`
}

// SessionConfig configures the signed session cookie
type SessionConfig struct {
	Secret     string        `validate:"required,min=16"`
	CookieName string        `validate:"required"`
	MaxAge     time.Duration `validate:"gt=0"`
	Secure     bool
}

// RedisConfig configures the shared Redis connection
type RedisConfig struct {
	URL          string
	Host         string
	Port         string
	Password     string
	DB           int `validate:"gte=0"`
	PoolSize     int `validate:"gt=0"`
	MinIdleConns int `validate:"gte=0"`
	MaxRetries   int `validate:"gte=0"`
	RetryDelay   time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// RateLimitConfig wraps the limiter table plus where decisions are recorded
type RateLimitConfig struct {
	ratelimit.Config
	StatsBackend string `validate:"oneof=memory redis"`
}

// Load reads .env (if present) and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return FromEnv(os.Environ())
}

// FromEnv builds a Config from KEY=VALUE pairs, usually os.Environ()
func FromEnv(environ []string) (*Config, error) {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	env := envReader{vars: vars}

	cfg := &Config{
		Port:           env.str("PORT", "8080"),
		APIPrefix:      strings.TrimSuffix(env.str("API_PREFIX", ""), "/"),
		GinMode:        env.str("GIN_MODE", ""),
		AllowedOrigins: splitList(env.str("ALLOWED_ORIGINS", "http://localhost:5173")),
		MongoURI:       env.str("MONGO_URI", ""),
		MongoDatabase:  env.str("MONGO_DATABASE", "companion"),
		JWT: JWTConfig{
			Secret: env.str("JWT_SECRET", ""),
			Expiry: env.duration("JWT_EXPIRY", 24*time.Hour),
		},
		Session: SessionConfig{
			Secret:     env.str("SESSION_SECRET", ""),
			CookieName: env.str("SESSION_COOKIE", "session"),
			MaxAge:     env.duration("SESSION_MAX_AGE", 14*24*time.Hour),
			Secure:     env.boolean("SESSION_SECURE", false),
		},
		Redis: RedisConfig{
			URL:          env.str("REDIS_URL", ""),
			Host:         env.str("REDIS_HOST", "localhost"),
			Port:         env.str("REDIS_PORT", "6379"),
			Password:     env.str("REDIS_PASSWORD", ""),
			DB:           env.integer("REDIS_DB", 0),
			PoolSize:     env.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: env.integer("REDIS_MIN_IDLE_CONNS", 2),
			MaxRetries:   env.integer("REDIS_MAX_RETRIES", 3),
			RetryDelay:   env.duration("REDIS_RETRY_DELAY", 100*time.Millisecond),
			DialTimeout:  env.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  env.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: env.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  env.duration("REDIS_POOL_TIMEOUT", 4*time.Second),
		},
	}

	limits := ratelimit.DefaultConfig()
	limits.Enabled = env.boolean("RATELIMIT_ENABLED", true)
	limits.ExpiryGrace = env.duration("RATELIMIT_EXPIRY_GRACE", ratelimit.DefaultExpiryGrace)
	limits.SweepInterval = env.duration("RATELIMIT_SWEEP_INTERVAL", 0)
	cfg.RateLimit = RateLimitConfig{
		Config:       *limits,
		StatsBackend: strings.ToLower(env.str("RATELIMIT_STATS_BACKEND", "memory")),
	}

	if env.err != nil {
		return nil, env.err
	}

	if err := applyLimitOverrides(cfg.RateLimit.Limits, vars); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and every named limit
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ratelimit.ErrInvalidConfiguration, strings.Join(fields, ", "))
		}
		return err
	}

	if c.RateLimit.ExpiryGrace < 0 || c.RateLimit.SweepInterval < 0 {
		return fmt.Errorf("%w: rate limit durations must not be negative", ratelimit.ErrInvalidConfiguration)
	}
	return c.RateLimit.Validate()
}

// RedisAddr returns host:port
func (r RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// applyLimitOverrides replaces or adds named limits from LIMIT_<NAME>=<rate>/<per>[/<bucket>]
func applyLimitOverrides(limits map[string]ratelimit.Limit, vars map[string]string) error {
	for key, raw := range vars {
		if !strings.HasPrefix(key, "LIMIT_") || strings.TrimSpace(raw) == "" {
			continue
		}

		l, err := ratelimit.ParseLimit(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		limits[strings.ToLower(strings.TrimPrefix(key, "LIMIT_"))] = l
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envReader collects the first parse error instead of failing on each call
type envReader struct {
	vars map[string]string
	err  error
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.vars[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *envReader) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}

// duration accepts Go durations ("30s") or bare seconds ("30")
func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s=%q: %v", ratelimit.ErrInvalidConfiguration, key, value, err)
	}
}
