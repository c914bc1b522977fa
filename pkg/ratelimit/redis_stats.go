package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder keeps decision counters in Redis hashes so several API
// processes can report a combined view.
//
// Keys:
//
//	<prefix>:total              allowed / denied
//	<prefix>:route              "<METHOD> <route>:allowed" / ":denied"
//	<prefix>:minute:<yyyymmddhhmm>  allowed / denied, expires after ttl
type RedisRecorder struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisRecorderOption configures a RedisRecorder
type RedisRecorderOption func(*RedisRecorder)

// WithRedisPrefix sets the key prefix
func WithRedisPrefix(prefix string) RedisRecorderOption {
	return func(r *RedisRecorder) {
		if p := strings.Trim(prefix, ":"); p != "" {
			r.prefix = p
		}
	}
}

// WithRedisTTL sets the expiry of per-minute keys
func WithRedisTTL(d time.Duration) RedisRecorderOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

// NewRedisRecorder creates a recorder on top of an existing client
func NewRedisRecorder(client *redis.Client, opts ...RedisRecorderOption) *RedisRecorder {
	r := &RedisRecorder{
		client: client,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record implements Recorder
func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.client == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, r.prefix+":total", field, 1)

	minuteKey := fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, minuteKey, r.ttl)
	}

	if route := strings.TrimSpace(routeLabel(ev)); route != "" {
		pipe.HIncrBy(ctx, r.prefix+":route", route+":"+field, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record rate limit event: %w", err)
	}
	return nil
}

// Snapshot implements StatsReader
func (r *RedisRecorder) Snapshot(ctx context.Context) (Stats, error) {
	stats := Stats{ByRoute: make(map[string]Count)}

	total, err := r.client.HGetAll(ctx, r.prefix+":total").Result()
	if err != nil {
		return stats, fmt.Errorf("failed to read rate limit totals: %w", err)
	}
	allowed, _ := strconv.ParseInt(total["allowed"], 10, 64)
	denied, _ := strconv.ParseInt(total["denied"], 10, 64)
	stats.TotalRequests = allowed + denied
	stats.BlockedRequests = denied

	routes, err := r.client.HGetAll(ctx, r.prefix+":route").Result()
	if err != nil {
		return stats, fmt.Errorf("failed to read rate limit routes: %w", err)
	}
	for field, raw := range routes {
		idx := strings.LastIndex(field, ":")
		if idx < 0 {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}

		route := field[:idx]
		c := stats.ByRoute[route]
		switch field[idx+1:] {
		case "allowed":
			c.Allowed += n
		case "denied":
			c.Denied += n
		}
		stats.ByRoute[route] = c
	}

	return stats, nil
}
