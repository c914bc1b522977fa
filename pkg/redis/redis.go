package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"companion-api/internal/config"

	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client with a background health monitor. The
// go-redis pool redials on its own; the monitor tracks reachability and backs
// off while Redis is down. The *redis.Client handed out by GetClient is stable
// for the life of the Client.
type Client struct {
	mu        sync.RWMutex
	client    *redis.Client
	options   *redis.Options
	connected bool

	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

type HealthStatus struct {
	IsConnected  bool          `json:"isConnected"`
	LastPing     time.Time     `json:"lastPing"`
	ResponseTime time.Duration `json:"responseTime"`
	Addr         string        `json:"addr"`
	Error        string        `json:"error,omitempty"`
}

// PoolStats is a JSON friendly copy of the go-redis pool counters
type PoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"totalConns"`
	IdleConns  uint32 `json:"idleConns"`
	StaleConns uint32 `json:"staleConns"`
}

// Options translates config into go-redis options. REDIS_URL wins over
// host/port when it parses.
func Options(cfg config.RedisConfig) *redis.Options {
	opt := &redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			slog.Warn("failed to parse Redis URL, falling back to host:port", "error", err)
		} else {
			opt = parsed
		}
	}

	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.MaxRetries = cfg.MaxRetries
	opt.MinRetryBackoff = cfg.RetryDelay
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout
	opt.PoolTimeout = cfg.PoolTimeout
	return opt
}

// NewClient connects to Redis and starts the health monitor. A failed first
// ping is logged, not returned: the monitor keeps retrying.
func NewClient(ctx context.Context, cfg config.RedisConfig) *Client {
	return newClient(ctx, Options(cfg), 30*time.Second)
}

func newClient(ctx context.Context, opt *redis.Options, interval time.Duration) *Client {
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		options:  opt,
		client:   redis.NewClient(opt),
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if status := c.HealthCheck(ctx); status.IsConnected {
		slog.Info("redis connected", "addr", opt.Addr)
	} else {
		slog.Warn("redis connection test failed", "addr", opt.Addr, "error", status.Error)
	}

	go c.monitor(ctx)
	return c
}

// GetClient returns the current go-redis client
func (c *Client) GetClient() *redis.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// IsConnected returns the result of the last health check
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck pings Redis and records the outcome
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	client := c.GetClient()
	status := HealthStatus{Addr: c.options.Addr}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := client.Ping(ctx).Err()
	status.ResponseTime = time.Since(start)
	status.LastPing = time.Now()
	status.IsConnected = err == nil
	if err != nil {
		status.Error = err.Error()
	}

	c.mu.Lock()
	c.connected = status.IsConnected
	c.mu.Unlock()

	return status
}

// monitor pings on every tick and waits with exponential backoff while Redis
// is unreachable.
func (c *Client) monitor(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.HealthCheck(ctx).IsConnected {
			backoff = time.Second
			continue
		}

		slog.Warn("redis unreachable", "addr", c.options.Addr, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Close stops the monitor and closes the pool
func (c *Client) Close() error {
	c.cancel()
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics
func (c *Client) Stats() PoolStats {
	s := c.GetClient().PoolStats()
	return PoolStats{
		Hits:       s.Hits,
		Misses:     s.Misses,
		Timeouts:   s.Timeouts,
		TotalConns: s.TotalConns,
		IdleConns:  s.IdleConns,
		StaleConns: s.StaleConns,
	}
}
