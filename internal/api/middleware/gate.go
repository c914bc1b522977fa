package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"companion-api/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimitMessage is the body of every 429 the gate sends
const RateLimitMessage = "You are requesting too fast. Slow down!"

var (
	loopbackV4 = net.IPv4(127, 0, 0, 1)
	loopbackV6 = net.IPv6loopback
)

// Gate enforces route policies against a shared Store. One Gate serves every
// route; policies are attached per route with Limit.
type Gate struct {
	store    *ratelimit.Store
	recorder ratelimit.Recorder
	logger   *slog.Logger
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithRecorder records every admission decision
func WithRecorder(r ratelimit.Recorder) GateOption {
	return func(g *Gate) { g.recorder = r }
}

// WithLogger replaces the default logger
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGate creates a gate over store
func NewGate(store *ratelimit.Store, opts ...GateOption) *Gate {
	g := &Gate{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Store returns the backing store
func (g *Gate) Store() *ratelimit.Store {
	return g.store
}

// Limit returns a handler enforcing p. A nil policy lets everything through.
//
// For WebSocket routes the handler runs once, on the upgrade request.
func (g *Gate) Limit(p *ratelimit.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p == nil {
			c.Next()
			return
		}

		decision, checked := g.Check(c, p)
		if !checked || decision.Allowed {
			c.Next()
			return
		}

		c.Header("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": RateLimitMessage})
	}
}

// Check runs the admission steps for one request. checked is false when the
// request bypassed the store (exempt or loopback).
func (g *Gate) Check(c *gin.Context, p *ratelimit.Policy) (decision ratelimit.Decision, checked bool) {
	if p.IsExempt(c.Request) {
		return ratelimit.Decision{Allowed: true}, false
	}

	ip := ClientIP(c.Request)
	if IsLoopback(ip) {
		return ratelimit.Decision{Allowed: true}, false
	}

	route := routePath(c)
	key := ratelimit.BucketKey(g.identity(c, p, ip), route)
	decision = g.store.Update(key, p.Window())

	if !decision.Allowed {
		g.logger.Debug("rate limited",
			"key", key,
			"policy", p.Name(),
			"retry_after", decision.RetryAfter,
		)
	}

	if g.recorder != nil {
		ev := ratelimit.Event{
			Key:     key,
			Route:   route,
			Method:  c.Request.Method,
			Allowed: decision.Allowed,
			At:      g.store.Now(),
		}
		if err := g.recorder.Record(c.Request.Context(), ev); err != nil {
			g.logger.Warn("failed to record rate limit decision", "key", key, "error", err)
		}
	}

	return decision, true
}

// identity picks the bucket owner. User policies without an authenticated
// caller fall back to the client address.
func (g *Gate) identity(c *gin.Context, p *ratelimit.Policy, ip string) string {
	if p.Bucket() == ratelimit.BucketUser {
		if uid := c.GetString(UserIDKey); uid != "" {
			return "user:" + uid
		}
	}
	return ip
}

// ClientIP returns the first X-Forwarded-For entry, else the peer address
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IsLoopback reports whether ip is 127.0.0.1 or ::1
func IsLoopback(ip string) bool {
	parsed := net.ParseIP(strings.Trim(ip, "[]"))
	if parsed == nil {
		return false
	}
	return parsed.Equal(loopbackV4) || parsed.Equal(loopbackV6)
}

func routePath(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return c.Request.URL.Path
}
