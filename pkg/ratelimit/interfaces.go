package ratelimit

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"
)

// ErrInvalidConfiguration is returned when a window or policy is built with a
// non-positive rate or period.
var ErrInvalidConfiguration = errors.New("invalid rate limit configuration")

// Clock supplies the current time for rate computations
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface
type ClockFunc func() time.Time

// Now returns f()
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }

// Decision is the outcome of a single admission check.
// A denied request is a value, not an error.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	RetryAfter time.Duration `json:"retryAfter"`
}

// RetryAfterSeconds rounds the wait up to whole seconds for the Retry-After header
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed || d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Exempter decides whether a request bypasses the limiter entirely
type Exempter interface {
	Exempt(r *http.Request) bool
}

// ExemptFunc adapts a function to the Exempter interface
type ExemptFunc func(r *http.Request) bool

// Exempt calls f(r)
func (f ExemptFunc) Exempt(r *http.Request) bool { return f(r) }

// Event describes one admission decision taken by the request gate
type Event struct {
	Key     string    `json:"key"`
	Route   string    `json:"route"`
	Method  string    `json:"method"`
	Allowed bool      `json:"allowed"`
	At      time.Time `json:"at"`
}

// Recorder persists admission decisions. Implementations are best-effort: the
// gate never fails a request because recording failed.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Stats summarises recorded decisions
type Stats struct {
	TotalRequests   int64            `json:"totalRequests"`
	BlockedRequests int64            `json:"blockedRequests"`
	TrackedKeys     int              `json:"trackedKeys"`
	ByRoute         map[string]Count `json:"byRoute"`
}

// Count holds allowed/denied counters for one route
type Count struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// StatsReader exposes recorded counters
type StatsReader interface {
	Snapshot(ctx context.Context) (Stats, error)
}
