package ratelimit

import (
	"context"
	"sync"
)

// MemoryRecorder counts decisions in process memory.
// It does no expiry; cardinality is bounded by the number of routes.
type MemoryRecorder struct {
	mu      sync.Mutex
	total   Count
	byRoute map[string]Count
}

// NewMemoryRecorder creates an empty recorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{byRoute: make(map[string]Count)}
}

// Record implements Recorder
func (m *MemoryRecorder) Record(_ context.Context, ev Event) error {
	route := routeLabel(ev)

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.byRoute[route]
	if ev.Allowed {
		m.total.Allowed++
		c.Allowed++
	} else {
		m.total.Denied++
		c.Denied++
	}
	m.byRoute[route] = c
	return nil
}

// Stats returns a copy of the counters
func (m *MemoryRecorder) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Stats{
		TotalRequests:   m.total.Allowed + m.total.Denied,
		BlockedRequests: m.total.Denied,
		ByRoute:         make(map[string]Count, len(m.byRoute)),
	}
	for k, v := range m.byRoute {
		out.ByRoute[k] = v
	}
	return out
}

func routeLabel(ev Event) string {
	if ev.Method == "" {
		return ev.Route
	}
	return ev.Method + " " + ev.Route
}

// MultiRecorder fans an event out to several recorders and returns the first error
type MultiRecorder []Recorder

// Record implements Recorder
func (m MultiRecorder) Record(ctx context.Context, ev Event) error {
	var first error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Snapshot implements StatsReader
func (m *MemoryRecorder) Snapshot(context.Context) (Stats, error) {
	return m.Stats(), nil
}
