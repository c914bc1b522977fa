package ratelimit

import (
	"sync"
	"time"
)

// DefaultExpiryGrace is added to a window's period before an idle bucket is purged
const DefaultExpiryGrace = 60 * time.Second

// Store implements GCRA admission control over in-memory buckets.
//
// Each bucket keeps a single theoretical arrival time (TAT). An allowed request
// advances the TAT by one emission interval; a denied request leaves it alone.
// All updates run under one mutex, so decisions for a key are serialized.
type Store struct {
	mu      sync.Mutex
	entries map[string]*bucket

	clock         Clock
	grace         time.Duration
	sweepInterval time.Duration
	lastSweep     time.Time
}

type bucket struct {
	tat    time.Time
	window RateWindow
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock replaces the wall clock, mostly for tests
func WithClock(c Clock) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithExpiryGrace sets how long past its period an idle bucket survives
func WithExpiryGrace(d time.Duration) StoreOption {
	return func(s *Store) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithSweepInterval limits the opportunistic purge to once per d.
// Zero sweeps on every Update.
func WithSweepInterval(d time.Duration) StoreOption {
	return func(s *Store) {
		if d >= 0 {
			s.sweepInterval = d
		}
	}
}

// NewStore creates an empty store. It has no background goroutines; its
// lifetime is that of the value returned.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]*bucket),
		clock:   SystemClock{},
		grace:   DefaultExpiryGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update runs one GCRA check for key under window w.
func (s *Store) Update(key string, w RateWindow) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.sweepLocked(now)

	tat := now
	if b, ok := s.entries[key]; ok && b.tat.After(now) {
		tat = b.tat
	}

	separation := tat.Sub(now)
	maxInterval := w.BurstTolerance()

	if separation > maxInterval {
		return Decision{Allowed: false, RetryAfter: separation - maxInterval}
	}

	s.entries[key] = &bucket{tat: tat.Add(w.EmissionInterval()), window: w}
	return Decision{Allowed: true}
}

// sweepLocked drops buckets idle for longer than their period plus the grace.
func (s *Store) sweepLocked(now time.Time) {
	if s.sweepInterval > 0 && !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < s.sweepInterval {
		return
	}
	s.purgeLocked(now)
}

func (s *Store) purgeLocked(now time.Time) int {
	s.lastSweep = now

	purged := 0
	for key, b := range s.entries {
		if now.Sub(b.tat) > b.window.Period+s.grace {
			delete(s.entries, key)
			purged++
		}
	}
	return purged
}

// Sweep purges idle buckets immediately and returns how many were dropped
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(s.clock.Now())
}

// TAT returns the stored theoretical arrival time for key
func (s *Store) TAT(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return b.tat, true
}

// Len returns the number of tracked buckets
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reset forgets every bucket
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*bucket)
	s.lastSweep = time.Time{}
}

// Now reads the store's clock
func (s *Store) Now() time.Time {
	return s.clock.Now()
}
