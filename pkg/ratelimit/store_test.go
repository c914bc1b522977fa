package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *manualClock) Set(offset time.Duration, base time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = base.Add(offset)
}

func mustWindow(t *testing.T, rate int, per time.Duration) RateWindow {
	t.Helper()
	w, err := NewRateWindow(rate, per)
	require.NoError(t, err)
	return w
}

func TestStore_ExampleScenario(t *testing.T) {
	clock := newManualClock()
	start := clock.Now()
	store := NewStore(WithClock(clock))
	w := mustWindow(t, 2, 10*time.Second)

	d := store.Update("A", w)
	assert.True(t, d.Allowed)
	tat, ok := store.TAT("A")
	require.True(t, ok)
	assert.Equal(t, start.Add(5*time.Second), tat)

	clock.Set(100*time.Millisecond, start)
	d = store.Update("A", w)
	assert.True(t, d.Allowed)
	tat, _ = store.TAT("A")
	assert.Equal(t, start.Add(10*time.Second), tat)

	clock.Set(200*time.Millisecond, start)
	d = store.Update("A", w)
	assert.False(t, d.Allowed)
	assert.Equal(t, 4800*time.Millisecond, d.RetryAfter)
	assert.Equal(t, 5, d.RetryAfterSeconds())

	clock.Set(5300*time.Millisecond, start)
	d = store.Update("A", w)
	assert.True(t, d.Allowed)
	tat, _ = store.TAT("A")
	assert.Equal(t, start.Add(15*time.Second), tat)
}

func TestStore_BurstCapacity(t *testing.T) {
	tests := []struct {
		rate int
		per  time.Duration
	}{
		{1, time.Second},
		{2, 10 * time.Second},
		{3, time.Minute},
		{30, 10 * time.Second},
		{7, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%s", tt.rate, tt.per), func(t *testing.T) {
			store := NewStore(WithClock(newManualClock()))
			w := mustWindow(t, tt.rate, tt.per)

			for i := 0; i < tt.rate; i++ {
				assert.True(t, store.Update("k", w).Allowed, "request %d should be allowed", i+1)
			}

			d := store.Update("k", w)
			assert.False(t, d.Allowed)
			assert.InDelta(t, w.EmissionInterval().Seconds(), d.RetryAfter.Seconds(), 1e-6)
		})
	}
}

func TestStore_SteadyState(t *testing.T) {
	clock := newManualClock()
	store := NewStore(WithClock(clock))
	w := mustWindow(t, 4, 10*time.Second)

	for i := 0; i < 200; i++ {
		require.True(t, store.Update("steady", w).Allowed, "request %d", i)
		clock.Advance(w.EmissionInterval())
	}
}

func TestStore_DenialDoesNotMoveTAT(t *testing.T) {
	clock := newManualClock()
	store := NewStore(WithClock(clock))
	w := mustWindow(t, 2, 10*time.Second)

	require.True(t, store.Update("A", w).Allowed)
	require.True(t, store.Update("A", w).Allowed)
	before, _ := store.TAT("A")

	last := time.Duration(1<<63 - 1)
	for i := 0; i < 50; i++ {
		clock.Advance(10 * time.Millisecond)
		d := store.Update("A", w)
		require.False(t, d.Allowed)
		assert.LessOrEqual(t, d.RetryAfter, last)
		last = d.RetryAfter
	}

	after, _ := store.TAT("A")
	assert.Equal(t, before, after)
	assert.Equal(t, 4500*time.Millisecond, last)
}

func TestStore_KeyIndependence(t *testing.T) {
	store := NewStore(WithClock(newManualClock()))
	w := mustWindow(t, 1, time.Minute)

	assert.True(t, store.Update(BucketKey("10.0.0.1", "/quotes/:id"), w).Allowed)
	assert.False(t, store.Update(BucketKey("10.0.0.1", "/quotes/:id"), w).Allowed)

	assert.True(t, store.Update(BucketKey("10.0.0.2", "/quotes/:id"), w).Allowed)
	assert.True(t, store.Update(BucketKey("10.0.0.1", "/points/:twitch_id"), w).Allowed)
	assert.Equal(t, 3, store.Len())
}

func TestStore_Expiry(t *testing.T) {
	clock := newManualClock()
	store := NewStore(WithClock(clock))
	w := mustWindow(t, 2, 10*time.Second)

	require.True(t, store.Update("A", w).Allowed)
	require.True(t, store.Update("A", w).Allowed)
	require.False(t, store.Update("A", w).Allowed)
	tat, _ := store.TAT("A")

	// exactly period+grace after the TAT is still retained
	clock.Set(70*time.Second, tat)
	store.Update("other", w)
	_, ok := store.TAT("A")
	assert.True(t, ok)

	clock.Advance(time.Millisecond)
	store.Update("other", w)
	_, ok = store.TAT("A")
	assert.False(t, ok)

	d := store.Update("A", w)
	assert.True(t, d.Allowed)
	newTAT, _ := store.TAT("A")
	assert.Equal(t, clock.Now().Add(5*time.Second), newTAT)
}

func TestStore_ExpiryGraceOption(t *testing.T) {
	clock := newManualClock()
	store := NewStore(WithClock(clock), WithExpiryGrace(0))
	w := mustWindow(t, 1, time.Second)

	store.Update("A", w)
	clock.Advance(2*time.Second + time.Millisecond)
	store.Update("B", w)

	assert.Equal(t, 1, store.Len())
}

func TestStore_SweepInterval(t *testing.T) {
	clock := newManualClock()
	store := NewStore(WithClock(clock), WithExpiryGrace(0), WithSweepInterval(time.Hour))
	w := mustWindow(t, 1, time.Second)

	store.Update("A", w)
	clock.Advance(10 * time.Second)
	store.Update("B", w)
	assert.Equal(t, 2, store.Len(), "sweep is throttled")

	clock.Advance(time.Hour)
	store.Update("C", w)
	assert.Equal(t, 1, store.Len())
}

func TestStore_SweepIgnoresInterval(t *testing.T) {
	clock := newManualClock()
	store := NewStore(WithClock(clock), WithExpiryGrace(0), WithSweepInterval(time.Hour))
	w := mustWindow(t, 1, time.Second)

	store.Update("A", w)
	store.Update("B", w)
	clock.Advance(10 * time.Second)

	assert.Equal(t, 2, store.Sweep())
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, store.Sweep())
}

func TestStore_Reset(t *testing.T) {
	store := NewStore()
	w := mustWindow(t, 1, time.Minute)

	store.Update("A", w)
	store.Update("B", w)
	require.Equal(t, 2, store.Len())

	store.Reset()
	assert.Equal(t, 0, store.Len())
	assert.True(t, store.Update("A", w).Allowed)
}

func TestStore_ConcurrentSameKey(t *testing.T) {
	store := NewStore(WithClock(newManualClock()))
	w := mustWindow(t, 10, time.Minute)

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Update("shared", w).Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed)
}
