package cleanup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"companion-api/pkg/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 0
}

func TestJanitor_SweepsUntilCancelled(t *testing.T) {
	sweeper := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewJanitor(sweeper, 5*time.Millisecond).Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestJanitor_DisabledReturnsImmediately(t *testing.T) {
	sweeper := &countingSweeper{}
	NewJanitor(sweeper, 0).Start(context.Background())
	assert.Zero(t, sweeper.calls.Load())
}

func TestJanitor_PurgesIdleBuckets(t *testing.T) {
	var now atomic.Int64
	start := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	now.Store(start.UnixNano())
	clock := ratelimit.ClockFunc(func() time.Time { return time.Unix(0, now.Load()) })

	store := ratelimit.NewStore(ratelimit.WithClock(clock))
	w, err := ratelimit.NewRateWindow(2, 10*time.Second)
	require.NoError(t, err)

	store.Update("a@/x", w)
	store.Update("b@/x", w)
	require.Equal(t, 2, store.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewJanitor(store, 5*time.Millisecond).Start(ctx)

	now.Store(start.Add(2 * time.Minute).UnixNano())
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}
