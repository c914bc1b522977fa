package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops expired entries and reports how many went
type Sweeper interface {
	Sweep() int
}

// Janitor sweeps idle rate limit buckets on a fixed interval, so memory is
// reclaimed even when no request arrives to trigger the opportunistic purge.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
}

func NewJanitor(sweeper Sweeper, interval time.Duration) *Janitor {
	return &Janitor{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Start sweeps every interval until ctx is done. It does nothing when the
// interval is not positive.
func (j *Janitor) Start(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	slog.Info("starting rate limit janitor", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep()
		case <-ctx.Done():
			slog.Info("stopping rate limit janitor")
			return
		}
	}
}

func (j *Janitor) sweep() {
	if n := j.sweeper.Sweep(); n > 0 {
		slog.Debug("swept idle rate limit buckets", "count", n)
	}
}
