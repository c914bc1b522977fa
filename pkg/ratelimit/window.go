package ratelimit

import (
	"fmt"
	"time"
)

// RateWindow is an allowance of Rate requests per Period
type RateWindow struct {
	Rate   int           `json:"rate"`
	Period time.Duration `json:"period"`
}

// NewRateWindow validates and builds a window
func NewRateWindow(rate int, per time.Duration) (RateWindow, error) {
	if rate <= 0 {
		return RateWindow{}, fmt.Errorf("%w: rate must be positive, got %d", ErrInvalidConfiguration, rate)
	}
	if per <= 0 {
		return RateWindow{}, fmt.Errorf("%w: period must be positive, got %s", ErrInvalidConfiguration, per)
	}
	if per/time.Duration(rate) < time.Nanosecond {
		return RateWindow{}, fmt.Errorf("%w: %d per %s is finer than one nanosecond", ErrInvalidConfiguration, rate, per)
	}
	return RateWindow{Rate: rate, Period: per}, nil
}

// EmissionInterval is the steady-state spacing between admitted requests
func (w RateWindow) EmissionInterval() time.Duration {
	return time.Duration(float64(w.Period) / float64(w.Rate))
}

// BurstTolerance is how far ahead of now the TAT may sit while still admitting
// a request: the whole period minus one slot.
func (w RateWindow) BurstTolerance() time.Duration {
	return w.Period - w.EmissionInterval()
}

func (w RateWindow) String() string {
	return fmt.Sprintf("%d/%s", w.Rate, w.Period)
}
