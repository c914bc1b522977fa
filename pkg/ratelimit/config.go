package ratelimit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Limit is a named rate/per pair as written in configuration
type Limit struct {
	Rate   int           `json:"rate"`
	Per    time.Duration `json:"per"`
	Bucket Bucket        `json:"bucket,omitempty"`
}

// Config holds the named limits routes pick from
type Config struct {
	// Limits by name, e.g. "player_json" or "twitch_auth"
	Limits map[string]Limit `json:"limits"`

	// Enabled turns every policy off when false
	Enabled bool `json:"enabled"`

	// ExpiryGrace is added to a bucket's period before it is purged
	ExpiryGrace time.Duration `json:"expiryGrace"`

	// SweepInterval throttles purging; zero purges on every update
	SweepInterval time.Duration `json:"sweepInterval"`
}

// DefaultConfig returns the stock limit table
func DefaultConfig() *Config {
	return &Config{
		Limits: map[string]Limit{
			// OAuth and login flows are the most sensitive
			"twitch_auth":  {Rate: 3, Per: time.Minute},
			"player_login": {Rate: 10, Per: 10 * time.Second},
			"player_oauth": {Rate: 3, Per: 10 * time.Second},

			// Dashboard and player endpoints
			"player_dashboard": {Rate: 10, Per: 10 * time.Second},
			"player_queues":    {Rate: 10, Per: 5 * time.Second},
			"player_meta":      {Rate: 15, Per: 5 * time.Second},
			"player_likes":     {Rate: 5, Per: 10 * time.Second},
			"player_json":      {Rate: 30, Per: 10 * time.Second},
			"sse_player":       {Rate: 2, Per: 10 * time.Second},

			"quotes":    {Rate: 30, Per: time.Minute},
			"websocket": {Rate: 2, Per: 30 * time.Second},
			"users":     {Rate: 5, Per: time.Minute},
		},
		Enabled:     true,
		ExpiryGrace: DefaultExpiryGrace,
	}
}

// Validate checks every named limit
func (c *Config) Validate() error {
	for _, name := range c.Names() {
		l := c.Limits[name]
		if _, err := NewRateWindow(l.Rate, l.Per); err != nil {
			return fmt.Errorf("limit %q: %w", name, err)
		}
		if _, err := ParseBucket(string(l.Bucket)); err != nil {
			return fmt.Errorf("limit %q: %w", name, err)
		}
	}
	return nil
}

// Names returns the configured limit names in sorted order
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Limits))
	for name := range c.Limits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Policy builds the policy for a named limit. It returns nil without error
// when limiting is disabled, which leaves the route unlimited.
func (c *Config) Policy(name string, opts ...PolicyOption) (*Policy, error) {
	if !c.Enabled {
		return nil, nil
	}

	l, ok := c.Limits[name]
	if !ok {
		return nil, fmt.Errorf("%w: no limit named %q", ErrInvalidConfiguration, name)
	}

	bucket, err := ParseBucket(string(l.Bucket))
	if err != nil {
		return nil, fmt.Errorf("limit %q: %w", name, err)
	}

	all := append([]PolicyOption{WithName(name), WithBucket(bucket)}, opts...)
	p, err := NewPolicy(l.Rate, l.Per, all...)
	if err != nil {
		return nil, fmt.Errorf("limit %q: %w", name, err)
	}
	return p, nil
}

// ParseLimit parses "<rate>/<per>[/<bucket>]". The period is a Go duration
// ("10s", "1m") or a bare number of seconds.
func ParseLimit(s string) (Limit, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Limit{}, fmt.Errorf("%w: expected rate/per, got %q", ErrInvalidConfiguration, s)
	}

	rate, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Limit{}, fmt.Errorf("%w: bad rate in %q", ErrInvalidConfiguration, s)
	}

	per, err := parsePeriod(strings.TrimSpace(parts[1]))
	if err != nil {
		return Limit{}, fmt.Errorf("%w: bad period in %q", ErrInvalidConfiguration, s)
	}

	l := Limit{Rate: rate, Per: per}
	if len(parts) == 3 {
		b, err := ParseBucket(parts[2])
		if err != nil {
			return Limit{}, err
		}
		l.Bucket = b
	}

	if _, err := NewRateWindow(l.Rate, l.Per); err != nil {
		return Limit{}, err
	}
	return l, nil
}

func parsePeriod(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
