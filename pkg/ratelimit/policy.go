package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Bucket selects which identity a policy counts requests against
type Bucket string

const (
	// BucketIP counts requests per client address
	BucketIP Bucket = "ip"
	// BucketUser counts requests per authenticated user
	BucketUser Bucket = "user"
)

// ParseBucket accepts "ip" or "user"; empty means ip
func ParseBucket(s string) (Bucket, error) {
	switch Bucket(strings.ToLower(strings.TrimSpace(s))) {
	case "", BucketIP:
		return BucketIP, nil
	case BucketUser:
		return BucketUser, nil
	default:
		return "", fmt.Errorf("%w: unknown bucket %q", ErrInvalidConfiguration, s)
	}
}

// Policy is the rate limit attached to a single route. It cannot be changed
// after NewPolicy returns.
type Policy struct {
	name   string
	bucket Bucket
	exempt Exempter
	window RateWindow
}

// PolicyOption configures a Policy
type PolicyOption func(*Policy)

// WithBucket sets the bucket strategy
func WithBucket(b Bucket) PolicyOption {
	return func(p *Policy) { p.bucket = b }
}

// WithExempt sets a predicate that lets matching requests skip the limiter
func WithExempt(e Exempter) PolicyOption {
	return func(p *Policy) { p.exempt = e }
}

// WithName labels the policy for logs and metrics
func WithName(name string) PolicyOption {
	return func(p *Policy) { p.name = name }
}

// NewPolicy validates rate and per and returns an immutable policy
func NewPolicy(rate int, per time.Duration, opts ...PolicyOption) (*Policy, error) {
	w, err := NewRateWindow(rate, per)
	if err != nil {
		return nil, err
	}

	p := &Policy{
		bucket: BucketIP,
		window: w,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.bucket != BucketIP && p.bucket != BucketUser {
		return nil, fmt.Errorf("%w: unknown bucket %q", ErrInvalidConfiguration, p.bucket)
	}
	return p, nil
}

func (p *Policy) Name() string { return p.name }

func (p *Policy) Rate() int { return p.window.Rate }

func (p *Policy) Per() time.Duration { return p.window.Period }

// Bucket returns whose budget requests are counted against
func (p *Policy) Bucket() Bucket { return p.bucket }

// Window returns the allowance enforced by this policy
func (p *Policy) Window() RateWindow {
	return p.window
}

// IsExempt reports whether r bypasses this policy
func (p *Policy) IsExempt(r *http.Request) bool {
	if p == nil || p.exempt == nil {
		return false
	}
	return p.exempt.Exempt(r)
}

// BucketKey scopes an identity's budget to one route
func BucketKey(identity, route string) string {
	return identity + "@" + route
}
