package shield

import (
	"context"

	"github.com/shieldrl/shield/store"
)

// Limiter is a convenience wrapper around Absorb for callers that want
// to rate-limit against one fixed (policy, capacity, period) triple
// repeatedly, such as an HTTP middleware guarding a single route. The
// middleware subpackages are built on top of this type.
type Limiter struct {
	store    store.Store
	policy   Policy
	capacity int64
	period   int64 // seconds
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithPolicy overrides the default policy (TokenBucket).
func WithPolicy(p Policy) Option {
	return func(l *Limiter) { l.policy = p }
}

// NewLimiter builds a Limiter that allows capacity units per period
// seconds, using store s for persisted state.
func NewLimiter(s store.Store, capacity, period int64, opts ...Option) *Limiter {
	l := &Limiter{
		store:    s,
		policy:   TokenBucket,
		capacity: capacity,
		period:   period,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes one unit from key's bucket.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN consumes n units from key's bucket.
func (l *Limiter) AllowN(ctx context.Context, key string, n int64) (Decision, error) {
	return Absorb(ctx, l.store, Request{
		Key:      key,
		Policy:   l.policy,
		Capacity: l.capacity,
		Period:   l.period,
		Cost:     n,
	})
}

// Reset clears key's state for this Limiter's policy.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return Reset(ctx, l.store, key, l.policy)
}

// Store returns the backing store, for callers (e.g. middleware adapters)
// that need to issue their own Absorb calls against the same state, such
// as overriding capacity per key.
func (l *Limiter) Store() store.Store { return l.store }

// Policy returns the configured policy.
func (l *Limiter) Policy() Policy { return l.policy }

// Capacity returns the configured capacity.
func (l *Limiter) Capacity() int64 { return l.capacity }

// Period returns the configured period in seconds.
func (l *Limiter) Period() int64 { return l.period }
