package shield

import (
	"context"

	"github.com/shieldrl/shield/store"
)

// Reset deletes the stored state for key under policy, returning it to
// "fresh" (zero usage / full capacity) on the next Absorb call. It
// maps directly to the DEL primitive the store exposes for test and
// operator use; it is not part of the absorb command surface itself.
func Reset(ctx context.Context, s store.Store, key string, p Policy) error {
	return s.Del(ctx, buildKey(key, p))
}

// ResetAll deletes stored state for key across every policy, useful
// when an operator wants to clear a subject entirely regardless of
// which policies it has been rate-limited under.
func ResetAll(ctx context.Context, s store.Store, key string) error {
	return s.Del(ctx,
		buildKey(key, TokenBucket),
		buildKey(key, LeakyBucket),
		buildKey(key, FixedWindow),
		buildKey(key, SlidingWindow),
	)
}
