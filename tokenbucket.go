package shield

import (
	"context"
	"strconv"

	"github.com/shieldrl/shield/store"
)

// tokenBucketExecutor implements the token bucket policy. State is a
// single integer, the tokens currently available; elapsed time since
// the last write is derived from the key's own TTL rather than a
// persisted timestamp.
type tokenBucketExecutor struct {
	ctx      context.Context
	store    store.Store
	key      string
	capacity int64
	periodMs int64
	tokens   int64
}

func newTokenBucketExecutor(ctx context.Context, s store.Store, key string, capacity, periodMs int64) (*tokenBucketExecutor, error) {
	rawTTL, err := s.PTTL(ctx, key)
	if err != nil {
		return nil, err
	}

	var ttl int64
	switch rawTTL {
	case store.Absent:
		ttl = 0
	case store.NoExpiry:
		// Edge case: a key with no TTL is treated as elapsed=0 (no
		// refill) rather than "absent", so the stored balance is used
		// as-is.
		ttl = periodMs
	default:
		ttl = clamp(rawTTL, 0, periodMs)
	}
	elapsed := periodMs - ttl
	refill := mulDivFloor(elapsed, capacity, periodMs)

	var stored int64
	val, found, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		stored, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, ErrInvalidTokenCount
		}
	}
	stored = maxInt64(stored, 0)

	tokens := minInt64(capacity, saturatingAdd(stored, refill))

	return &tokenBucketExecutor{
		ctx:      ctx,
		store:    s,
		key:      key,
		capacity: capacity,
		periodMs: periodMs,
		tokens:   tokens,
	}, nil
}

// Execute consumes units tokens from the bucket. On acceptance the
// refill clock resets to now, since a single integer cannot represent
// both balance and a separate last-update timestamp; this makes the
// refill curve slightly conservative under bursty traffic.
func (e *tokenBucketExecutor) Execute(units int64) (int64, error) {
	if units > e.tokens {
		return Deny, nil
	}
	tokens := e.tokens - units
	if err := e.store.SetWithExpire(e.ctx, e.key, strconv.FormatInt(tokens, 10), millis(e.periodMs)); err != nil {
		return 0, err
	}
	return tokens, nil
}
