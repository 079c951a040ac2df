package shield

import (
	"context"
	"strconv"

	"github.com/shieldrl/shield/store"
)

// leakyBucketExecutor implements the leaky bucket policy. State is the
// current fill level; it is symmetric to the token bucket but tracks
// how full the bucket is rather than how many tokens remain.
type leakyBucketExecutor struct {
	ctx      context.Context
	store    store.Store
	key      string
	capacity int64
	periodMs int64
	level    int64
}

func newLeakyBucketExecutor(ctx context.Context, s store.Store, key string, capacity, periodMs int64) (*leakyBucketExecutor, error) {
	rawTTL, err := s.PTTL(ctx, key)
	if err != nil {
		return nil, err
	}

	var ttl int64
	switch rawTTL {
	case store.Absent:
		ttl = 0
	case store.NoExpiry:
		ttl = periodMs
	default:
		ttl = clamp(rawTTL, 0, periodMs)
	}
	elapsed := periodMs - ttl
	leaked := mulDivFloor(elapsed, capacity, periodMs)

	var stored int64
	val, found, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		stored, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, ErrInvalidBucketLevel
		}
	}
	stored = maxInt64(stored, 0)

	level := maxInt64(0, stored-leaked)
	level = minInt64(capacity, level)

	return &leakyBucketExecutor{
		ctx:      ctx,
		store:    s,
		key:      key,
		capacity: capacity,
		periodMs: periodMs,
		level:    level,
	}, nil
}

// Execute adds units to the fill level. The return value is headroom
// (room still available before the bucket overflows), not the level
// itself, distinguishing it from the token bucket's balance return.
func (e *leakyBucketExecutor) Execute(units int64) (int64, error) {
	if e.level+units > e.capacity {
		return Deny, nil
	}
	level := e.level + units
	if err := e.store.SetWithExpire(e.ctx, e.key, strconv.FormatInt(level, 10), millis(e.periodMs)); err != nil {
		return 0, err
	}
	return e.capacity - level, nil
}
