package shield

import (
	"context"
	"strconv"

	"github.com/shieldrl/shield/store"
)

// fixedWindowActiveThresholdMs is the remaining-TTL threshold below
// which a fixed window is treated as already expired rather than
// still active. The choice is conservative: at the boundary we accept
// fewer requests (treat the window as fresh) rather than risk
// attributing a hit to a window that is about to roll over.
const fixedWindowActiveThresholdMs = 1

// fixedWindowExecutor implements the fixed window policy. State is a
// hit counter; the window's remaining lifetime is the key's TTL, so
// expiry alone resets the window with no timestamp bookkeeping.
type fixedWindowExecutor struct {
	ctx          context.Context
	store        store.Store
	key          string
	capacity     int64
	periodMs     int64
	count        int64
	activeWindow bool
}

func newFixedWindowExecutor(ctx context.Context, s store.Store, key string, capacity, periodMs int64) (*fixedWindowExecutor, error) {
	rawTTL, err := s.PTTL(ctx, key)
	if err != nil {
		return nil, err
	}

	e := &fixedWindowExecutor{
		ctx:      ctx,
		store:    s,
		key:      key,
		capacity: capacity,
		periodMs: periodMs,
	}

	if rawTTL == store.Absent || rawTTL <= fixedWindowActiveThresholdMs {
		e.count = 0
		e.activeWindow = false
		return e, nil
	}

	val, found, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var stored int64
	if found {
		stored, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, ErrInvalidFixedWindowCount
		}
	}
	e.count = maxInt64(stored, 0)
	e.activeWindow = true
	return e, nil
}

// Execute adds units to the window's hit counter. A brand new window
// is written with a fresh TTL; a window already in progress is
// updated with KEEPTTL so the write never extends the window's
// lifetime.
func (e *fixedWindowExecutor) Execute(units int64) (int64, error) {
	if e.count+units > e.capacity {
		return Deny, nil
	}
	count := minInt64(e.capacity, e.count+units)
	val := strconv.FormatInt(count, 10)

	var err error
	if e.activeWindow {
		err = e.store.SetKeepTTL(e.ctx, e.key, val)
	} else {
		err = e.store.SetWithExpire(e.ctx, e.key, val, millis(e.periodMs))
	}
	if err != nil {
		return 0, err
	}
	return e.capacity - count, nil
}
