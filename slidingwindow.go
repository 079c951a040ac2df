package shield

import (
	"context"
	"strconv"
	"strings"

	"github.com/shieldrl/shield/store"
)

// slidingWindowExecutor implements the sliding window policy: two
// adjacent counters interpolated by elapsed fraction. Unlike the other
// three policies it needs an absolute timestamp, so it is the only one
// that queries the store's wall clock; doing so from the other
// policies would break the TTL-as-clock invariant and could diverge
// across replicas.
type slidingWindowExecutor struct {
	ctx      context.Context
	store    store.Store
	key      string
	capacity int64
	periodMs int64 // T

	currentStart int64
	current      int64
	previous     int64
}

func newSlidingWindowExecutor(ctx context.Context, s store.Store, key string, capacity, periodMs int64) (*slidingWindowExecutor, error) {
	nowMs, err := nowMillis(ctx, s)
	if err != nil {
		return nil, err
	}

	e := &slidingWindowExecutor{
		ctx:      ctx,
		store:    s,
		key:      key,
		capacity: capacity,
		periodMs: periodMs,
	}

	val, found, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	start, cur, prev, ok := decodeSlidingWindow(val)
	if !found || !ok {
		e.currentStart = nowMs
		e.current = 0
		e.previous = 0
	} else {
		e.currentStart = clamp(start, 0, nowMs)
		e.current = clamp(cur, 0, capacity)
		e.previous = clamp(prev, 0, capacity)
	}

	e.alignToNow(nowMs)
	return e, nil
}

// decodeSlidingWindow parses the "start_ms:cur:prev" payload. An
// undecodable or absent payload is not an error here — the caller
// re-initializes to a fresh window, matching the policy's tolerance
// for starting from scratch rather than failing the request.
func decodeSlidingWindow(val string) (start, cur, prev int64, ok bool) {
	parts := strings.Split(val, ":")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var err error
	if start, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return 0, 0, 0, false
	}
	if cur, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return 0, 0, 0, false
	}
	if prev, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
		return 0, 0, 0, false
	}
	return start, cur, prev, true
}

func encodeSlidingWindow(start, cur, prev int64) string {
	return strconv.FormatInt(start, 10) + ":" + strconv.FormatInt(cur, 10) + ":" + strconv.FormatInt(prev, 10)
}

// alignToNow normalizes the window to cover nowMs, sliding the current
// counter into previous (or discarding both) as whole windows elapse.
// It returns the elapsed time, in milliseconds, since the (possibly
// just-advanced) window start.
func (e *slidingWindowExecutor) alignToNow(nowMs int64) int64 {
	if e.currentStart > nowMs || e.currentStart < 0 {
		e.currentStart = nowMs
	}
	elapsed := nowMs - e.currentStart
	if elapsed >= e.periodMs {
		windowsPassed := elapsed / e.periodMs
		if windowsPassed == 1 {
			e.previous = e.current
			e.current = 0
		} else {
			e.previous = 0
			e.current = 0
		}
		e.currentStart = minInt64(e.currentStart+windowsPassed*e.periodMs, nowMs)
		elapsed = nowMs - e.currentStart
	}
	return elapsed
}

// effectiveUsage returns the interpolated count over the trailing
// window of length T, weighting the previous counter down by the
// fraction of T that has already elapsed in the current window.
func (e *slidingWindowExecutor) effectiveUsage(elapsed int64) int64 {
	remainingInCurrent := e.periodMs - elapsed
	weightedPrevious := mulDivFloor(e.previous, remainingInCurrent, e.periodMs)
	return minInt64(e.capacity, saturatingAdd(e.current, weightedPrevious))
}

// Execute re-fetches the store's wall clock, re-aligns the window to
// it, and admits units if doing so keeps effective usage within
// capacity.
func (e *slidingWindowExecutor) Execute(units int64) (int64, error) {
	nowMs, err := nowMillis(e.ctx, e.store)
	if err != nil {
		return 0, err
	}

	elapsed := e.alignToNow(nowMs)
	usage := e.effectiveUsage(elapsed)

	if usage+units > e.capacity {
		return Deny, nil
	}

	e.current = minInt64(e.capacity, e.current+units)
	payload := encodeSlidingWindow(e.currentStart, e.current, e.previous)
	if err := e.store.SetWithExpire(e.ctx, e.key, payload, millis(2*e.periodMs)); err != nil {
		return 0, err
	}

	remaining := e.capacity - usage - units
	return maxInt64(0, remaining), nil
}

// nowMillis fetches the store's wall clock and converts it to epoch
// milliseconds, surfacing failures as ErrUnableToFetchTime rather than
// substituting a local clock, since cross-replica consistency depends
// on a single shared time source.
func nowMillis(ctx context.Context, s store.Store) (int64, error) {
	t, err := s.Time(ctx)
	if err != nil {
		return 0, ErrUnableToFetchTime
	}
	return t.UnixMilli(), nil
}
