package shield

import (
	"math/bits"
	"time"
)

// Deny is returned by Executor.Execute to signal a denied request. Any
// other return value is the remaining capacity, always in [0, capacity].
const Deny int64 = -1

// Policy names one of the four rate-limiting algorithms.
type Policy string

const (
	TokenBucket   Policy = "token_bucket"
	LeakyBucket   Policy = "leaky_bucket"
	FixedWindow   Policy = "fixed_window"
	SlidingWindow Policy = "sliding_window"
)

// Executor is the single-method interface every policy implements.
// Execute consumes units from the subject's state and returns the
// remaining capacity, or Deny if the request cannot be satisfied.
// Construction alone (building an Executor) must never mutate the
// store — only a successful Execute call writes state.
type Executor interface {
	Execute(units int64) (int64, error)
}

// periodMillis converts a period given in seconds to milliseconds,
// failing with ErrPeriodTooLarge if the result would overflow int64.
func periodMillis(periodSeconds int64) (int64, error) {
	const maxSeconds = (1 << 63) / 1000 // largest value for which *1000 fits in int64
	if periodSeconds > maxSeconds {
		return 0, ErrPeriodTooLarge
	}
	return periodSeconds * 1000, nil
}

// mulDivFloor computes floor(a*b/c) using a 128-bit intermediate
// product so a*b can never overflow int64, matching spec requirements
// for elapsed*capacity/period style computations. All three arguments
// must be non-negative and c must be positive.
func mulDivFloor(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(c))
	return int64(q)
}

// saturatingAdd adds a and b, clamping to math.MaxInt64 instead of
// overflowing. Both arguments are expected to be non-negative.
func saturatingAdd(a, b int64) int64 {
	sum := a + b
	if sum < a || sum < b {
		return 1<<63 - 1
	}
	return sum
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func clamp(v, lo, hi int64) int64 {
	return maxInt64(lo, minInt64(v, hi))
}

// millis converts a millisecond count to a time.Duration.
func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// validateParams checks the preconditions shared by every policy:
// units, capacity, and period must be positive, and period*1000 must
// fit in an int64.
func validateParams(capacity, periodSeconds, units int64) (periodMs int64, err error) {
	if capacity <= 0 {
		return 0, ErrCapacityNotPositive
	}
	if periodSeconds <= 0 {
		return 0, ErrPeriodNotPositive
	}
	if units <= 0 {
		return 0, ErrUnitsNotPositive
	}
	return periodMillis(periodSeconds)
}
