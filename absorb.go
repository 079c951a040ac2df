package shield

import (
	"context"

	"github.com/shieldrl/shield/store"
)

// Request describes one absorb call: consume Cost units from Key under
// Policy, where the policy allows Capacity units per Period.
type Request struct {
	Key      string
	Policy   Policy
	Capacity int64
	Period   int64 // seconds
	Cost     int64 // units; defaults to 1 via the command dispatcher, not here
}

// Decision is the outcome of an Absorb call.
type Decision struct {
	// Allowed reports whether the request was accepted.
	Allowed bool
	// Remaining is the remaining capacity on acceptance; on denial it is
	// always 0. Its exact meaning (balance vs. headroom) depends on
	// Policy — see the per-policy executors.
	Remaining int64
}

// Absorb validates req, builds an executor for its policy, and
// atomically decides and persists the outcome against s. It is the
// sole entry point every policy shares; command dispatch and the
// Limiter convenience wrapper both funnel through it.
func Absorb(ctx context.Context, s store.Store, req Request) (Decision, error) {
	periodMs, err := validateParams(req.Capacity, req.Period, req.Cost)
	if err != nil {
		return Decision{}, err
	}

	key := buildKey(req.Key, req.Policy)

	exec, err := newExecutor(ctx, s, key, req.Policy, req.Capacity, periodMs)
	if err != nil {
		return Decision{}, err
	}

	result, err := exec.Execute(req.Cost)
	if err != nil {
		return Decision{}, err
	}
	if result == Deny {
		return Decision{Allowed: false}, nil
	}
	return Decision{Allowed: true, Remaining: result}, nil
}

func newExecutor(ctx context.Context, s store.Store, key string, p Policy, capacity, periodMs int64) (Executor, error) {
	switch p {
	case TokenBucket:
		return newTokenBucketExecutor(ctx, s, key, capacity, periodMs)
	case LeakyBucket:
		return newLeakyBucketExecutor(ctx, s, key, capacity, periodMs)
	case FixedWindow:
		return newFixedWindowExecutor(ctx, s, key, capacity, periodMs)
	case SlidingWindow:
		return newSlidingWindowExecutor(ctx, s, key, capacity, periodMs)
	default:
		return nil, ErrUnknownAlgorithm
	}
}
