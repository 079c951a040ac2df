// Package shield implements SHIELD.absorb, a rate-limiting primitive
// backed by a single state object per subject key in an external
// key/value store. Four policies share the same storage contract —
// token bucket, leaky bucket, fixed window, and sliding window. The
// first three derive elapsed time from the key's own TTL rather than
// from a persisted timestamp, so a single PTTL/GET/SET round trip is
// enough to decide and update state under the host's command
// serialization. The sliding window instead persists its window start
// timestamp and reads the store's clock (TIME).
//
// # Policies
//
//   - Token Bucket — steady refill, burst-friendly
//   - Leaky Bucket — constant drain, smooths bursts into a steady rate
//   - Fixed Window — simple counter reset when the window's key expires
//   - Sliding Window — weighted interpolation between two counters
//
// # Quick Start
//
//	s := redisstore.New(redisClient)
//
//	decision, err := shield.Absorb(ctx, s, shield.Request{
//	    Key:      "user:123",
//	    Policy:   shield.TokenBucket,
//	    Capacity: 100,
//	    Period:   60,
//	    Cost:     1,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if decision.Allowed {
//	    // serve request
//	}
//
// # With the in-memory store
//
//	s := memory.New()
//	defer s.Close()
//	decision, err := shield.Absorb(ctx, s, req)
//
// Absorb returns a [Decision] with Allowed and Remaining. Callers that
// want an http-handler-friendly API instead of the raw Absorb call can
// wrap a [Limiter], which the middleware subpackages build on.
package shield
