package shield

import "errors"

// Fixed error strings returned by Absorb. Clients match on these verbatim,
// so the text must not change shape even when wrapped.
var (
	ErrCapacityNotPositive = errors.New("ERR capacity must be positive")
	ErrPeriodNotPositive   = errors.New("ERR period/window must be positive")
	ErrUnitsNotPositive    = errors.New("ERR tokens must be positive")
	ErrPeriodTooLarge      = errors.New("ERR period value too large")
	ErrAlgorithmMissing    = errors.New("ERR algorithm value missing")
	ErrUnknownAlgorithm    = errors.New("ERR unknown algorithm, supported are [token_bucket, leaky_bucket, fixed_window, sliding_window]")

	ErrInvalidTokenCount       = errors.New("ERR invalid token count in Redis")
	ErrInvalidBucketLevel      = errors.New("ERR invalid bucket level in Redis")
	ErrInvalidFixedWindowCount = errors.New("ERR invalid fixed window counter in Redis")
	ErrUnableToFetchTime       = errors.New("ERR unable to fetch Redis time")
)
