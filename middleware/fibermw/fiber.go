// Package fibermw provides Fiber middleware for rate limiting.
//
// Separated from the root package so that importing the HTTP middleware
// does not pull in github.com/gofiber/fiber. Fiber uses fasthttp (not
// net/http), so a dedicated adapter is required.
//
// Usage:
//
//	limiter := shield.NewLimiter(store, 1000, 60, shield.WithPolicy(shield.TokenBucket))
//	app := fiber.New()
//	app.Use(fibermw.RateLimit(limiter, fibermw.KeyByIP))
package fibermw

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	shield "github.com/shieldrl/shield"
)

// KeyFunc extracts the rate limiting key from a Fiber context.
type KeyFunc func(c *fiber.Ctx) string

// DeniedHandler is called when a request is rate limited.
type DeniedHandler func(c *fiber.Ctx, decision shield.Decision) error

// ErrorHandler is called when the limiter returns an error.
type ErrorHandler func(c *fiber.Ctx, err error) error

// Config holds the rate limit middleware configuration.
type Config struct {
	// Limiter is the rate limiter instance (required).
	Limiter *shield.Limiter

	// KeyFunc extracts the rate limit key (required).
	KeyFunc KeyFunc

	// DeniedHandler is called on denial. Default: 429 JSON.
	DeniedHandler DeniedHandler

	// ErrorHandler is called on limiter error. Default: pass-through (fail open).
	ErrorHandler ErrorHandler

	// ExcludePaths are request paths that bypass rate limiting.
	ExcludePaths map[string]bool

	// Headers controls whether X-RateLimit-Remaining is set. Default: true.
	Headers *bool

	// LimitFunc dynamically resolves the capacity for each key, overriding
	// Limiter's construction-time capacity. Returning <= 0 falls back to
	// that default.
	LimitFunc func(key string) int64
}

// RateLimit creates Fiber middleware with default settings.
func RateLimit(limiter *shield.Limiter, keyFunc KeyFunc) fiber.Handler {
	return RateLimitWithConfig(Config{
		Limiter: limiter,
		KeyFunc: keyFunc,
	})
}

// RateLimitWithConfig creates Fiber middleware with full configuration control.
func RateLimitWithConfig(cfg Config) fiber.Handler {
	if cfg.Limiter == nil {
		panic("fibermw: Limiter is required")
	}
	if cfg.KeyFunc == nil {
		panic("fibermw: KeyFunc is required")
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = defaultDeniedHandler
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	sendHeaders := cfg.Headers == nil || *cfg.Headers

	return func(c *fiber.Ctx) error {
		if cfg.ExcludePaths != nil && cfg.ExcludePaths[c.Path()] {
			return c.Next()
		}

		key := cfg.KeyFunc(c)
		decision, err := allow(c.UserContext(), cfg.Limiter, cfg.LimitFunc, key)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if sendHeaders {
			setHeaders(c, decision)
		}

		if !decision.Allowed {
			return cfg.DeniedHandler(c, decision)
		}

		return c.Next()
	}
}

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByIP uses Fiber's IP() method which respects proxy headers.
func KeyByIP(c *fiber.Ctx) string {
	return c.IP()
}

// KeyByHeader returns a KeyFunc that extracts from a request header.
func KeyByHeader(header string) KeyFunc {
	return func(c *fiber.Ctx) string {
		return c.Get(header)
	}
}

// KeyByParam returns a KeyFunc that extracts from a route parameter.
func KeyByParam(param string) KeyFunc {
	return func(c *fiber.Ctx) string {
		return c.Params(param)
	}
}

// KeyByPathAndIP combines the request path and client IP.
func KeyByPathAndIP(c *fiber.Ctx) string {
	return c.Path() + ":" + c.IP()
}

// ─── Internals ───────────────────────────────────────────────────────────────

// allow issues the Absorb call, resolving capacity through limitFunc when
// set and positive, otherwise falling back to limiter's fixed capacity.
func allow(ctx context.Context, limiter *shield.Limiter, limitFunc func(string) int64, key string) (shield.Decision, error) {
	if limitFunc == nil {
		return limiter.Allow(ctx, key)
	}
	capacity := limitFunc(key)
	if capacity <= 0 {
		return limiter.Allow(ctx, key)
	}
	return shield.Absorb(ctx, limiter.Store(), shield.Request{
		Key:      key,
		Policy:   limiter.Policy(),
		Capacity: capacity,
		Period:   limiter.Period(),
		Cost:     1,
	})
}

func setHeaders(c *fiber.Ctx, decision shield.Decision) {
	c.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
}

func defaultDeniedHandler(c *fiber.Ctx, _ shield.Decision) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
}

func defaultErrorHandler(c *fiber.Ctx, _ error) error {
	return c.Next()
}
