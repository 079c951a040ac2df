// Package echomw provides Echo middleware for rate limiting.
//
// Separated from the root package so that importing the HTTP middleware
// does not pull in github.com/labstack/echo.
//
// Usage:
//
//	limiter := shield.NewLimiter(store, 1000, 60, shield.WithPolicy(shield.TokenBucket))
//	e := echo.New()
//	e.Use(echomw.RateLimit(limiter, echomw.KeyByRealIP))
package echomw

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	shield "github.com/shieldrl/shield"
)

// KeyFunc extracts the rate limiting key from an Echo context.
type KeyFunc func(c echo.Context) string

// DeniedHandler is called when a request is rate limited.
type DeniedHandler func(c echo.Context, decision shield.Decision) error

// ErrorHandler is called when the limiter returns an error.
type ErrorHandler func(c echo.Context, err error) error

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

// RateLimit creates Echo middleware with default settings.
func RateLimit(limiter *shield.Limiter, keyFunc KeyFunc) echo.MiddlewareFunc {
	return RateLimitWithConfig(Config{
		Limiter: limiter,
		KeyFunc: keyFunc,
	})
}

// RateLimitWithConfig creates Echo middleware with full configuration control.
func RateLimitWithConfig(cfg Config) echo.MiddlewareFunc {
	if cfg.Limiter == nil {
		panic("echomw: Limiter is required")
	}
	if cfg.KeyFunc == nil {
		panic("echomw: KeyFunc is required")
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = defaultDeniedHandler
	}
	sendHeaders := cfg.Headers == nil || *cfg.Headers

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.ExcludePaths != nil && cfg.ExcludePaths[c.Request().URL.Path] {
				return next(c)
			}

			key := cfg.KeyFunc(c)
			decision, err := allow(c.Request().Context(), cfg.Limiter, cfg.LimitFunc, key)
			if err != nil {
				if cfg.ErrorHandler != nil {
					return cfg.ErrorHandler(c, err)
				}
				return next(c)
			}

			if sendHeaders {
				setHeaders(c, decision)
			}

			if !decision.Allowed {
				return cfg.DeniedHandler(c, decision)
			}

			return next(c)
		}
	}
}

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByRealIP uses Echo's RealIP() which respects X-Forwarded-For / X-Real-IP.
func KeyByRealIP(c echo.Context) string {
	return c.RealIP()
}

// KeyByHeader returns a KeyFunc that extracts from a request header.
func KeyByHeader(header string) KeyFunc {
	return func(c echo.Context) string {
		return c.Request().Header.Get(header)
	}
}

// KeyByParam returns a KeyFunc that extracts from a path parameter.
func KeyByParam(param string) KeyFunc {
	return func(c echo.Context) string {
		return c.Param(param)
	}
}

// KeyByPathAndIP combines the registered route path (c.Path()) and real IP.
func KeyByPathAndIP(c echo.Context) string {
	return c.Path() + ":" + c.RealIP()
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

func setHeaders(c echo.Context, decision shield.Decision) {
	c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
}

func defaultDeniedHandler(c echo.Context, _ shield.Decision) error {
	return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
}
