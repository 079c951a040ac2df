// Package ginmw provides Gin middleware for rate limiting.
//
// Separated from the root package so that importing the HTTP middleware
// does not pull in github.com/gin-gonic/gin.
//
// Usage:
//
//	limiter := shield.NewLimiter(store, 1000, 60, shield.WithPolicy(shield.TokenBucket))
//	r := gin.Default()
//	r.Use(ginmw.RateLimit(limiter, ginmw.KeyByClientIP))
package ginmw

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	shield "github.com/shieldrl/shield"
)

// KeyFunc extracts the rate limiting key from a Gin context.
type KeyFunc func(c *gin.Context) string

// DeniedHandler is called when a request is rate limited.
type DeniedHandler func(c *gin.Context, decision shield.Decision)

// ErrorHandler is called when the limiter returns an error.
type ErrorHandler func(c *gin.Context, err error)

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

// RateLimit creates Gin middleware with default settings.
func RateLimit(limiter *shield.Limiter, keyFunc KeyFunc) gin.HandlerFunc {
	return RateLimitWithConfig(Config{
		Limiter: limiter,
		KeyFunc: keyFunc,
	})
}

// RateLimitWithConfig creates Gin middleware with full configuration control.
func RateLimitWithConfig(cfg Config) gin.HandlerFunc {
	if cfg.Limiter == nil {
		panic("ginmw: Limiter is required")
	}
	if cfg.KeyFunc == nil {
		panic("ginmw: KeyFunc is required")
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = defaultDeniedHandler
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	sendHeaders := cfg.Headers == nil || *cfg.Headers

	return func(c *gin.Context) {
		if cfg.ExcludePaths != nil && cfg.ExcludePaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		key := cfg.KeyFunc(c)
		decision, err := allow(c.Request.Context(), cfg.Limiter, cfg.LimitFunc, key)
		if err != nil {
			cfg.ErrorHandler(c, err)
			return
		}

		if sendHeaders {
			setHeaders(c, decision)
		}

		if !decision.Allowed {
			cfg.DeniedHandler(c, decision)
			return
		}

		c.Next()
	}
}

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByClientIP uses Gin's ClientIP() which respects trusted proxies.
func KeyByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByHeader returns a KeyFunc that extracts from a request header.
func KeyByHeader(header string) KeyFunc {
	return func(c *gin.Context) string {
		return c.GetHeader(header)
	}
}

// KeyByParam returns a KeyFunc that extracts from a URL parameter.
func KeyByParam(param string) KeyFunc {
	return func(c *gin.Context) string {
		return c.Param(param)
	}
}

// KeyByPathAndIP combines the matched route pattern (c.FullPath()) and client IP.
func KeyByPathAndIP(c *gin.Context) string {
	return c.FullPath() + ":" + c.ClientIP()
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

func setHeaders(c *gin.Context, decision shield.Decision) {
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
}

func defaultDeniedHandler(c *gin.Context, _ shield.Decision) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
}

func defaultErrorHandler(c *gin.Context, _ error) {
	c.Next()
}
