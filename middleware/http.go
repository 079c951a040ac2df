// Package middleware provides plain net/http rate limiting middleware,
// usable directly or as the base any router built on http.Handler (chi,
// gorilla/mux, and similar) can wrap with.
package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	shield "github.com/shieldrl/shield"
)

// KeyFunc extracts the rate limiting key from an HTTP request.
// The returned string identifies the caller (e.g. IP, API key, user ID).
type KeyFunc func(r *http.Request) string

// ErrorHandler is called when the limiter returns an error.
// Default behavior: 500 Internal Server Error.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// DeniedHandler is called when a request is rate limited.
// Default behavior: 429 Too Many Requests.
type DeniedHandler func(w http.ResponseWriter, r *http.Request, decision shield.Decision)

// Config holds the rate limit middleware configuration.
type Config struct {
	// Limiter is the rate limiter instance (required).
	Limiter *shield.Limiter

	// KeyFunc extracts the rate limit key from the request (required).
	KeyFunc KeyFunc

	// ErrorHandler is called when the limiter returns an error.
	// Default: responds with 500.
	ErrorHandler ErrorHandler

	// DeniedHandler is called when a request is denied.
	// Default: responds with 429.
	DeniedHandler DeniedHandler

	// ExcludePaths are request paths that bypass rate limiting.
	ExcludePaths map[string]bool

	// Headers controls whether X-RateLimit-Remaining is set on responses.
	// Default: true.
	Headers *bool

	// Message is the response body for denied requests.
	// Default: "Too Many Requests".
	Message string

	// StatusCode is the HTTP status code for denied requests.
	// Default: 429.
	StatusCode int

	// LimitFunc dynamically resolves the capacity for each key, overriding
	// Limiter's construction-time capacity. Returning <= 0 falls back to
	// that default.
	LimitFunc func(key string) int64
}

// RateLimit creates HTTP middleware with default settings.
// It sets the X-RateLimit-Remaining header and returns 429 on denial.
//
// Usage with net/http:
//
//	mux := http.NewServeMux()
//	mux.Handle("/api/", middleware.RateLimit(limiter, middleware.KeyByIP)(handler))
func RateLimit(limiter *shield.Limiter, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return RateLimitWithConfig(Config{
		Limiter: limiter,
		KeyFunc: keyFunc,
	})
}

// RateLimitWithConfig creates HTTP middleware with full configuration control.
func RateLimitWithConfig(cfg Config) func(http.Handler) http.Handler {
	if cfg.Limiter == nil {
		panic("shield/middleware: Limiter is required")
	}
	if cfg.KeyFunc == nil {
		panic("shield/middleware: KeyFunc is required")
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}
	if cfg.DeniedHandler == nil {
		cfg.DeniedHandler = defaultDeniedHandler(cfg.Message, cfg.StatusCode)
	}
	sendHeaders := cfg.Headers == nil || *cfg.Headers

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.ExcludePaths != nil && cfg.ExcludePaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := cfg.KeyFunc(r)
			decision, err := allow(r.Context(), cfg.Limiter, cfg.LimitFunc, key)
			if err != nil {
				cfg.ErrorHandler(w, r, err)
				return
			}

			if sendHeaders {
				setRateLimitHeaders(w, decision)
			}

			if !decision.Allowed {
				cfg.DeniedHandler(w, r, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ─── Built-in Key Extractors ─────────────────────────────────────────────────

// KeyByIP extracts the client IP address as the rate limit key.
// It checks X-Forwarded-For, X-Real-IP, then falls back to RemoteAddr.
func KeyByIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// KeyByHeader returns a KeyFunc that uses the value of the given header.
// Useful for API key-based rate limiting.
func KeyByHeader(header string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

// KeyByPathAndIP is a KeyFunc that combines the request path and client IP.
// Useful for per-endpoint rate limiting.
func KeyByPathAndIP(r *http.Request) string {
	return r.URL.Path + ":" + KeyByIP(r)
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

func setRateLimitHeaders(w http.ResponseWriter, decision shield.Decision) {
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func defaultDeniedHandler(message string, statusCode int) DeniedHandler {
	if message == "" {
		message = "Too Many Requests"
	}
	if statusCode == 0 {
		statusCode = http.StatusTooManyRequests
	}
	return func(w http.ResponseWriter, _ *http.Request, _ shield.Decision) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(statusCode)
		fmt.Fprintln(w, message)
	}
}
