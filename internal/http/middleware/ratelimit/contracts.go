package ratelimit

import "net/http"

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}

// KeyFunc extracts the rate-limit key from a request.
type KeyFunc func(r *http.Request) string

// NopLimiter allows everything.
type NopLimiter struct{}

// Allow always returns true.
func (NopLimiter) Allow(string) bool { return true }
