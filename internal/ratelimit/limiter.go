package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shipmode-access/internal/common/errors"
	"shipmode-access/internal/redis"
)

// Limiter applies a Redis-backed sliding-window rate limit to inbound
// requests.
type Limiter struct {
	redis  *redis.Client
	config *Config
}

// Config holds the rate limiting settings.
type Config struct {
	DefaultLimit  int           `json:"default_limit"`
	DefaultWindow time.Duration `json:"default_window"`
	Enabled       bool          `json:"enabled"`
}

// RateLimit describes the state of a limit after counting a request.
type RateLimit struct {
	Limit     int           `json:"limit"`
	Window    time.Duration `json:"window"`
	Remaining int           `json:"remaining"`
	ResetTime time.Time     `json:"reset_time"`
}

// NewLimiter creates a limiter over the given Redis client.
func NewLimiter(redisClient *redis.Client, config *Config) *Limiter {
	if config == nil {
		config = &Config{
			DefaultLimit:  100,
			DefaultWindow: time.Minute,
			Enabled:       true,
		}
	}

	return &Limiter{
		redis:  redisClient,
		config: config,
	}
}

// CheckLimit counts a request against the window for key.
func (l *Limiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimit, error) {
	if !l.config.Enabled {
		return &RateLimit{
			Limit:     limit,
			Window:    window,
			Remaining: limit,
			ResetTime: time.Now().Add(window),
		}, nil
	}

	_, current, err := l.redis.CheckRateLimit(ctx, fmt.Sprintf("rate_limit:%s", key), limit, window)
	if err != nil {
		return nil, errors.InternalError("failed to check rate limit", err)
	}

	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimit{
		Limit:     limit,
		Window:    window,
		Remaining: remaining,
		ResetTime: time.Now().Add(window),
	}, nil
}

// CheckDefaultLimit counts a request against the configured default limit.
func (l *Limiter) CheckDefaultLimit(ctx context.Context, key string) (*RateLimit, error) {
	return l.CheckLimit(ctx, key, l.config.DefaultLimit, l.config.DefaultWindow)
}

// HTTPMiddleware applies the default limit per key derived from the request.
func (l *Limiter) HTTPMiddleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				// If no key, allow the request
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			rateLimit, err := l.CheckDefaultLimit(ctx, key)
			if err != nil {
				// On error, allow the request rather than blocking
				// provisioning behind a Redis outage
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rateLimit.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rateLimit.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", rateLimit.ResetTime.Unix()))

			if rateLimit.Remaining <= 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rateLimit.Window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": "rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPBasedKey derives the limiter key from the client address.
func IPBasedKey(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		// Take the first address in the chain
		if idx := strings.Index(ip, ","); idx != -1 {
			ip = ip[:idx]
		}
		return strings.TrimSpace(ip)
	}

	ip = r.Header.Get("X-Real-IP")
	if ip != "" {
		return ip
	}

	// Strip the port from RemoteAddr
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}
