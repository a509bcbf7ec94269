package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/httputil"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
)

// RateLimitConfig bounds requests per source within a fixed window
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultRateLimitConfig is tuned for the credential endpoints: unauthenticated,
// attack-facing, and cheap to retry legitimately.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 30,
		WindowDuration:    time.Minute,
	}
}

// RateLimiter is a Redis-backed fixed-window limiter shared across instances
type RateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
	logger *observability.Logger
}

// NewRateLimiter creates a Redis-backed rate limiter
func NewRateLimiter(redisClient *redis.Client, config RateLimitConfig, logger *observability.Logger) *RateLimiter {
	if config.RequestsPerWindow <= 0 {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		redis:  redisClient,
		config: config,
		prefix: "ratelimit:token",
		logger: logger,
	}
}

// Allow reports whether the source may proceed. Redis errors fail open so an
// infra outage never locks everyone out of authentication.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, rl.config.RequestsPerWindow, fmt.Errorf("redis error: %w", err)
	}

	count := incr.Val()
	remaining := rl.config.RequestsPerWindow - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(rl.config.RequestsPerWindow), remaining, nil
}

// Middleware enforces the limit per client IP
func (rl *RateLimiter) Middleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, err := rl.Allow(r.Context(), clientIP(r))
			if err != nil && rl.logger != nil {
				rl.logger.WithError(err).Warn("rate limiter unavailable, failing open")
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerWindow))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.config.WindowDuration.Seconds())))
				httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the originating address, honoring the first hop of
// X-Forwarded-For when a proxy set it.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
