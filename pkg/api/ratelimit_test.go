package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/observability"
)

func testRateLimiter(t *testing.T, limit int) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := NewRateLimiter(client, RateLimitConfig{
		RequestsPerWindow: limit,
		WindowDuration:    time.Minute,
	}, observability.NewLogger(observability.ErrorLevel, io.Discard))
	return limiter, mr
}

func TestRateLimiterAllow(t *testing.T) {
	limiter, _ := testRateLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, err := limiter.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("request %d denied under the limit", i+1)
		}
		if remaining != 3-(i+1) {
			t.Errorf("remaining = %d after request %d", remaining, i+1)
		}
	}

	allowed, remaining, err := limiter.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed || remaining != 0 {
		t.Errorf("over-limit request: allowed = %v, remaining = %d", allowed, remaining)
	}
}

func TestRateLimiterSeparatesClients(t *testing.T) {
	limiter, _ := testRateLimiter(t, 1)
	ctx := context.Background()

	if allowed, _, _ := limiter.Allow(ctx, "1.2.3.4"); !allowed {
		t.Fatal("first client denied")
	}
	if allowed, _, _ := limiter.Allow(ctx, "1.2.3.4"); allowed {
		t.Fatal("first client not limited")
	}
	if allowed, _, _ := limiter.Allow(ctx, "5.6.7.8"); !allowed {
		t.Error("second client shares the first client's counter")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	limiter, mr := testRateLimiter(t, 1)
	ctx := context.Background()

	limiter.Allow(ctx, "1.2.3.4")
	if allowed, _, _ := limiter.Allow(ctx, "1.2.3.4"); allowed {
		t.Fatal("not limited within the window")
	}

	mr.FastForward(time.Minute + time.Second)
	if allowed, _, _ := limiter.Allow(ctx, "1.2.3.4"); !allowed {
		t.Error("counter did not reset after the window")
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	limiter, mr := testRateLimiter(t, 1)
	mr.Close()

	allowed, _, err := limiter.Allow(context.Background(), "1.2.3.4")
	if err == nil {
		t.Error("Allow() should surface the redis error")
	}
	if !allowed {
		t.Error("redis outage must not deny requests")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := testRateLimiter(t, 2)
	handler := limiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/v1/token/exchange", nil)
		req.RemoteAddr = remoteAddr
		if forwardedFor != "" {
			req.Header.Set("X-Forwarded-For", forwardedFor)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := do("10.0.0.1:4000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "2" || rec.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Errorf("headers: limit = %q, remaining = %q",
			rec.Header().Get("X-RateLimit-Limit"), rec.Header().Get("X-RateLimit-Remaining"))
	}

	do("10.0.0.1:4000", "")
	rec = do("10.0.0.1:4000", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "rate_limited" {
		t.Errorf("body = %v", body)
	}

	t.Run("forwarded-for first hop", func(t *testing.T) {
		// Same RemoteAddr, but the proxy header names a different client.
		rec := do("10.0.0.1:4000", "203.0.113.9, 10.0.0.1")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, forwarded client should have a fresh counter", rec.Code)
		}
		do("10.0.0.1:4000", "203.0.113.9, 10.0.0.1")
		rec = do("10.0.0.1:4000", "203.0.113.9, 10.0.0.1")
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, forwarded client should be limited independently", rec.Code)
		}
	})
}

func TestNewRateLimiterDefaults(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := NewRateLimiter(client, RateLimitConfig{}, nil)
	if limiter.config.RequestsPerWindow != 30 || limiter.config.WindowDuration != time.Minute {
		t.Errorf("config = %+v, want defaults", limiter.config)
	}
}
