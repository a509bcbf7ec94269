package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ReplayWindow is how long a consumed assertion jti stays claimed. Assertions
// themselves expire well inside this window, so a jti only needs to be held
// long enough to outlive its token.
const ReplayWindow = 2 * time.Minute

// ReplayGuard atomically claims single-use token identifiers. Claim returns
// false when the identifier was already consumed.
type ReplayGuard interface {
	Claim(ctx context.Context, jti string) (bool, error)
}

// RedisReplayGuard claims jtis with a set-if-absent write against redis.
// The atomicity of SETNX is the whole mechanism: two concurrent exchanges of
// the same assertion resolve to exactly one winner without any locking here.
type RedisReplayGuard struct {
	client *redis.Client
	window time.Duration
}

// NewRedisReplayGuard creates a replay guard. window <= 0 uses ReplayWindow.
func NewRedisReplayGuard(client *redis.Client, window time.Duration) *RedisReplayGuard {
	if window <= 0 {
		window = ReplayWindow
	}
	return &RedisReplayGuard{client: client, window: window}
}

// Claim marks the jti as consumed. Returns false if it was already claimed.
func (g *RedisReplayGuard) Claim(ctx context.Context, jti string) (bool, error) {
	ok, err := g.client.SetNX(ctx, "exchange:jti:"+jti, "1", g.window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim exchange jti: %w", err)
	}
	return ok, nil
}

// MemoryReplayGuard is an in-process replay guard for tests and local
// development. Claims never expire; test processes are short-lived.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryReplayGuard creates an empty in-memory guard
func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{seen: make(map[string]struct{})}
}

// Claim marks the jti as consumed
func (g *MemoryReplayGuard) Claim(ctx context.Context, jti string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[jti]; ok {
		return false, nil
	}
	g.seen[jti] = struct{}{}
	return true, nil
}
