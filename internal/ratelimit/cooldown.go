package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/launchpad/internal/clock"
)

// Cooldown admits one action per key per window.
type Cooldown interface {
	// Acquire reports whether the caller may act now. A successful acquire
	// starts the window and returns a token for Release.
	Acquire(ctx context.Context, key string, window time.Duration) (string, bool, error)
	// Release ends a window early, for an action that failed before it
	// took effect. A stale token is ignored.
	Release(ctx context.Context, key, token string) error
}

// RedisCooldown holds a lock for the whole window unless the action fails.
type RedisCooldown struct {
	locker *Locker
	prefix string
}

func NewRedisCooldown(locker *Locker, prefix string) *RedisCooldown {
	return &RedisCooldown{locker: locker, prefix: prefix}
}

func (c *RedisCooldown) Acquire(ctx context.Context, key string, window time.Duration) (string, bool, error) {
	return c.locker.TryLock(ctx, c.prefix+key, window)
}

func (c *RedisCooldown) Release(ctx context.Context, key, token string) error {
	return c.locker.Release(ctx, c.prefix+key, token)
}

// MemoryCooldown is the single-process fallback.
type MemoryCooldown struct {
	mu      sync.Mutex
	clock   clock.Clock
	windows map[string]memoryWindow
}

type memoryWindow struct {
	token string
	until time.Time
}

func NewMemoryCooldown(clk clock.Clock) *MemoryCooldown {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &MemoryCooldown{clock: clk, windows: make(map[string]memoryWindow)}
}

func (c *MemoryCooldown) Acquire(_ context.Context, key string, window time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if w, ok := c.windows[key]; ok && now.Before(w.until) {
		return "", false, nil
	}
	for k, w := range c.windows {
		if !now.Before(w.until) {
			delete(c.windows, k)
		}
	}
	token := uuid.NewString()
	c.windows[key] = memoryWindow{token: token, until: now.Add(window)}
	return token, true, nil
}

func (c *MemoryCooldown) Release(_ context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.windows[key]; ok && w.token == token {
		delete(c.windows, key)
	}
	return nil
}
