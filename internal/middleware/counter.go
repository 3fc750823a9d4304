package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCounter is a process-local fixed-window counter.
type MemoryCounter struct {
	mu        sync.Mutex
	windows   map[string]*counterWindow
	lastSweep time.Time
	now       func() time.Time
}

type counterWindow struct {
	start time.Time
	count int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[string]*counterWindow),
		now:     time.Now,
	}
}

func (c *MemoryCounter) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= window {
		for k, w := range c.windows {
			if now.Sub(w.start) >= window {
				delete(c.windows, k)
			}
		}
		c.lastSweep = now
	}

	w, ok := c.windows[key]
	if !ok || now.Sub(w.start) >= window {
		w = &counterWindow{start: now}
		c.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// RedisCounter shares fixed windows between instances through Redis.
type RedisCounter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix, now: time.Now}
}

func (c *RedisCounter) key(key string, window time.Duration) string {
	slot := c.now().UnixNano() / int64(window)
	return fmt.Sprintf("%s:%s:%d", c.prefix, key, slot)
}

func (c *RedisCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := c.key(key, window)

	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment rate counter: %w", err)
	}
	return incr.Val(), nil
}
