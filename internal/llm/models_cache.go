package llm

import (
	"sync"
	"time"

	"github.com/set-night/chatrelay/internal/domain"
)

type ModelsCache struct {
	mu       sync.RWMutex
	models   []domain.AIModel
	cachedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

func NewModelsCache(ttl time.Duration) *ModelsCache {
	return &ModelsCache{ttl: ttl, now: time.Now}
}

// Get returns nil once the cached catalog is older than the TTL.
func (c *ModelsCache) Get() []domain.AIModel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.models == nil || c.now().Sub(c.cachedAt) > c.ttl {
		return nil
	}
	return c.models
}

func (c *ModelsCache) Set(models []domain.AIModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = models
	c.cachedAt = c.now()
}
