package loader

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoises loaded content by key. Concurrent loads of the same key
// share one call; failed loads are not stored.
type Cache struct {
	mu    sync.RWMutex
	items map[string][]byte
	group singleflight.Group
}

func NewCache() *Cache {
	return &Cache{items: make(map[string][]byte)}
}

func (c *Cache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// Load returns the cached value for key or calls fn once to produce it.
func (c *Cache) Load(key string, fn func() ([]byte, error)) ([]byte, error) {
	if cached, ok := c.get(key); ok {
		return cached, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if cached, ok := c.get(key); ok {
			return cached, nil
		}
		content, err := fn()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[key] = content
		c.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
