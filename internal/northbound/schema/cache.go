package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Cache memoizes non-empty schemas per normalized type. Failed or empty
// loads are never cached so the caller can retry.
type Cache struct {
	provider  Provider
	normalize func(string) string

	mu      sync.RWMutex
	entries map[string][]Field
}

// NewCache wraps provider. normalize maps raw type names onto cache keys; nil
// means trim + lower-case.
func NewCache(provider Provider, normalize func(string) string) *Cache {
	if normalize == nil {
		normalize = func(raw string) string { return strings.ToLower(strings.TrimSpace(raw)) }
	}
	return &Cache{
		provider:  provider,
		normalize: normalize,
		entries:   make(map[string][]Field),
	}
}

// Cached returns a copy of the cached schema without loading.
func (c *Cache) Cached(nbType string) ([]Field, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fields, ok := c.entries[c.normalize(nbType)]
	if !ok {
		return nil, false
	}
	return Clone(fields), true
}

// Fields implements Provider, loading through the wrapped provider on a miss.
func (c *Cache) Fields(ctx context.Context, nbType string) ([]Field, error) {
	key := c.normalize(nbType)
	if fields, ok := c.Cached(key); ok {
		return fields, nil
	}

	fields, err := c.provider.Fields(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySchema, key)
	}

	c.mu.Lock()
	c.entries[key] = Clone(fields)
	c.mu.Unlock()
	return Clone(fields), nil
}

// Invalidate drops one type, or everything when nbType is blank.
func (c *Cache) Invalidate(nbType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if strings.TrimSpace(nbType) == "" {
		c.entries = make(map[string][]Field)
		return
	}
	delete(c.entries, c.normalize(nbType))
}
