package formulas

import (
	"sync"
	"time"
)

// snapshot is one loaded copy of the coefficient table
type snapshot struct {
	rows      []Formula
	expiresAt time.Time // zero when the table never expires
}

func (s *snapshot) expired(now time.Time) bool {
	return !s.expiresAt.IsZero() && now.After(s.expiresAt)
}

// InMemoryFormulaCache is the default FormulaCache. It is safe for concurrent use.
type InMemoryFormulaCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	current *snapshot
	now     func() time.Time
}

// NewInMemoryFormulaCache creates an empty cache honouring config.TTL
func NewInMemoryFormulaCache(config CacheConfig) *InMemoryFormulaCache {
	return &InMemoryFormulaCache{
		ttl: config.TTL,
		now: time.Now,
	}
}

// Get returns a copy of the cached rows, or nil if nothing is cached or the table expired
func (c *InMemoryFormulaCache) Get() []Formula {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil || c.current.expired(c.now()) {
		return nil
	}
	return append([]Formula(nil), c.current.rows...)
}

// Set replaces the cached table with a copy of formulas
func (c *InMemoryFormulaCache) Set(formulas []Formula) {
	next := &snapshot{rows: append([]Formula(nil), formulas...)}
	if c.ttl > 0 {
		next.expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	c.current = next
	c.mu.Unlock()
}

// Invalidate drops the cached table
func (c *InMemoryFormulaCache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// IsValid reports whether Get would return rows
func (c *InMemoryFormulaCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.current != nil && !c.current.expired(c.now())
}
