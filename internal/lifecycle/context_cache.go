package lifecycle

import (
	"sync"

	"github.com/davidbz/council-relay/internal/domain"
)

// ContextCache remembers the last retrieved context per session.
type ContextCache struct {
	mu      sync.RWMutex
	matches map[string][]domain.RagMatch
}

// NewContextCache creates an empty cache.
func NewContextCache() *ContextCache {
	return &ContextCache{
		mu:      sync.RWMutex{},
		matches: make(map[string][]domain.RagMatch),
	}
}

// Get returns a copy of the cached matches and whether the session was cached.
func (c *ContextCache) Get(sessionID string) ([]domain.RagMatch, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	matches, ok := c.matches[sessionID]
	if !ok {
		return nil, false
	}
	return append([]domain.RagMatch(nil), matches...), true
}

// Set replaces the cached matches for a session.
func (c *ContextCache) Set(sessionID string, matches []domain.RagMatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.matches[sessionID] = append([]domain.RagMatch{}, matches...)
}
