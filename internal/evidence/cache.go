package evidence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionCache holds per-session accumulator state with a sliding TTL.
// Every touch pushes the expiry forward; a janitor goroutine sweeps expired
// entries. Each entry carries its own mutex so evidence steps for one
// session serialize without blocking other sessions.

const (
	DefaultSessionTTL    = 10 * time.Minute
	defaultSweepInterval = time.Minute
)

type cacheEntry struct {
	mu        sync.Mutex
	state     *SessionState
	expiresAt time.Time
}

type SessionCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

// NewSessionCache creates a cache with the given sliding TTL. Non-positive
// ttl falls back to the default.
func NewSessionCache(ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// Update runs fn against the session's state under that session's lock,
// creating fresh state on first use and sliding the expiry forward.
func (c *SessionCache) Update(sessionID string, fn func(*SessionState)) {
	c.mu.Lock()
	entry, ok := c.entries[sessionID]
	if !ok || time.Now().After(entry.expiresAt) {
		entry = &cacheEntry{state: &SessionState{}}
		c.entries[sessionID] = entry
	}
	entry.expiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(entry.state)
}

// Len reports the number of live (possibly expired, not yet swept) entries.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Run sweeps expired sessions until ctx is done.
func (c *SessionCache) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *SessionCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	removed := 0
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
			removed++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()
	if removed > 0 {
		log.Debug().Int("removed", removed).Int("remaining", remaining).
			Msg("swept expired identification sessions")
	}
}
