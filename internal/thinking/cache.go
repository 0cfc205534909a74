// Package thinking caches reasoning blocks across tool-call round trips.
//
// When the target model produces extended-thinking blocks alongside tool
// calls, those blocks must precede the tool_use blocks on every follow-up
// call that continues the turn. The OpenAI wire format has no slot for them,
// so the gateway stores them server-side keyed by tool-call id and restores
// them when the conversation history is replayed.
package thinking

import (
	"sync"
	"time"

	"chatbridge/internal/model"
)

// Cache is a bounded, TTL-expiring map from tool-call id to the reasoning
// blocks of the turn that produced the call. All tool calls emitted in one
// assistant turn share one entry value. A single mutex guards all access;
// the cache is not a hot path.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	order      []string // insertion order, oldest first
	maxEntries int
	ttl        time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

type entry struct {
	blocks    []model.ContentBlock
	expiresAt time.Time
}

// NewCache creates a cache holding at most maxEntries entries, each expiring
// ttl after insertion.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Put stores blocks under every given id. All ids point at the same shared
// value: the tool calls of one assistant turn belong to one reasoning
// episode. Empty ids or blocks are a no-op.
func (c *Cache) Put(ids []string, blocks []model.ContentBlock) {
	if len(ids) == 0 || len(blocks) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{blocks: blocks, expiresAt: c.now().Add(c.ttl)}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, exists := c.entries[id]; !exists {
			c.order = append(c.order, id)
		}
		c.entries[id] = e
	}

	c.evictLocked()
}

// Get returns the blocks stored under id, or ok=false when the id is unknown
// or expired. A hit never removes the entry: the same conversation history is
// resent on every subsequent turn and must keep resolving until the TTL
// runs out.
func (c *Cache) Get(id string) ([]model.ContentBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.removeLocked(id)
		return nil, false
	}
	return e.blocks, true
}

// Len returns the current number of live entries. Expired entries that have
// not been touched since expiry still count until evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries, then the oldest-inserted entries beyond
// maxEntries. Caller holds c.mu.
func (c *Cache) evictLocked() {
	now := c.now()

	kept := c.order[:0]
	for _, id := range c.order {
		e, ok := c.entries[id]
		if !ok {
			continue
		}
		if !now.Before(e.expiresAt) {
			delete(c.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept

	for len(c.entries) > c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// removeLocked drops one id from both the map and the order slice. Caller
// holds c.mu.
func (c *Cache) removeLocked(id string) {
	delete(c.entries, id)
	for i, known := range c.order {
		if known == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
