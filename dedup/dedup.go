// Package dedup suppresses duplicate message deliveries. Retransmissions
// are expected under the ack/retry scheme, so every inbound message ID is
// checked against a bounded window of recently seen IDs: duplicates are
// re-acknowledged by the caller but never dispatched twice.
package dedup

import "sync"

// DefaultCapacity is the number of IDs retained when none is specified.
const DefaultCapacity = 4096

// Cache is a fixed-capacity FIFO set of message IDs. When full, recording a
// new ID evicts the oldest one. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	head     int
	capacity int
}

// NewCache creates a cache holding up to capacity IDs. Non-positive
// capacities fall back to DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Seen reports whether id was already recorded, recording it as a side
// effect when it was not. The check and the record are one atomic step so
// two racing deliveries of the same ID cannot both observe "new".
func (c *Cache) Seen(id string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[id]; ok {
		return true
	}
	c.record(id)
	return false
}

// Contains reports whether id is in the window without recording it.
func (c *Cache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id]
	return ok
}

// Len returns the number of IDs currently retained.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// record inserts id, evicting the oldest entry once the window is full.
// The order slice is used as a ring once it reaches capacity so eviction
// stays O(1). Caller must hold c.mu.
func (c *Cache) record(id string) {
	if len(c.order) < c.capacity {
		c.order = append(c.order, id)
	} else {
		oldest := c.order[c.head]
		delete(c.seen, oldest)
		c.order[c.head] = id
		c.head = (c.head + 1) % c.capacity
	}
	c.seen[id] = struct{}{}
}
