package dedupe

import (
	"sync"
	"time"
)

type entry struct {
	id string
	ts time.Time
}

// Cache remembers recently labelled record IDs within a capacity and an optional ttl.
type Cache struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl. A ttl <= 0 keeps entries
// until capacity evicts them.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// IsSeen reports whether id was marked inside the ttl window. It does not mark id.
func (c *Cache) IsSeen(id string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.live(id, now)
}

// MarkSeen records that id has been labelled.
func (c *Cache) MarkSeen(id string) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mark(id, now)
}

// TryMark marks id and reports true, or reports false when id is already live.
func (c *Cache) TryMark(id string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live(id, now) {
		return false
	}
	c.mark(id, now)
	return true
}

// Len returns the number of remembered IDs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) live(id string, now time.Time) bool {
	ts, ok := c.items[id]
	if !ok {
		return false
	}
	return c.ttl <= 0 || now.Sub(ts) <= c.ttl
}

func (c *Cache) mark(id string, now time.Time) {
	c.items[id] = now
	c.order = append(c.order, entry{id: id, ts: now})
	c.compact(now)
}

func (c *Cache) compact(now time.Time) {
	expired := func(e entry) bool {
		return c.ttl > 0 && now.Sub(e.ts) > c.ttl
	}

	for len(c.order) > 0 && (len(c.items) > c.capacity || expired(c.order[0])) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if ts, ok := c.items[oldest.id]; ok && ts.Equal(oldest.ts) {
			delete(c.items, oldest.id)
		}
	}
}
