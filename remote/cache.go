package remote

// Cache is a bounded, oldest-evicted-first store of remote results keyed by
// source identity. It is owned by the analysis coordinator and is only
// touched from its processing context; it is not safe for concurrent use.
type Cache struct {
	capacity int
	entries  map[string]*Result
	order    []string // insertion order, oldest first
}

// NewCache creates a cache holding at most capacity results.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*Result, capacity),
	}
}

// Get returns the cached result for sourceID, or nil if absent.
func (c *Cache) Get(sourceID string) *Result {
	return c.entries[sourceID]
}

// Put stores a result under its source identity, evicting the oldest entry
// once the capacity is exceeded. Re-inserting an existing key refreshes its
// value but keeps its original position in the eviction order.
func (c *Cache) Put(result *Result) {
	if result == nil || result.SourceID == "" {
		return
	}

	if _, exists := c.entries[result.SourceID]; exists {
		c.entries[result.SourceID] = result
		return
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[result.SourceID] = result
	c.order = append(c.order, result.SourceID)
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	return len(c.order)
}

// Clear drops all cached results.
func (c *Cache) Clear() {
	c.entries = make(map[string]*Result, c.capacity)
	c.order = c.order[:0]
}
