package subsonic

import (
	"container/list"
	"sync"
	"time"
)

// responseCache is a TTL cache for decoded read-endpoint responses.
// Entries are evicted when expired or, past capacity, oldest-inserted
// first. Writes never go through the cache.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = oldest insertion
	max     int
}

type cacheEntry struct {
	key     string
	resp    *response
	expires time.Time
}

func newResponseCache(max int) *responseCache {
	if max <= 0 {
		max = 500
	}
	return &responseCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		max:     max,
	}
}

func (c *responseCache) get(key string) (*response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expires) {
		c.removeLocked(el)
		return nil, false
	}
	return entry.resp, true
}

func (c *responseCache) put(key string, resp *response, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	for c.order.Len() >= c.max {
		c.removeLocked(c.order.Front())
	}

	el := c.order.PushBack(&cacheEntry{key: key, resp: resp, expires: time.Now().Add(ttl)})
	c.entries[key] = el
}

// invalidate drops every cached entry. Called after catalog-mutating
// commands so follow-up reads see fresh data.
func (c *responseCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *responseCache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(el)
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
