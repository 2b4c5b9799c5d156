package vectorindex

import (
	"container/list"
	"sync"
)

// lru is a bounded slug → *index cache. Safe for concurrent use.
type lru struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List
	items map[string]*list.Element
}

type lruEntry struct {
	slug string
	idx  *index
}

func newLRU(capacity int) *lru {
	if capacity < 1 {
		capacity = 1
	}
	return &lru{cap: capacity, ll: list.New(), items: make(map[string]*list.Element)}
}

func (c *lru) get(slug string) (*index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[slug]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*lruEntry).idx, true
	}
	return nil, false
}

func (c *lru) put(slug string, idx *index) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[slug]; ok {
		el.Value.(*lruEntry).idx = idx
		c.ll.MoveToFront(el)
		return
	}
	c.items[slug] = c.ll.PushFront(&lruEntry{slug: slug, idx: idx})
	for c.ll.Len() > c.cap {
		old := c.ll.Back()
		c.ll.Remove(old)
		delete(c.items, old.Value.(*lruEntry).slug)
	}
}

func (c *lru) remove(slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[slug]; ok {
		c.ll.Remove(el)
		delete(c.items, slug)
	}
}

func (c *lru) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

func (c *lru) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
