package pager

// Cache is a write-through Store wrapper that keeps recently used pages in
// memory. Pages are copied on every Read and Write so callers never share
// memory with the cache.
type Cache struct {
	Store
	lru *lruCache

	hits, misses uint64
}

var _ Store = (*Cache)(nil)

// NewCache wraps s with an LRU of capacity pages. A capacity below 1 is
// treated as 1.
func NewCache(s Store, capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{Store: s, lru: newLRUCache(capacity)}
}

// Read returns the page with the given ID, from cache or the wrapped store.
func (c *Cache) Read(id int64) (*Page, error) {
	if pg := c.lru.get(id); pg != nil {
		c.hits++
		cp := *pg
		return &cp, nil
	}
	c.misses++
	pg, err := c.Store.Read(id)
	if err != nil {
		return nil, err
	}
	cp := *pg
	c.lru.put(id, &cp)
	return pg, nil
}

// Write writes a page through to the wrapped store and updates the cache.
// The cache is only updated when the write succeeds.
func (c *Cache) Write(id int64, pg *Page) error {
	if err := c.Store.Write(id, pg); err != nil {
		c.lru.remove(id)
		return err
	}
	cp := *pg
	c.lru.put(id, &cp)
	return nil
}

// Stats reports cache hits and misses since creation.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}

// ─── LRU Cache ────────────────────────────────────────────────────────────────

type lruEntry struct {
	id   int64
	page *Page
	prev *lruEntry
	next *lruEntry
}

type lruCache struct {
	cap   int
	items map[int64]*lruEntry
	head  *lruEntry // most recent
	tail  *lruEntry // least recent
}

func newLRUCache(cap int) *lruCache {
	return &lruCache{
		cap:   cap,
		items: make(map[int64]*lruEntry, cap),
	}
}

func (c *lruCache) len() int { return len(c.items) }

func (c *lruCache) get(id int64) *Page {
	e, ok := c.items[id]
	if !ok {
		return nil
	}
	c.moveToFront(e)
	return e.page
}

func (c *lruCache) put(id int64, pg *Page) {
	if e, ok := c.items[id]; ok {
		e.page = pg
		c.moveToFront(e)
		return
	}
	e := &lruEntry{id: id, page: pg}
	c.items[id] = e
	c.pushFront(e)
	if len(c.items) > c.cap {
		c.unlink(c.tail)
	}
}

func (c *lruCache) remove(id int64) {
	if e, ok := c.items[id]; ok {
		c.unlink(e)
	}
}

func (c *lruCache) pushFront(e *lruEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) moveToFront(e *lruEntry) {
	if c.head == e {
		return
	}
	c.detach(e)
	c.pushFront(e)
}

func (c *lruCache) detach(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *lruCache) unlink(e *lruEntry) {
	if e == nil {
		return
	}
	c.detach(e)
	delete(c.items, e.id)
}
