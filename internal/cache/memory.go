package cache

import (
	"context"
	"sync"

	"fwdproxy/internal/metrics"
)

type entry struct {
	key  string
	body []byte
	size int64
	refs int
	prev *entry
	next *entry
}

// LRU is a byte-bounded cache ordered by recency. Entries handed out through
// a Handle are pinned and are never evicted while pinned.
type LRU struct {
	mu    sync.Mutex
	freed *sync.Cond // signalled when an entry's refs drop to zero

	items map[string]*entry
	head  *entry
	tail  *entry
	total int64

	maxBytes       int64
	maxObjectBytes int64
}

func New(maxBytes, maxObjectBytes int64) *LRU {
	if maxBytes <= 0 {
		maxBytes = MaxCacheSize
	}
	if maxObjectBytes <= 0 {
		maxObjectBytes = MaxObjectSize
	}
	if maxObjectBytes > maxBytes {
		maxObjectBytes = maxBytes
	}
	c := &LRU{
		items:          make(map[string]*entry),
		maxBytes:       maxBytes,
		maxObjectBytes: maxObjectBytes,
	}
	c.freed = sync.NewCond(&c.mu)
	return c
}

func (c *LRU) MaxObjectBytes() int64 {
	return c.maxObjectBytes
}

// Lookup returns a pinned handle for key and marks it most recently used.
func (c *LRU) Lookup(key string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	e.refs++
	return &Handle{c: c, e: e}, true
}

func (c *LRU) Release(h *Handle) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if h.released {
		return
	}
	h.released = true
	h.e.refs--
	if h.e.refs == 0 {
		c.freed.Broadcast()
	}
}

// Insert stores body under key and returns it pinned. The body is owned by the
// cache afterwards. When the cache is full and every candidate is pinned,
// Insert waits until a pin is released or ctx is done.
func (c *LRU) Insert(ctx context.Context, key string, body []byte) (*Handle, error) {
	size := int64(len(body))
	if size > c.maxObjectBytes {
		return nil, ErrTooLarge
	}

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.freed.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if _, ok := c.items[key]; ok {
			return nil, ErrExists
		}
		if c.total+size <= c.maxBytes {
			break
		}
		if victim := c.evictable(); victim != nil {
			c.evict(victim)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.freed.Wait()
	}

	e := &entry{
		key:  key,
		body: body,
		size: size,
		refs: 1,
	}
	c.items[key] = e
	c.addToFront(e)
	c.total += size
	c.report()

	return &Handle{c: c, e: e}, nil
}

func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	pinned := 0
	for e := c.head; e != nil; e = e.next {
		if e.refs > 0 {
			pinned++
		}
	}
	return Stats{
		Entries:        len(c.items),
		Bytes:          c.total,
		Pinned:         pinned,
		MaxBytes:       c.maxBytes,
		MaxObjectBytes: c.maxObjectBytes,
	}
}

// Keys lists cached keys from most to least recently used.
func (c *LRU) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for e := c.head; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// evictable returns the least recently used unpinned entry.
func (c *LRU) evictable() *entry {
	for e := c.tail; e != nil; e = e.prev {
		if e.refs == 0 {
			return e
		}
	}
	return nil
}

func (c *LRU) evict(e *entry) {
	c.remove(e)
	delete(c.items, e.key)
	c.total -= e.size
	metrics.IncCacheEviction()
	c.report()
}

func (c *LRU) report() {
	metrics.SetCacheUsage(float64(c.total), float64(len(c.items)))
}

func (c *LRU) addToFront(e *entry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *LRU) moveToFront(e *entry) {
	if c.head == e {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *LRU) remove(e *entry) {
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
	e.prev = nil
	e.next = nil
}
