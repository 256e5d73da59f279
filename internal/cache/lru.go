// internal/cache/lru.go
//
// Least-recently-used byte cache with per-entry expiry.  Backs the
// in-process profile cache when Redis is not configured.
//
// Not safe for concurrent use; the owner holds its own lock.
package cache

import (
	"container/list"
	"time"
)

// LRU maps string keys to byte values, evicting the least recently used
// entry once capacity is exceeded.
type LRU struct {
	cap  int
	ll   *list.List
	dict map[string]*list.Element
}

type entry struct {
	key     string
	val     []byte
	expires time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// New returns an LRU with the given capacity.  Panics on cap < 1.
func New(capacity int) *LRU {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	return &LRU{
		cap:  capacity,
		ll:   list.New(),
		dict: make(map[string]*list.Element, capacity),
	}
}

// Get returns a live value and marks it MRU.  An expired entry is dropped
// and reported as a miss.
func (c *LRU) Get(key string, now time.Time) ([]byte, bool) {
	ele, hit := c.dict[key]
	if !hit {
		return nil, false
	}
	ent := ele.Value.(*entry)
	if ent.expired(now) {
		c.remove(ele)
		return nil, false
	}
	c.ll.MoveToFront(ele)
	return ent.val, true
}

// Add inserts or replaces a value.  It reports whether an older entry was
// evicted to make room.
func (c *LRU) Add(key string, val []byte, expires time.Time) (evicted bool) {
	if ele, hit := c.dict[key]; hit {
		ent := ele.Value.(*entry)
		ent.val, ent.expires = val, expires
		c.ll.MoveToFront(ele)
		return false
	}
	ele := c.ll.PushFront(&entry{key: key, val: val, expires: expires})
	c.dict[key] = ele
	if c.ll.Len() > c.cap {
		c.remove(c.ll.Back())
		return true
	}
	return false
}

// Remove deletes key and reports whether it was present.
func (c *LRU) Remove(key string) bool {
	ele, hit := c.dict[key]
	if hit {
		c.remove(ele)
	}
	return hit
}

// Sweep drops up to max expired entries, oldest use first, and returns how
// many it removed.  max ≤ 0 means no limit.
func (c *LRU) Sweep(now time.Time, max int) int {
	n := 0
	for ele := c.ll.Back(); ele != nil; {
		prev := ele.Prev()
		if ele.Value.(*entry).expired(now) {
			c.remove(ele)
			n++
			if max > 0 && n >= max {
				break
			}
		}
		ele = prev
	}
	return n
}

// Len reports current size.
func (c *LRU) Len() int { return c.ll.Len() }

func (c *LRU) remove(ele *list.Element) {
	c.ll.Remove(ele)
	delete(c.dict, ele.Value.(*entry).key)
}
