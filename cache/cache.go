// Package cache implements the resolver's bounded LRU answer cache with
// per-second TTL aging.
//
// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package cache

import (
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/circuits/udns/rr"
)

// DefaultCapacity is the cache size used when none is configured.
const DefaultCapacity = 1024

// Cache is a bounded, LRU-evicting map of QKey to answer set. Capacity <= 0
// means unbounded. TTLs are decremented in place by Tick; callers must treat
// records returned from Get as read-only. There is no exported iteration;
// Tick walks a snapshot of the keys internally.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[rr.QKey]*entry
	head     *entry // sentinel, head.next is most-recently-used
	tail     *entry // sentinel, tail.prev is least-recently-used
}

// New creates a Cache with the given capacity. A capacity <= 0 disables
// eviction (the cache can grow without bound).
func New(capacity int) *Cache {
	head := &entry{}
	tail := &entry{}
	head.next = tail
	tail.prev = head
	return &Cache{
		capacity: capacity,
		items:    make(map[rr.QKey]*entry),
		head:     head,
		tail:     tail,
	}
}

// Get returns the answer set stored under key and moves it to
// most-recently-used. The returned slice must not be mutated by the caller;
// use rr.CloneAnswerSet before handing the records to another owner.
func (c *Cache) Get(key rr.QKey) ([]dns.RR, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.touch(key)
	if e == nil {
		return nil, false
	}
	return e.answer, true
}

// Put inserts or replaces the answer set under key, moving it to
// most-recently-used, and evicts the least-recently-used entry if the
// cache would otherwise exceed its capacity. answer is always stored as a
// sequence, even if it has exactly one element.
func (c *Cache) Put(key rr.QKey, answer []dns.RR) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.touch(key); e != nil {
		e.answer = answer
		return
	}

	e := &entry{key: key, answer: answer}
	c.pushFront(e)
	c.items[key] = e
	c.evictOverflow()
}

// Remove deletes the entry for key, if present.
func (c *Cache) Remove(key rr.QKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeEntry(c.items[key])
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Tick performs one TTL aging pass: any entry that already has at least one
// RR at TTL 0 (or has no RRs at all) is removed entirely; in every other
// entry each RR's TTL is decremented by one second. An RR decremented to 0
// is therefore removed on the following pass. onExpire, if non-nil, is
// called once per removed key (used for logging) after the cache lock is
// released.
//
// The key list is snapshotted before mutation so that removing an entry
// mid-pass never invalidates the traversal (spec requirement: iteration
// must be safe against concurrent removal of the entry yielded).
func (c *Cache) Tick(onExpire func(rr.QKey)) {
	c.mu.Lock()
	keys := make([]rr.QKey, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}

	var expired []rr.QKey
	for _, k := range keys {
		e, ok := c.items[k]
		if !ok {
			continue // already removed by an intervening Remove/Put
		}
		// An empty answer set (cached upstream "success, no records")
		// carries no TTL to age down, so it expires on the very next tick.
		expire := len(e.answer) == 0
		for _, record := range e.answer {
			if record.Header().Ttl == 0 {
				expire = true
				break
			}
		}
		if expire {
			c.removeEntry(e)
			expired = append(expired, k)
			continue
		}
		for _, record := range e.answer {
			record.Header().Ttl--
		}
	}
	c.mu.Unlock()

	if onExpire != nil {
		for _, k := range expired {
			onExpire(k)
		}
	}
}

// RunTicker drives Tick once per second until done is closed.
func (c *Cache) RunTicker(done <-chan struct{}, onExpire func(rr.QKey)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.Tick(onExpire)
		}
	}
}

// touch moves the entry for key to the front of the list and returns it,
// or returns nil if key is not present. Caller must hold c.mu.
func (c *Cache) touch(key rr.QKey) *entry {
	e, ok := c.items[key]
	if !ok {
		return nil
	}
	c.unlink(e)
	c.pushFront(e)
	return e
}

func (c *Cache) pushFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *Cache) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *Cache) removeEntry(e *entry) {
	if e == nil {
		return
	}
	c.unlink(e)
	delete(c.items, e.key)
}

func (c *Cache) evictOverflow() {
	if c.capacity <= 0 {
		return
	}
	for len(c.items) > c.capacity {
		victim := c.tail.prev
		if victim == c.head {
			return
		}
		c.removeEntry(victim)
	}
}
