// Package pending correlates outstanding upstream queries (by transaction
// ID) with the client and original question that triggered them.
//
// Grounded on the self-maintained peers/requests dictionaries in the
// circuits/udns Python original (udns/server.py): forwarding a query records
// the client address and the original message under the freshly allocated
// upstream transaction id; the matching response looks the entry up by id,
// replies to the client, and deletes the entry.
//
// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package pending

import (
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// DefaultTimeout is T_upstream from the spec: pending entries older than
// this are reaped with no reply sent to the client.
const DefaultTimeout = 10 * time.Second

// maxIDAttempts bounds the allocate-if-free retry loop; with 65536 possible
// ids this is generous even for noisy workloads.
const maxIDAttempts = 64

// Entry is a single in-flight forwarded query.
type Entry struct {
	Client  net.Addr
	Query   *dns.Msg
	Created time.Time
}

// Table is the pending-query correlation table. Safe for concurrent use.
type Table struct {
	mu    sync.Mutex
	items map[uint16]Entry
	now   func() time.Time
}

// New creates an empty pending table.
func New() *Table {
	return &Table{items: make(map[uint16]Entry), now: time.Now}
}

// Add allocates a fresh, currently-unused transaction id, records the
// pending entry under it, and returns the id to use on the outgoing
// upstream query. It returns false if no free id could be allocated within
// a bounded number of attempts (spec §9: "on exhaustion, fail the forward
// with an error").
func (t *Table) Add(client net.Addr, query *dns.Msg) (uint16, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < maxIDAttempts; i++ {
		id := dns.Id()
		if _, taken := t.items[id]; taken {
			continue
		}
		t.items[id] = Entry{Client: client, Query: query, Created: t.now()}
		return id, true
	}
	return 0, false
}

// Pop removes and returns the pending entry for id, if present.
func (t *Table) Pop(id uint16) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.items[id]
	if ok {
		delete(t.items, id)
	}
	return e, ok
}

// Len returns the number of in-flight pending entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Reap removes every entry older than timeout and returns the ids that were
// removed, for the caller to log. No reply is sent for a reaped entry; the
// spec relies on the client's own DNS retry.
func (t *Table) Reap(timeout time.Duration) []uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var reaped []uint16
	for id, e := range t.items {
		if now.Sub(e.Created) > timeout {
			reaped = append(reaped, id)
			delete(t.items, id)
		}
	}
	return reaped
}

// RunReaper calls Reap on the given interval until done is closed, invoking
// onReap once per reaped id.
func (t *Table) RunReaper(done <-chan struct{}, interval, timeout time.Duration, onReap func(uint16)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			for _, id := range t.Reap(timeout) {
				if onReap != nil {
					onReap(id)
				}
			}
		}
	}
}
