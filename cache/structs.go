// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package cache

import (
	"github.com/miekg/dns"

	"github.com/circuits/udns/rr"
)

// entry is one node of the intrusive LRU doubly linked list.
type entry struct {
	key    rr.QKey
	answer []dns.RR
	prev   *entry
	next   *entry
}
