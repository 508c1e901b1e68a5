// Package rr holds the resolver's notion of a cache/lookup key and small
// helpers for building and filtering github.com/miekg/dns resource records.
//
// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package rr

import (
	"fmt"

	"github.com/miekg/dns"

	"github.com/circuits/udns/dnsname"
)

// QKey is the primary key of both the cache and the pending index: the
// canonical owner name together with query type and class.
type QKey struct {
	Name   string
	Qtype  uint16
	Qclass uint16
}

// KeyForQuestion builds a QKey from a decoded DNS question, canonicalizing
// the owner name.
func KeyForQuestion(q dns.Question) QKey {
	return QKey{Name: dnsname.Canonical(q.Name), Qtype: q.Qtype, Qclass: q.Qclass}
}

// FilterByType returns the subset of rrs whose header matches qtype and
// qclass. ANY (qtype 255) and CLASS ANY (qclass 255) are not special-cased;
// the spec's lookup order never constructs those keys.
func FilterByType(rrs []dns.RR, qtype, qclass uint16) []dns.RR {
	out := make([]dns.RR, 0, len(rrs))
	for _, r := range rrs {
		h := r.Header()
		if h.Rrtype == qtype && h.Class == qclass {
			out = append(out, r)
		}
	}
	return out
}

// FromZoneLine parses a single zone-file-form resource record
// ("name ttl class type rdata...") into a dns.RR, the representation the
// record store and the zone administration commands exchange.
func FromZoneLine(line string) (dns.RR, error) {
	r, err := dns.NewRR(line)
	if err != nil {
		return nil, fmt.Errorf("rr: parse zone line %q: %w", line, err)
	}
	return r, nil
}

// ZoneLine renders a resource record back to zone-file form, the inverse of
// FromZoneLine (used by "zone export").
func ZoneLine(r dns.RR) string {
	return r.String()
}

// CloneAnswerSet returns a shallow copy of the slice (not the records
// themselves) so that a reply built from a cache hit can be handed off
// safely while the cache entry continues to age under the ticker.
func CloneAnswerSet(rrs []dns.RR) []dns.RR {
	out := make([]dns.RR, len(rrs))
	copy(out, rrs)
	return out
}
