// Package store is the resolver's client for the authoritative record
// store: a Redis database holding zones and resource records, queried by
// owner name.
//
// Grounded on folbricht-routedns's cache-redis.go (redis.NewClient,
// context-timeout'd Get/Set/Del, redis.Nil miss handling), retargeted from
// a TTL answer-cache backend to a zone/record admin store keyed by owner
// name. This mirrors the original circuits/udns Python implementation's use
// of Redis (via the redisco ORM) as the only persistence layer.
//
// Schema:
//
//	udns:zones                         SET of zone names
//	udns:zone:<name>:ttl                STRING default TTL for the zone
//	udns:zone:<name>:owners             SET of owner names belonging to the zone
//	udns:owner:<canonical-owner-name>   LIST of "ttl class type rdata" records
//
// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/redis/go-redis/v9"

	"github.com/circuits/udns/dnsname"
)

const queryTimeout = 2 * time.Second

// Store is a thin, connection-pooled client over the record-store database.
type Store struct {
	client *redis.Client
}

// Options configures how Store connects to Redis.
type Options struct {
	Host string
	Port int
}

// Open constructs a Store. It does not verify connectivity; call Ping for
// the startup reachability check described in the spec (§5: "Startup
// blocks on database reachability up to 10 s before aborting").
func Open(opt Options) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", opt.Host, opt.Port),
	})}
}

// Ping verifies the store is reachable within ctx's deadline.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func ownerKey(name string) string {
	return "udns:owner:" + dnsname.Canonical(name)
}

func zonesKey() string {
	return "udns:zones"
}

func zoneTTLKey(zone string) string {
	return "udns:zone:" + dnsname.Canonical(zone) + ":ttl"
}

func zoneOwnersKey(zone string) string {
	return "udns:zone:" + dnsname.Canonical(zone) + ":owners"
}

// RecordsByName returns every resource record stored under owner name, with
// no (type,class) filtering applied at this layer — per spec §4.1/§9, the
// store query filters only by owner; the resolver filters by (qtype,qclass)
// after the fetch. A DB error here is a transient-store condition; callers
// should treat it as "no authoritative records" and fall through to
// forwarding (spec §7), not propagate it to the client.
func (s *Store) RecordsByName(ctx context.Context, name string) ([]dns.RR, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	lines, err := s.client.LRange(ctx, ownerKey(name), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: records for %s: %w", name, err)
	}

	owner := dnsname.Canonical(name)
	records := make([]dns.RR, 0, len(lines))
	for _, line := range lines {
		r, err := zoneLineToRR(owner, line)
		if err != nil {
			continue // skip a corrupt record rather than fail the whole lookup
		}
		records = append(records, r)
	}
	return records, nil
}

// zoneLineToRR turns a stored "ttl class type rdata" line back into a
// fully-qualified dns.RR for owner.
func zoneLineToRR(owner, line string) (dns.RR, error) {
	fields := strings.SplitN(line, " ", 4)
	if len(fields) != 4 {
		return nil, fmt.Errorf("store: malformed record line %q", line)
	}
	zoneLine := fmt.Sprintf("%s %s %s %s %s", owner, fields[0], fields[1], fields[2], fields[3])
	return dns.NewRR(zoneLine)
}

func rrToZoneLine(r dns.RR) string {
	h := r.Header()
	full := r.String()
	// dns.RR.String() renders "owner\tttl\tclass\ttype\trdata"; strip the
	// owner field back off since it is stored implicitly by the list key.
	fields := strings.SplitN(full, "\t", 5)
	if len(fields) == 5 {
		return fmt.Sprintf("%d %s", h.Ttl, strings.Join(fields[2:], " "))
	}
	return fmt.Sprintf("%d IN %s %s", h.Ttl, dns.TypeToString[h.Rrtype], strings.TrimPrefix(full, r.Header().Name))
}

// CreateZone registers a new zone with its default TTL. It is an error to
// create a zone that already exists.
func (s *Store) CreateZone(ctx context.Context, zone string, ttl uint32) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	exists, err := s.client.SIsMember(ctx, zonesKey(), dnsname.Canonical(zone)).Result()
	if err != nil {
		return fmt.Errorf("store: create zone %s: %w", zone, err)
	}
	if exists {
		return fmt.Errorf("store: zone %s already exists", zone)
	}
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, zonesKey(), dnsname.Canonical(zone))
	pipe.Set(ctx, zoneTTLKey(zone), ttl, 0)
	_, err = pipe.Exec(ctx)
	return err
}

// ListZones returns every registered zone name.
func (s *Store) ListZones(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.client.SMembers(ctx, zonesKey()).Result()
}

// ZoneTTL returns the zone's configured default TTL.
func (s *Store) ZoneTTL(ctx context.Context, zone string) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	v, err := s.client.Get(ctx, zoneTTLKey(zone)).Result()
	if err != nil {
		return 0, fmt.Errorf("store: zone ttl %s: %w", zone, err)
	}
	ttl, err := strconv.ParseUint(v, 10, 32)
	return uint32(ttl), err
}

// ZoneOwners returns every owner name registered to the zone.
func (s *Store) ZoneOwners(ctx context.Context, zone string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.client.SMembers(ctx, zoneOwnersKey(zone)).Result()
}

// AddRecord appends rr to the record list of zone, under owner name.
// rname "@" refers to the zone apex.
func (s *Store) AddRecord(ctx context.Context, zone, rname string, r dns.RR) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	owner := recordOwner(zone, rname)
	line := rrToZoneLine(r)

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, ownerKey(owner), line)
	pipe.SAdd(ctx, zoneOwnersKey(zone), dnsname.Canonical(owner))
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteRecord removes every record stored under owner rname within zone.
func (s *Store) DeleteRecord(ctx context.Context, zone, rname string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	owner := recordOwner(zone, rname)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, ownerKey(owner))
	pipe.SRem(ctx, zoneOwnersKey(zone), dnsname.Canonical(owner))
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteZone removes the zone, all of its owners' records, and its metadata.
func (s *Store) DeleteZone(ctx context.Context, zone string) error {
	owners, err := s.ZoneOwners(ctx, zone)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	for _, owner := range owners {
		pipe.Del(ctx, ownerKey(owner))
	}
	pipe.Del(ctx, zoneOwnersKey(zone))
	pipe.Del(ctx, zoneTTLKey(zone))
	pipe.SRem(ctx, zonesKey(), dnsname.Canonical(zone))
	_, err = pipe.Exec(ctx)
	return err
}

// recordOwner resolves a record's full owner name within a zone: "@" is the
// zone apex, anything else is prefixed onto the zone name.
func recordOwner(zone, rname string) string {
	if rname == "@" || rname == "" {
		return zone
	}
	return rname + "." + zone
}
