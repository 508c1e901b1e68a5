// Package resolver implements the DNS resolution pipeline: cache, then
// static hosts, then the authoritative record store with a one-level CNAME
// chase, then an asynchronous upstream forward.
//
// Grounded on the circuits/udns Python original (udns/server.py: request/
// response handlers), adapted from dnsplane's synchronous
// store-then-parallel-upstream resolver to the spec's async forward model,
// and restructured around github.com/circuits/udns's cache, hostsfile,
// store and pending packages in place of dnsplane's in-process data store.
//
// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package resolver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/circuits/udns/cache"
	"github.com/circuits/udns/hostsfile"
	"github.com/circuits/udns/logger"
	"github.com/circuits/udns/pending"
	"github.com/circuits/udns/rr"
)

// RecordStore is the subset of the authoritative record store the resolver
// needs: every record registered under an owner name, unfiltered by type.
type RecordStore interface {
	RecordsByName(ctx context.Context, name string) ([]dns.RR, error)
}

// Sender delivers a wire-format DNS message to dst. Implemented by
// *transport.Listener; both client replies and upstream forwards travel
// through the same Sender since they share one socket.
type Sender interface {
	Send(dst net.Addr, payload []byte) error
}

// Config collects the resolver's dependencies.
type Config struct {
	Cache   *cache.Cache
	Hosts   *hostsfile.Map
	Store   RecordStore
	Pending *pending.Table
	Sender  Sender

	// UpstreamAddr is the host:port a forwarded query is sent to.
	UpstreamAddr string

	Logger *slog.Logger

	// LogQueue, if set, moves the resolver's per-request Debug/Info
	// logging off the reply path: the reply is sent immediately and the
	// log line is written from the queue's background worker. Error-level
	// logging is never deferred, since that's the signal an operator needs
	// promptly. Nil means log synchronously.
	LogQueue *logger.AsyncLogQueue
}

// Resolver answers DNS questions received on the shared socket.
type Resolver struct {
	cache        *cache.Cache
	hosts        *hostsfile.Map
	store        RecordStore
	pending      *pending.Table
	sender       Sender
	upstreamAddr string
	log          *slog.Logger
	logQueue     *logger.AsyncLogQueue
}

// New constructs a Resolver from cfg.
func New(cfg Config) *Resolver {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		cache:        cfg.Cache,
		hosts:        cfg.Hosts,
		store:        cfg.Store,
		pending:      cfg.Pending,
		sender:       cfg.Sender,
		upstreamAddr: cfg.UpstreamAddr,
		log:          log,
		logQueue:     cfg.LogQueue,
	}
}

// logAsync runs f on the log queue's background worker when one is
// configured, otherwise runs it inline.
func (r *Resolver) logAsync(f func()) {
	if r.logQueue == nil {
		f()
		return
	}
	r.logQueue.Enqueue(f)
}

// HandleDatagram is the transport.Handler entry point: it unpacks payload
// and dispatches on the QR bit (spec §4: query vs. response share one
// socket).
func (r *Resolver) HandleDatagram(ctx context.Context, from net.Addr, payload []byte) {
	msg := new(dns.Msg)
	if err := msg.Unpack(payload); err != nil {
		r.logAsync(func() { r.log.Debug("dropping unparseable datagram", "from", from, "error", err) })
		return
	}

	if msg.Response {
		r.handleResponse(msg)
		return
	}
	r.handleQuery(ctx, from, msg)
}

// handleQuery answers a client query, in lookup order: cache, hosts,
// authoritative store, then asynchronous upstream forward.
func (r *Resolver) handleQuery(ctx context.Context, client net.Addr, query *dns.Msg) {
	if len(query.Question) == 0 {
		return
	}
	question := query.Question[0]
	key := rr.KeyForQuestion(question)

	if answer, ok := r.cache.Get(key); ok {
		r.logAsync(func() {
			r.log.Debug("cache hit", "name", question.Name, "qtype", dns.TypeToString[question.Qtype])
		})
		r.reply(client, query, answer)
		return
	}

	if answer, ok := r.answerFromHosts(question); ok {
		r.logAsync(func() { r.log.Debug("hosts hit", "name", question.Name) })
		r.cache.Put(key, rr.CloneAnswerSet(answer))
		r.reply(client, query, answer)
		return
	}

	if answer, ok := r.answerFromStore(ctx, question); ok {
		r.logAsync(func() { r.log.Debug("authoritative hit", "name", question.Name) })
		r.cache.Put(key, rr.CloneAnswerSet(answer))
		r.reply(client, query, answer)
		return
	}

	r.forward(client, query)
}

// answerFromHosts synthesizes answers from the static hosts map: every
// literal carried by the entry is returned, each typed by its own form
// (A for an IPv4 literal, AAAA for an IPv6 literal), not just the literals
// matching the query's own type. A query for either A or AAAA reaches the
// same dual-stack answer set (spec §4.1 step 2, §4.5).
func (r *Resolver) answerFromHosts(question dns.Question) ([]dns.RR, bool) {
	if question.Qclass != dns.ClassINET {
		return nil, false
	}
	if question.Qtype != dns.TypeA && question.Qtype != dns.TypeAAAA {
		return nil, false
	}
	ips, ok := r.hosts.Lookup(question.Name)
	if !ok {
		return nil, false
	}

	var answer []dns.RR
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			answer = append(answer, &dns.A{
				Hdr: dns.RR_Header{Name: question.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 0},
				A:   ip4,
			})
			continue
		}
		answer = append(answer, &dns.AAAA{
			Hdr:  dns.RR_Header{Name: question.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 0},
			AAAA: ip,
		})
	}
	return answer, len(answer) > 0
}

// answerFromStore fetches the owner's records from the authoritative store
// and filters them to the question's (qtype,qclass). If that yields nothing
// and the store returned exactly one record, itself a CNAME, the chase
// re-queries the store for that target one level deep (spec §4.1 step 3: a
// chase triggers only when the sole stored result is a CNAME, not whenever
// one happens to appear among several unrelated records).
func (r *Resolver) answerFromStore(ctx context.Context, question dns.Question) ([]dns.RR, bool) {
	if r.store == nil {
		return nil, false
	}

	records, err := r.store.RecordsByName(ctx, question.Name)
	if err != nil {
		r.log.Warn("store lookup failed", "name", question.Name, "error", err)
		return nil, false
	}

	answer := rr.FilterByType(records, question.Qtype, question.Qclass)
	if len(answer) > 0 {
		return answer, true
	}

	if len(records) != 1 {
		return nil, false
	}
	cn, ok := records[0].(*dns.CNAME)
	if !ok {
		return nil, false
	}

	chased, err := r.store.RecordsByName(ctx, cn.Target)
	if err != nil {
		return nil, false
	}
	chasedAnswer := rr.FilterByType(chased, question.Qtype, question.Qclass)
	if len(chasedAnswer) == 0 {
		return nil, false
	}
	return append([]dns.RR{cn}, chasedAnswer...), true
}

// forward registers the query in the pending table under a fresh
// transaction id and sends it to the upstream resolver. If no free id is
// available, the client receives SERVFAIL rather than waiting forever
// (spec §9).
func (r *Resolver) forward(client net.Addr, query *dns.Msg) {
	id, ok := r.pending.Add(client, query)
	if !ok {
		r.log.Error("pending table exhausted, failing forward", "name", query.Question[0].Name)
		r.replyError(client, query, dns.RcodeServerFailure)
		return
	}

	upstreamQuery := query.Copy()
	upstreamQuery.Id = id

	payload, err := upstreamQuery.Pack()
	if err != nil {
		r.log.Error("failed to pack upstream query", "error", err)
		r.pending.Pop(id)
		r.replyError(client, query, dns.RcodeServerFailure)
		return
	}

	upstreamAddr, err := net.ResolveUDPAddr("udp", r.upstreamAddr)
	if err != nil {
		r.log.Error("invalid upstream address", "addr", r.upstreamAddr, "error", err)
		r.pending.Pop(id)
		r.replyError(client, query, dns.RcodeServerFailure)
		return
	}

	name := query.Question[0].Name
	r.logAsync(func() {
		r.log.Info("forwarding", "name", name, "upstream", r.upstreamAddr, "id", id)
	})
	if err := r.sender.Send(upstreamAddr, payload); err != nil {
		r.log.Error("failed to forward query", "error", err)
		r.pending.Pop(id)
	}
}

// handleResponse correlates an upstream response back to its client via the
// pending table, caches the answer, and relays the reply. A response whose
// id is not pending (already reaped, or a stray datagram) is logged and
// dropped (spec §9).
func (r *Resolver) handleResponse(resp *dns.Msg) {
	entry, ok := r.pending.Pop(resp.Id)
	if !ok {
		id := resp.Id
		r.logAsync(func() { r.log.Info("unknown response id, dropping", "id", id) })
		return
	}

	reply := entry.Query.Copy()
	reply.SetReply(entry.Query)
	reply.Rcode = resp.Rcode
	reply.Answer = resp.Answer

	// A successful upstream response is cached even with an empty answer
	// section (spec §4.1 edge policy); cache.Tick immediately expires such
	// an entry on its next pass, since there is no TTL to age down, so this
	// is an empty-set placeholder, not a negative cache.
	if resp.Rcode == dns.RcodeSuccess {
		key := rr.KeyForQuestion(entry.Query.Question[0])
		r.cache.Put(key, rr.CloneAnswerSet(resp.Answer))
	}

	payload, err := reply.Pack()
	if err != nil {
		r.log.Error("failed to pack client reply", "error", err)
		return
	}
	if err := r.sender.Send(entry.Client, payload); err != nil {
		r.log.Error("failed to relay reply", "client", entry.Client, "error", err)
	}
}

// reply packs and sends a successful answer built from a cache/hosts/store
// hit.
func (r *Resolver) reply(client net.Addr, query *dns.Msg, answer []dns.RR) {
	msg := new(dns.Msg)
	msg.SetReply(query)
	msg.Answer = answer
	msg.Rcode = dns.RcodeSuccess

	payload, err := msg.Pack()
	if err != nil {
		r.log.Error("failed to pack reply", "error", err)
		return
	}
	if err := r.sender.Send(client, payload); err != nil {
		r.log.Error("failed to send reply", "client", client, "error", err)
	}
}

// replyError sends a reply carrying rcode and no answers.
func (r *Resolver) replyError(client net.Addr, query *dns.Msg, rcode int) {
	msg := new(dns.Msg)
	msg.SetReply(query)
	msg.Rcode = rcode

	payload, err := msg.Pack()
	if err != nil {
		r.log.Error("failed to pack error reply", "error", err)
		return
	}
	if err := r.sender.Send(client, payload); err != nil {
		r.log.Error("failed to send error reply", "client", client, "error", err)
	}
}

// StartMaintenance starts the cache TTL ticker and the pending-table reaper,
// both stopping when done is closed.
func StartMaintenance(c *cache.Cache, p *pending.Table, done <-chan struct{}, log *slog.Logger) {
	go c.RunTicker(done, func(k rr.QKey) {
		log.Debug("cache entry expired", "name", k.Name, "qtype", dns.TypeToString[k.Qtype])
	})
	go p.RunReaper(done, time.Second, pending.DefaultTimeout, func(id uint16) {
		log.Info("reaped stale pending query", "id", id)
	})
}
