// Package transport owns the single UDP socket the resolver uses for both
// client-facing queries and upstream forwarding, and hands every incoming
// datagram to one Handler, which tells queries from responses itself.
//
// Grounded on jroosing-HydraDNS's udp_server.go (ReadFromUDP/WriteToUDP
// receive-loop shape, pooled buffers, graceful Stop-with-timeout), cut down
// from its per-core multi-socket worker-pool design to the single shared
// socket the spec requires: one listener serves client queries and upstream
// replies alike, since a forwarded query's response must arrive on the same
// socket it was sent from for the pending table to correlate it.
//
// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// MaxMessageSize is the largest UDP DNS datagram this listener will accept,
// per RFC 1035 §4.2.1 absent EDNS negotiation.
const MaxMessageSize = 512

// Handler processes a single received datagram. Handler is invoked for
// every datagram this socket receives, client queries and upstream
// responses alike, and decides for itself whether it is a query or a
// response by inspecting the bytes.
type Handler func(ctx context.Context, from net.Addr, payload []byte)

// Listener is a single bound UDP socket shared by client and upstream
// traffic.
type Listener struct {
	log  *slog.Logger
	conn net.PacketConn
	wg   sync.WaitGroup
}

// Listen binds addr (host:port) for UDP traffic.
func Listen(addr string, log *slog.Logger) (*Listener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Listener{conn: conn, log: log}, nil
}

// LocalAddr returns the bound address.
func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// Serve reads datagrams until ctx is cancelled, invoking handler for each
// one. It blocks until ctx is done or the socket errors.
func (l *Listener) Serve(ctx context.Context, handler Handler) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		l.conn.Close()
		close(done)
	}()

	buf := make([]byte, MaxMessageSize)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-done:
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("transport: read: %w", err)
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		l.wg.Add(1)
		go func(from net.Addr, payload []byte) {
			defer l.wg.Done()
			handler(ctx, from, payload)
		}(from, payload)
	}
}

// Send writes payload to dst. Used both to reply to a client and to forward
// a query upstream, since both share this socket.
func (l *Listener) Send(dst net.Addr, payload []byte) error {
	_, err := l.conn.WriteTo(payload, dst)
	if err != nil {
		return fmt.Errorf("transport: write to %s: %w", dst, err)
	}
	return nil
}

// Close closes the socket and waits up to timeout for in-flight handlers to
// finish.
func (l *Listener) Close(timeout time.Duration) error {
	l.conn.Close()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("transport: timeout waiting for in-flight handlers")
	}
}
