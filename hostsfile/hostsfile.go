// Package hostsfile builds the resolver's immutable static host map from a
// hosts-style text file.
//
// Grounded on folbricht-routedns's blocklistdb-hosts.go (NewHostsDB):
// line-oriented "IP name..." parsing, net.ParseIP + To4() classification,
// trailing-dot normalization. Retargeted from block/spoof-list semantics to
// host-map resolution semantics (a name maps to every literal listed for
// it, not to a single spoofed address per family).
//
// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package hostsfile

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/circuits/udns/dnsname"
)

// Map is an immutable, built-once mapping from canonical owner name to the
// IPv4/IPv6 literals listed for it in the hosts file.
type Map struct {
	entries map[string][]net.IP
}

// Load reads and parses a hosts-style file at path.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hostsfile: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads hosts-file lines from r: each non-blank, non-"#" line is
// "IP name1 [name2 ...]". Names are normalized to canonical (dot-terminated,
// lowercased) form. IPs containing ":" are IPv6, otherwise IPv4.
func Parse(r io.Reader) (*Map, error) {
	entries := make(map[string][]net.IP)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip := net.ParseIP(fields[0])
		if ip == nil {
			continue
		}
		for _, name := range fields[1:] {
			key := dnsname.Canonical(name)
			entries[key] = append(entries[key], ip)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("hostsfile: scan: %w", err)
	}
	return &Map{entries: entries}, nil
}

// Empty returns a Map with no entries, used when no hosts file is configured.
func Empty() *Map {
	return &Map{entries: make(map[string][]net.IP)}
}

// Lookup returns the literals registered for the canonical name, if any.
func (m *Map) Lookup(name string) ([]net.IP, bool) {
	if m == nil {
		return nil, false
	}
	ips, ok := m.entries[dnsname.Canonical(name)]
	return ips, ok
}
