// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package ipvalidator

import (
	"net"
	"strings"
)

// IsValidIP reports whether ip is a valid IPv4 or IPv6 literal, used by
// "record add" to reject malformed rdata for A/AAAA records before they
// reach the store.
func IsValidIP(ip string) bool {
	return net.ParseIP(strings.TrimSpace(ip)) != nil
}
