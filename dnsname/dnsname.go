// Package dnsname canonicalizes DNS owner names.
//
// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package dnsname

import "strings"

// Canonical returns name lowercased and dot-terminated, the canonical form
// used as the owner field of every cache/pending/store key.
func Canonical(name string) string {
	if name == "" {
		return "."
	}
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	return name
}

// Equal reports whether two names are the same in canonical form.
func Equal(a, b string) bool {
	return Canonical(a) == Canonical(b)
}
