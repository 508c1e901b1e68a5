// Package config defines the resolver's runtime configuration: flags and
// environment variables, no config file.
//
// Grounded on the circuits/udns Python original's parse_args (udns/server.py):
// the same --bind/--forward/--dbhost/--dbport/--pidfile/--daemon/--debug
// surface, with REDIS_PORT_6379_TCP_ADDR/REDIS_PORT_6379_TCP_PORT as the
// environment seeds for the database flags. Flag wiring follows
// folbricht-routedns's cmd/routedns/main.go (github.com/spf13/cobra +
// github.com/spf13/pflag), replacing dnsplane's JSON config file entirely:
// a resolver this small has no reason to carry a config file format.
//
// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package config

import (
	"os"
	"strconv"

	"github.com/spf13/pflag"
)

// Config is the resolver's complete runtime configuration.
type Config struct {
	Bind        string
	Forward     string
	CacheSize   int
	DBHost      string
	DBPort      int
	LogFile     string
	LogSeverity string
	PIDFile     string
	Daemon      bool
	Debug       bool
	Verbose     bool
	HostsFile   string
}

const (
	// DefaultBind matches the Python original's "0.0.0.0:53".
	DefaultBind = "0.0.0.0:53"
	// DefaultForward is the upstream resolver used absent --forward.
	DefaultForward = "8.8.8.8:53"
	// DefaultCacheSize is the LRU cache's default entry capacity.
	DefaultCacheSize = 1024
	// DefaultDBHost is the Redis host absent --dbhost or REDIS_PORT_6379_TCP_ADDR.
	DefaultDBHost = "localhost"
	// DefaultDBPort is the Redis port absent --dbport or REDIS_PORT_6379_TCP_PORT.
	DefaultDBPort = 6379
	// DefaultPIDFile matches the Python original's "udns.pid".
	DefaultPIDFile = "udns.pid"
)

// RegisterFlags binds Config's fields to fs, seeding defaults from the
// environment the way the Python original does (REDIS_PORT_6379_TCP_ADDR,
// REDIS_PORT_6379_TCP_PORT, CACHESIZE).
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.Bind, "bind", "b", DefaultBind, "address:port to listen on")
	fs.StringVarP(&cfg.Forward, "forward", "f", DefaultForward, "upstream DNS server (host:port) to forward unresolved queries to")
	fs.IntVar(&cfg.CacheSize, "cachesize", envInt("CACHESIZE", DefaultCacheSize), "maximum number of answer-cache entries")
	fs.StringVar(&cfg.DBHost, "dbhost", envString("REDIS_PORT_6379_TCP_ADDR", DefaultDBHost), "record store (Redis) host")
	fs.IntVar(&cfg.DBPort, "dbport", envInt("REDIS_PORT_6379_TCP_PORT", DefaultDBPort), "record store (Redis) port")
	fs.StringVar(&cfg.LogFile, "logfile", "", "write logs to this file (stderr if empty)")
	fs.StringVar(&cfg.LogSeverity, "log-severity", "info", "log severity: debug, info, warn, error, none")
	fs.StringVar(&cfg.PIDFile, "pidfile", DefaultPIDFile, "file the process id is written to when --daemon is set")
	fs.BoolVarP(&cfg.Daemon, "daemon", "d", false, "write the process id to --pidfile while serving (the process is not detached)")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	fs.StringVar(&cfg.HostsFile, "hosts", "", "path to a hosts-style file of static name-to-address mappings")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
