// Command udns is a caching, forwarding DNS resolver backed by a Redis
// authoritative record store, with zone and record administration built
// into the same binary.
//
// Grounded on the circuits/udns Python original's main()/waitfor()
// (udns/server.py) for the startup sequence (wait for Redis, bind the
// socket, install signal handling) and on folbricht-routedns's
// cmd/routedns/main.go for the github.com/spf13/cobra command structure,
// replacing dnsplane's mow.cli-based main and its REST API/TUI/mDNS
// surfaces, none of which this resolver exposes.
//
// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/circuits/udns/cache"
	"github.com/circuits/udns/config"
	"github.com/circuits/udns/daemon"
	"github.com/circuits/udns/hostsfile"
	"github.com/circuits/udns/logger"
	"github.com/circuits/udns/pending"
	"github.com/circuits/udns/resolver"
	"github.com/circuits/udns/store"
	"github.com/circuits/udns/transport"
)

// version is the resolver's release string.
const version = "0.1.0"

// dbWaitTimeout is how long startup blocks for the record store to become
// reachable before aborting (spec §5), mirroring the Python original's
// waitfor() default.
const dbWaitTimeout = 10 * time.Second

func main() {
	var cfg config.Config

	root := &cobra.Command{
		Use:     "udns",
		Short:   "A caching, forwarding DNS resolver with a Redis record store",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cfg)
		},
	}
	config.RegisterFlags(root.PersistentFlags(), &cfg)

	root.AddCommand(newZoneCommand(&cfg))
	root.AddCommand(newRecordCommand(&cfg))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cfg config.Config) error {
	log := logger.New(cfg.LogFile, severityFor(cfg))

	if cfg.Daemon {
		if err := os.WriteFile(cfg.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("udns: write pidfile %s: %w", cfg.PIDFile, err)
		}
		defer os.Remove(cfg.PIDFile)
	}

	rs := store.Open(store.Options{Host: cfg.DBHost, Port: cfg.DBPort})
	defer rs.Close()

	log.Info("waiting for record store", "host", cfg.DBHost, "port", cfg.DBPort)
	if err := waitForStore(rs, dbWaitTimeout); err != nil {
		return fmt.Errorf("udns: record store unreachable: %w", err)
	}
	log.Info("record store reachable")

	hosts := hostsfile.Empty()
	if cfg.HostsFile != "" {
		loaded, err := hostsfile.Load(cfg.HostsFile)
		if err != nil {
			return fmt.Errorf("udns: load hosts file: %w", err)
		}
		hosts = loaded
	}

	listener, err := transport.Listen(cfg.Bind, log)
	if err != nil {
		return fmt.Errorf("udns: bind %s: %w", cfg.Bind, err)
	}

	state := daemon.NewState()
	state.SetDaemonMode(cfg.Daemon)
	answerCache := cache.New(cfg.CacheSize)
	pendingTable := pending.New()

	logQueue := logger.NewAsyncLogQueue(0)
	defer logQueue.Close()

	r := resolver.New(resolver.Config{
		Cache:        answerCache,
		Hosts:        hosts,
		Store:        rs,
		Pending:      pendingTable,
		Sender:       listener,
		UpstreamAddr: cfg.Forward,
		Logger:       log,
		LogQueue:     logQueue,
	})

	done := state.StopChannel()
	resolver.StartMaintenance(answerCache, pendingTable, done, log)

	serveErr := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		serveErr <- listener.Serve(ctx, r.HandleDatagram)
	}()

	state.SetServerStatus(true)
	log.Info("udns ready", "bind", cfg.Bind, "forward", cfg.Forward)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info("received signal, shutting down", "signal", s.String())
	case err := <-serveErr:
		if err != nil {
			log.Error("listener stopped", "error", err)
		}
	}

	cancel()
	state.SignalStop()
	state.SetServerStatus(false)
	err = listener.Close(5 * time.Second)
	state.NotifyStopped()
	return err
}

// waitForStore blocks until rs.Ping succeeds or timeout elapses, per the
// spec's "block on database reachability up to 10s before aborting".
func waitForStore(rs *store.Store, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		lastErr = rs.Ping(ctx)
		cancel()
		if lastErr == nil {
			return nil
		}
		time.Sleep(time.Second)
	}
	return lastErr
}

func severityFor(cfg config.Config) string {
	switch {
	case cfg.Debug:
		return "debug"
	case cfg.Verbose:
		return "info"
	default:
		return cfg.LogSeverity
	}
}
