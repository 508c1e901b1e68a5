// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

const defaultAsyncLogQueueSize = 10000

// Rotation defaults for the single resolver log file.
const (
	defaultRotationSizeMB = 100
	defaultRotationDays   = 7
	defaultMaxBackups     = 3
)

// safeWriter wraps a writer and on write failure falls back to stderr
// without failing the caller.
type safeWriter struct {
	inner io.Writer
}

func (w *safeWriter) Write(p []byte) (n int, err error) {
	n, err = w.inner.Write(p)
	if err != nil {
		_, _ = os.Stderr.Write([]byte("[log write failed, logging to stderr] "))
		_, _ = os.Stderr.Write(p)
		return len(p), nil
	}
	return n, nil
}

// SeverityNone disables logging entirely: no file is created, all output is
// discarded.
const SeverityNone = "none"

func isSeverityNone(severity string) bool {
	return strings.EqualFold(severity, SeverityNone)
}

// levelFromSeverity maps a severity string to slog.Level.
func levelFromSeverity(severity string) slog.Level {
	switch strings.ToLower(severity) {
	case SeverityNone:
		return slog.LevelError + 1000 // effectively nothing passes
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates the resolver's single structured logger. If path is empty,
// output goes to stderr. If severity is "none", logging is fully disabled.
func New(path, severity string) *slog.Logger {
	if isSeverityNone(severity) {
		h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1000})
		return slog.New(h)
	}

	level := levelFromSeverity(severity)

	if path == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "logger: failed to create %s: %v; using stderr\n", dir, err)
			return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		}
	}

	rot := &lj.Logger{
		Filename:   path,
		MaxSize:    defaultRotationSizeMB,
		MaxAge:     defaultRotationDays,
		MaxBackups: defaultMaxBackups,
	}
	w := &safeWriter{inner: rot}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// AsyncLogQueue runs log (and other) callbacks in a single background
// goroutine so the caller never blocks on I/O. Used for the DNS reply path:
// the reply is sent immediately and its Debug/Info logging happens
// asynchronously; error lines are still written synchronously.
type AsyncLogQueue struct {
	ch        chan func()
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAsyncLogQueue creates a queue with the given buffer size and starts the
// worker. If size <= 0, defaultAsyncLogQueueSize is used.
func NewAsyncLogQueue(size int) *AsyncLogQueue {
	if size <= 0 {
		size = defaultAsyncLogQueueSize
	}
	q := &AsyncLogQueue{ch: make(chan func(), size)}
	q.wg.Add(1)
	go q.worker()
	return q
}

func (q *AsyncLogQueue) worker() {
	defer q.wg.Done()
	for f := range q.ch {
		f()
	}
}

// Enqueue adds f to the queue. If the queue is full, f is dropped so the
// caller never blocks.
func (q *AsyncLogQueue) Enqueue(f func()) {
	if q == nil || q.ch == nil {
		return
	}
	select {
	case q.ch <- f:
	default:
	}
}

// Close closes the queue and waits for the worker to drain. Idempotent.
func (q *AsyncLogQueue) Close() {
	if q == nil {
		return
	}
	q.closeOnce.Do(func() {
		close(q.ch)
		q.wg.Wait()
	})
}
