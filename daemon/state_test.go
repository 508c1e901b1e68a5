// Copyright 2024-2026 George (earentir) Pantazis (https://earentir.dev)
// SPDX-License-Identifier: GPL-2.0-only
package daemon

import (
	"testing"
)

func TestNewState(t *testing.T) {
	s := NewState()
	if s == nil {
		t.Fatal("NewState returned nil")
	}
	if s.ServerStatus() {
		t.Error("new state should have ServerStatus false")
	}
	if s.DaemonMode() {
		t.Error("new state should have DaemonMode false")
	}
}

func TestState_ServerStatus(t *testing.T) {
	s := NewState()
	s.SetServerStatus(true)
	if !s.ServerStatus() {
		t.Error("ServerStatus() = false after SetServerStatus(true)")
	}
	s.SetServerStatus(false)
	if s.ServerStatus() {
		t.Error("ServerStatus() = true after SetServerStatus(false)")
	}
}

func TestState_DaemonMode(t *testing.T) {
	s := NewState()
	s.SetDaemonMode(true)
	if !s.DaemonMode() {
		t.Error("DaemonMode() = false after SetDaemonMode(true)")
	}
}

func TestState_SignalStop_NotifyStopped(t *testing.T) {
	s := NewState()
	stopped := s.SignalStop()
	select {
	case <-stopped:
		t.Fatal("StoppedChannel should not be closed until NotifyStopped")
	default:
	}
	s.NotifyStopped()
	select {
	case <-stopped:
	default:
		t.Error("StoppedChannel should be closed after NotifyStopped")
	}
}
