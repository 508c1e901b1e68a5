package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

func TestListenAndRoundTrip(t *testing.T) {
	l, err := Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	var mu sync.Mutex
	received := make([][]byte, 0, 1)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.Serve(ctx, func(_ context.Context, from net.Addr, payload []byte) {
			mu.Lock()
			received = append(received, payload)
			mu.Unlock()
			_ = l.Send(from, payload)
		})
	}()

	client, err := net.Dial("udp", l.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	msg := []byte("ping")
	if _, err := client.Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, MaxMessageSize)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("Read echo: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("expected echo of ping, got %q", buf[:n])
	}

	cancel()
	if err := l.Close(2 * time.Second); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 received datagram, got %d", len(received))
	}
}
