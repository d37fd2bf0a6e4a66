package transport

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cshd/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return Event{}
	}
}

func TestConnectLifecycle(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "s.sock")
	events := make(chan Event, 8)

	ep, err := Listen("sess1", sock, events, testLogger())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ep.Close()
	ep.Start()

	conn, err := Dial(sock, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	frame, err := wire.EncodeConnectResult(&wire.ConnectResult{OK: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := wire.WriteFrame(conn, frame); err != nil {
		t.Fatalf("connect result write: %v", err)
	}

	ev := waitEvent(t, events)
	if ev.Kind != EventConnected || ev.SessionID != "sess1" {
		t.Fatalf("got %+v, want EventConnected for sess1", ev)
	}

	// Input flows daemon -> client once established.
	if err := ep.SendInput(&wire.InputEvent{Key: &wire.KeyEvent{Code: 'x', Down: true}}); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	got, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if got.Tag != wire.TagInput {
		t.Fatalf("tag: got %d", got.Tag)
	}
	decoded, err := wire.DecodeInput(got.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Key == nil || decoded.Key.Code != 'x' {
		t.Errorf("got %+v", decoded.Key)
	}
}

func TestConnectFailureIsReported(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "s.sock")
	events := make(chan Event, 8)

	ep, err := Listen("sess1", sock, events, testLogger())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ep.Close()
	ep.Start()

	conn, err := Dial(sock, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	frame, _ := wire.EncodeConnectResult(&wire.ConnectResult{OK: false, Reason: "ssh missing"})
	if err := wire.WriteFrame(conn, frame); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, events)
	if ev.Kind != EventConnectFailed {
		t.Fatalf("got %+v, want EventConnectFailed", ev)
	}
	if ev.Reason != "ssh missing" {
		t.Errorf("reason: got %q", ev.Reason)
	}
}

func TestDisconnectDetected(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "s.sock")
	events := make(chan Event, 8)

	ep, err := Listen("sess1", sock, events, testLogger())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ep.Close()
	ep.Start()

	conn, err := Dial(sock, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	frame, _ := wire.EncodeConnectResult(&wire.ConnectResult{OK: true})
	wire.WriteFrame(conn, frame)
	if ev := waitEvent(t, events); ev.Kind != EventConnected {
		t.Fatalf("got %+v, want EventConnected", ev)
	}

	conn.Close()

	if ev := waitEvent(t, events); ev.Kind != EventDisconnected {
		t.Fatalf("got %+v, want EventDisconnected", ev)
	}
}

func TestCloseRemovesSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "s.sock")
	events := make(chan Event, 8)

	ep, err := Listen("sess1", sock, events, testLogger())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ep.Close()

	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Errorf("socket still present after close: %v", err)
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "s.sock")
	if err := os.WriteFile(sock, nil, 0600); err != nil {
		t.Fatal(err)
	}

	events := make(chan Event, 8)
	ep, err := Listen("sess1", sock, events, testLogger())
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	ep.Close()
}

func TestDialDeadline(t *testing.T) {
	start := time.Now()
	_, err := Dial(filepath.Join(t.TempDir(), "absent.sock"), 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("dial retried far past its deadline: %v", elapsed)
	}
}
