package daemon

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"cshd/internal/wire"
)

func collectInput(t *testing.T, input string) []*wire.InputEvent {
	t.Helper()

	events := make(chan *wire.InputEvent, 64)
	go readInput(strings.NewReader(input), events, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var out []*wire.InputEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestReadInputKeys(t *testing.T) {
	events := collectInput(t, "ab\r")

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []rune{'a', 'b', '\r'} {
		key := events[i].Key
		if key == nil || key.Code != want || !key.Down {
			t.Errorf("event %d: got %+v, want key %q down", i, key, want)
		}
	}
}

func TestReadInputBracketedPaste(t *testing.T) {
	events := collectInput(t, "\x1b[200~hello world\x1b[201~")

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	paste := events[0].Paste
	if paste == nil || !paste.Final {
		t.Fatalf("got %+v, want final paste", events[0])
	}
	if string(paste.Data) != "hello world" {
		t.Errorf("paste data: got %q", paste.Data)
	}
}

func TestReadInputMixedKeysAndPaste(t *testing.T) {
	events := collectInput(t, "x\x1b[200~data\x1b[201~y")

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Key == nil || events[0].Key.Code != 'x' {
		t.Errorf("event 0: %+v", events[0])
	}
	if events[1].Paste == nil || string(events[1].Paste.Data) != "data" {
		t.Errorf("event 1: %+v", events[1])
	}
	if events[2].Key == nil || events[2].Key.Code != 'y' {
		t.Errorf("event 2: %+v", events[2])
	}
}

func TestReadInputLargePasteIsChunked(t *testing.T) {
	payload := strings.Repeat("q", wire.PasteFragmentSize+10)
	events := collectInput(t, "\x1b[200~"+payload+"\x1b[201~")

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Paste.Final {
		t.Error("first fragment marked final")
	}
	if !events[1].Paste.Final {
		t.Error("last fragment not marked final")
	}

	var data []byte
	for _, ev := range events {
		data = append(data, ev.Paste.Data...)
	}
	if !bytes.Equal(data, []byte(payload)) {
		t.Error("reassembled paste differs from input")
	}
}

func TestReadInputLoneEscapeIsKey(t *testing.T) {
	events := collectInput(t, "\x1b")

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Key == nil || events[0].Key.Code != 0x1b {
		t.Errorf("got %+v, want escape key", events[0])
	}
}

// An escape with no follow-up bytes in sight must come through right
// away, not sit in the decoder until the operator types four more keys.
func TestReadInputLoneEscapeIsPrompt(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	events := make(chan *wire.InputEvent, 64)
	go readInput(pr, events, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := pw.Write([]byte{0x1b}); err != nil {
		t.Fatal(err)
	}
	ev := waitInput(t, events)
	if ev.Key == nil || ev.Key.Code != 0x1b {
		t.Fatalf("got %+v, want escape key", ev)
	}

	if _, err := pw.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	ev = waitInput(t, events)
	if ev.Key == nil || ev.Key.Code != 'x' {
		t.Fatalf("got %+v, want x key", ev)
	}
}

func waitInput(t *testing.T, events <-chan *wire.InputEvent) *wire.InputEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no input event delivered")
		return nil
	}
}
