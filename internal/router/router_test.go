package router

import (
	"io"
	"log/slog"
	"testing"

	"cshd/internal/config"
	"cshd/internal/registry"
	"cshd/internal/wire"
)

type fakeTransport struct {
	sent []*wire.InputEvent
}

func (f *fakeTransport) Addr() string { return "" }
func (f *fakeTransport) Start()       {}
func (f *fakeTransport) Close()       {}

func (f *fakeTransport) SendInput(ev *wire.InputEvent) error {
	f.sent = append(f.sent, ev)
	return nil
}

type fakeProcess struct{}

func (fakeProcess) Kill() error { return nil }

type fakeLauncher struct{}

func (fakeLauncher) Launch(*registry.Session) (registry.Process, error) {
	return fakeProcess{}, nil
}

type fixedGate bool

func (g fixedGate) Active() bool { return bool(g) }

func keyEvent(code rune) *wire.InputEvent {
	return &wire.InputEvent{Key: &wire.KeyEvent{Code: code, Down: true}}
}

// setup builds a registry with three connected sessions and returns their
// transports in creation order.
func setup(t *testing.T, gate Gate) (*Router, []*fakeTransport, []*registry.Session) {
	t.Helper()

	var transports []*fakeTransport
	listen := func(string) (registry.Transport, error) {
		tr := &fakeTransport{}
		transports = append(transports, tr)
		return tr, nil
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(listen, fakeLauncher{}, logger)

	var sessions []*registry.Session
	for _, name := range []string{"a", "b", "c"} {
		s, err := reg.Spawn(config.Host{Hostname: name})
		if err != nil {
			t.Fatalf("spawn %s: %v", name, err)
		}
		reg.MarkConnected(s.ID)
		sessions = append(sessions, s)
	}

	return New(reg, gate, logger), transports, sessions
}

func TestBroadcastReachesEverySession(t *testing.T) {
	r, transports, _ := setup(t, fixedGate(false))

	if n := r.Route(keyEvent('x')); n != 3 {
		t.Errorf("routed to %d sessions, want 3", n)
	}
	for i, tr := range transports {
		if len(tr.sent) != 1 {
			t.Errorf("transport %d received %d events, want 1", i, len(tr.sent))
		}
	}
}

func TestFocusedRoutingHitsOnlyTarget(t *testing.T) {
	r, transports, sessions := setup(t, fixedGate(false))

	r.SetFocus(Focus{SessionID: sessions[1].ID})
	if n := r.Route(keyEvent('x')); n != 1 {
		t.Errorf("routed to %d sessions, want 1", n)
	}
	for i, tr := range transports {
		want := 0
		if i == 1 {
			want = 1
		}
		if len(tr.sent) != want {
			t.Errorf("transport %d received %d events, want %d", i, len(tr.sent), want)
		}
	}
}

func TestControlModeBlocksRouting(t *testing.T) {
	r, transports, _ := setup(t, fixedGate(true))

	if n := r.Route(keyEvent('x')); n != 0 {
		t.Errorf("routed to %d sessions while control mode active", n)
	}
	for i, tr := range transports {
		if len(tr.sent) != 0 {
			t.Errorf("transport %d received %d events, want 0", i, len(tr.sent))
		}
	}
}

func TestBroadcastSkipsDisconnected(t *testing.T) {
	r, transports, sessions := setup(t, fixedGate(false))

	// Simulating a dropped session: it must stop receiving broadcasts.
	reg := r.reg
	reg.MarkDisconnected(sessions[2].ID)

	if n := r.Route(keyEvent('x')); n != 2 {
		t.Errorf("routed to %d sessions, want 2", n)
	}
	if len(transports[2].sent) != 0 {
		t.Error("disconnected session received input")
	}
}

func TestFocusOnDisconnectedSessionSendsNothing(t *testing.T) {
	r, transports, sessions := setup(t, fixedGate(false))

	r.SetFocus(Focus{SessionID: sessions[0].ID})
	r.reg.MarkDisconnected(sessions[0].ID)

	if n := r.Route(keyEvent('x')); n != 0 {
		t.Errorf("routed to %d sessions, want 0", n)
	}
	if len(transports[0].sent) != 0 {
		t.Error("disconnected focused session received input")
	}
}

func TestPerDestinationOrderingPreserved(t *testing.T) {
	r, transports, _ := setup(t, fixedGate(false))

	r.Route(keyEvent('a'))
	r.Route(keyEvent('b'))
	r.Route(keyEvent('c'))

	for i, tr := range transports {
		if len(tr.sent) != 3 {
			t.Fatalf("transport %d received %d events", i, len(tr.sent))
		}
		for j, want := range []rune{'a', 'b', 'c'} {
			if tr.sent[j].Key.Code != want {
				t.Errorf("transport %d event %d: got %q, want %q", i, j, tr.sent[j].Key.Code, want)
			}
		}
	}
}
