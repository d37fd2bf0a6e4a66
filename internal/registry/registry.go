// Package registry owns the authoritative set of sessions: one remote-host
// connection, its window and its transport as a single lifecycle unit.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"cshd/internal/config"
	"cshd/internal/wire"
)

// State is a session's lifecycle state.
type State int

const (
	// StateLaunching: process spawned, transport not yet connected.
	StateLaunching State = iota
	// StateConnected: client connected and reported a successful launch.
	StateConnected
	// StateDisconnected: the transport timed out or went away. The
	// session is kept, window and all, until the operator removes it;
	// a failed connection must stay inspectable rather than silently
	// vanish.
	StateDisconnected
)

// String returns the state name as shown in window titles and logs.
func (s State) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Transport is the daemon-side endpoint of one session's channel.
type Transport interface {
	Addr() string
	Start()
	SendInput(ev *wire.InputEvent) error
	Close()
}

// Window is the narrow capability surface over one session's OS window.
type Window interface {
	MoveResize(x, y, width, height int) error
	SetTitle(title string) error
}

// Process is the handle to the spawned session process.
type Process interface {
	Kill() error
}

// Session is one tracked session window.
type Session struct {
	ID        string
	Host      config.Host
	State     State
	Transport Transport
	Window    Window
	Process   Process
	// Title is the unique window title the launcher sets, used to
	// resolve the OS window handle after spawn.
	Title string
}

// Launcher spawns the external process hosting one session. The endpoint
// address to connect back to is available via s.Transport.Addr().
type Launcher interface {
	Launch(s *Session) (Process, error)
}

// ListenFunc creates the transport listening endpoint for a session id.
// The endpoint must exist before the process starts so the child can
// never connect before the daemon is listening.
type ListenFunc func(sessionID string) (Transport, error)

// Registry tracks sessions in creation order. All mutation happens on the
// daemon's serialized update path; the mutex only guards read access from
// auxiliary goroutines.
type Registry struct {
	mu       sync.Mutex
	sessions []*Session
	byID     map[string]*Session

	listen   ListenFunc
	launcher Launcher
	logger   *slog.Logger
}

// New creates an empty registry.
func New(listen ListenFunc, launcher Launcher, logger *slog.Logger) *Registry {
	return &Registry{
		byID:     make(map[string]*Session),
		listen:   listen,
		launcher: launcher,
		logger:   logger,
	}
}

// Spawn allocates a session for host, creates its transport endpoint,
// launches its process and inserts it in Launching state. The transport
// accept flow starts only after a successful launch.
func (r *Registry) Spawn(host config.Host) (*Session, error) {
	id := uuid.NewString()

	tr, err := r.listen(id)
	if err != nil {
		return nil, fmt.Errorf("failed to create endpoint for %s: %w", host, err)
	}

	s := &Session{
		ID:        id,
		Host:      host,
		State:     StateLaunching,
		Transport: tr,
		Title:     fmt.Sprintf("cshd %s (%s)", host, id[:8]),
	}

	proc, err := r.launcher.Launch(s)
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("failed to launch session for %s: %w", host, err)
	}
	s.Process = proc
	tr.Start()

	r.mu.Lock()
	r.sessions = append(r.sessions, s)
	r.byID[id] = s
	r.mu.Unlock()

	r.logger.Info("session spawned", "session", id, "host", host.String())
	return s, nil
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

// MarkConnected transitions the session to Connected.
func (r *Registry) MarkConnected(id string) {
	r.setState(id, StateConnected)
}

// MarkDisconnected transitions the session to Disconnected. The session
// stays in the registry until explicitly removed.
func (r *Registry) MarkDisconnected(id string) {
	r.setState(id, StateDisconnected)
}

func (r *Registry) setState(id string, state State) {
	r.mu.Lock()
	s := r.byID[id]
	if s != nil {
		s.State = state
	}
	r.mu.Unlock()
	if s == nil {
		return
	}
	r.logger.Info("session state changed", "session", id, "host", s.Host.String(), "state", state.String())
}

// AttachWindow records the resolved OS window handle for a session.
func (r *Registry) AttachWindow(id string, win Window) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.byID[id]; s != nil {
		s.Window = win
	}
}

// Remove releases the session's transport endpoint and process (which
// closes its OS window) and drops it from the registry. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s := r.byID[id]
	if s == nil {
		r.mu.Unlock()
		return
	}
	delete(r.byID, id)
	for i, candidate := range r.sessions {
		if candidate.ID == id {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	s.Transport.Close()
	if s.Process != nil {
		if err := s.Process.Kill(); err != nil {
			r.logger.Debug("failed to kill session process", "session", id, "error", err)
		}
	}
	r.logger.Info("session removed", "session", id, "host", s.Host.String())
}

// Sessions returns all sessions in creation order.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Connected returns the Connected sessions in creation order.
func (r *Registry) Connected() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.State == StateConnected {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown removes every session.
func (r *Registry) Shutdown() {
	for _, s := range r.Sessions() {
		r.Remove(s.ID)
	}
}
