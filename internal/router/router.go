// Package router decides where captured input events go: to every
// connected session, to the one focused session, or nowhere while the
// control-mode interpreter is consuming keystrokes.
package router

import (
	"log/slog"

	"cshd/internal/registry"
	"cshd/internal/wire"
)

// Focus describes which entity currently holds OS input focus. A zero
// Focus means the controller itself (or nothing we track) is focused,
// which routes input to every connected session.
type Focus struct {
	// SessionID is set when one session's window is focused.
	SessionID string
}

// Gate reports whether the control-mode interpreter is consuming input.
type Gate interface {
	Active() bool
}

// Router fans captured input events out to session transports. It is
// driven exclusively by the daemon's capture task; focus updates arrive
// through SetFocus on that same task.
type Router struct {
	reg    *registry.Registry
	gate   Gate
	logger *slog.Logger
	focus  Focus
}

// New creates a router over the given registry, gated by the control-mode
// interpreter.
func New(reg *registry.Registry, gate Gate, logger *slog.Logger) *Router {
	return &Router{reg: reg, gate: gate, logger: logger}
}

// SetFocus records the current focus. Called from the capture task only.
func (r *Router) SetFocus(f Focus) {
	r.focus = f
}

// Focus returns the current focus.
func (r *Router) Focus() Focus {
	return r.focus
}

// Route dispatches one event and returns the number of sessions it was
// sent to. While control mode is active nothing is forwarded. Broadcast
// is not atomic: each transport send is independent and non-blocking, so
// a slow session never delays the others.
func (r *Router) Route(ev *wire.InputEvent) int {
	if r.gate != nil && r.gate.Active() {
		return 0
	}

	if r.focus.SessionID != "" {
		s := r.reg.Get(r.focus.SessionID)
		if s == nil || s.State != registry.StateConnected {
			return 0
		}
		r.send(s, ev)
		return 1
	}

	sessions := r.reg.Connected()
	for _, s := range sessions {
		r.send(s, ev)
	}
	return len(sessions)
}

func (r *Router) send(s *registry.Session, ev *wire.InputEvent) {
	if err := s.Transport.SendInput(ev); err != nil {
		r.logger.Warn("failed to send input", "session", s.ID, "error", err)
	}
}
