// Package transport implements the per-session channel between the daemon
// and a client process: a unix stream socket carrying length-prefixed
// frames. The daemon listens before the client process is spawned so the
// client can never connect into the void.
package transport

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"cshd/internal/wire"
)

const (
	// AcceptTimeout bounds the wait for the spawned client to connect.
	// The client has to be started by a terminal emulator first, so the
	// window is generous. There is no retry after it expires.
	AcceptTimeout = 10 * time.Second
	// HeartbeatInterval is how often clients send heartbeat frames.
	HeartbeatInterval = 1 * time.Second
	// HeartbeatTimeout is how long the daemon tolerates silence before
	// presuming the client process has exited without an orderly close.
	HeartbeatTimeout = 3 * time.Second

	sendQueueSize = 1024
)

// EventKind classifies a session lifecycle change observed on the wire.
type EventKind int

const (
	// EventConnected: client connected and reported a successful launch.
	EventConnected EventKind = iota
	// EventConnectFailed: accept timed out, or the client reported a
	// failed launch.
	EventConnectFailed
	// EventDisconnected: an established connection went away.
	EventDisconnected
)

// Event is delivered to the daemon's single serialized update path; the
// accept and heartbeat goroutines never touch session state directly.
type Event struct {
	SessionID string
	Kind      EventKind
	Reason    string
}

// Endpoint is the daemon-side end of one session's channel.
type Endpoint struct {
	sessionID string
	addr      string
	listener  net.Listener
	events    chan<- Event
	logger    *slog.Logger

	sendCh chan wire.Frame

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// Listen creates the listening endpoint for one session. Lifecycle events
// are delivered on events; the channel is shared by all endpoints and
// drained by the daemon loop.
func Listen(sessionID, socketPath string, events chan<- Event, logger *slog.Logger) (*Endpoint, error) {
	// Remove a stale socket left behind by a crashed daemon.
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create session socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return &Endpoint{
		sessionID: sessionID,
		addr:      socketPath,
		listener:  listener,
		events:    events,
		logger:    logger,
		sendCh:    make(chan wire.Frame, sendQueueSize),
	}, nil
}

// Addr returns the socket path passed to the client as a launch argument.
func (e *Endpoint) Addr() string {
	return e.addr
}

// Start runs the accept flow in the background: wait for the client with a
// bounded timeout, read its ConnectResult, then serve the send queue and
// watch heartbeats until the connection dies or the endpoint is closed.
func (e *Endpoint) Start() {
	go e.run()
}

func (e *Endpoint) run() {
	type deadliner interface {
		SetDeadline(time.Time) error
	}
	if l, ok := e.listener.(deadliner); ok {
		l.SetDeadline(time.Now().Add(AcceptTimeout))
	}

	conn, err := e.listener.Accept()
	if err != nil {
		if !e.isClosed() {
			e.logger.Warn("session accept failed", "session", e.sessionID, "error", err)
			e.emit(EventConnectFailed, "connect timeout")
		}
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		conn.Close()
		return
	}
	e.conn = conn
	e.mu.Unlock()

	// The client sends exactly one ConnectResult before any other traffic.
	conn.SetReadDeadline(time.Now().Add(AcceptTimeout))
	frame, err := wire.ReadFrame(conn)
	if err != nil || frame.Tag != wire.TagConnectResult {
		e.logger.Warn("session sent no connect result", "session", e.sessionID, "error", err)
		e.emit(EventConnectFailed, "no connect result")
		e.Close()
		return
	}
	result, err := wire.DecodeConnectResult(frame.Payload)
	if err != nil {
		e.emit(EventConnectFailed, "bad connect result")
		e.Close()
		return
	}
	if !result.OK {
		e.emit(EventConnectFailed, result.Reason)
		e.Close()
		return
	}

	e.emit(EventConnected, "")

	go e.writeLoop(conn)
	e.readLoop(conn)
}

// writeLoop drains the send queue into the connection. It owns the write
// side exclusively so frame order matches queue order.
func (e *Endpoint) writeLoop(conn net.Conn) {
	for frame := range e.sendCh {
		if err := wire.WriteFrame(conn, frame); err != nil {
			if !e.isClosed() {
				e.logger.Debug("session write failed", "session", e.sessionID, "error", err)
			}
			return
		}
	}
}

// readLoop consumes heartbeats. A heartbeat gap or read error means the
// client process is gone.
func (e *Endpoint) readLoop(conn net.Conn) {
	for {
		conn.SetReadDeadline(time.Now().Add(HeartbeatTimeout))
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			if !e.isClosed() {
				e.emit(EventDisconnected, "heartbeat lost")
				e.Close()
			}
			return
		}
		if frame.Tag != wire.TagHeartbeat {
			e.logger.Debug("unexpected frame from session", "session", e.sessionID, "tag", int(frame.Tag))
		}
	}
}

// Send queues a frame for delivery. It never blocks the caller: a full
// queue (a stalled client) drops the frame with a warning rather than
// holding up delivery to other sessions.
func (e *Endpoint) Send(frame wire.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.sendCh <- frame:
	default:
		e.logger.Warn("send queue full, dropping frame", "session", e.sessionID)
	}
}

// SendInput encodes and queues one input event.
func (e *Endpoint) SendInput(ev *wire.InputEvent) error {
	frame, err := wire.EncodeInput(ev)
	if err != nil {
		return err
	}
	e.Send(frame)
	return nil
}

// Close releases the listener, the connection and the socket file.
// Idempotent; outstanding accept/read/write operations are cancelled by
// the underlying closes.
func (e *Endpoint) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	conn := e.conn
	e.mu.Unlock()

	close(e.sendCh)
	e.listener.Close()
	if conn != nil {
		conn.Close()
	}
	os.Remove(e.addr)
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Endpoint) emit(kind EventKind, reason string) {
	e.events <- Event{SessionID: e.sessionID, Kind: kind, Reason: reason}
}
