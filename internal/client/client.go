// Package client implements the session replay side of cshd: it runs the
// configured ssh program under a pty, connects back to the daemon over the
// session socket, and replays received input into the ssh console.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"cshd/internal/config"
	"cshd/internal/transport"
	"cshd/internal/wire"
)

// ssh exits with 255 on connection failure. Keep the window around long
// enough for the operator to read the error before it vanishes.
const (
	sshConnectFailure = 255
	inspectionWindow  = 60 * time.Second
)

// Options control a single client run.
type Options struct {
	// Endpoint is the session socket path handed over by the daemon.
	Endpoint string
	// Host is the raw host spec (user@host:port, user and port optional).
	Host string
	// Username overrides ssh_config and $USER when the host spec carries
	// no explicit user.
	Username string
	// Port applies when the host spec carries no explicit port. Zero
	// leaves the choice to ssh.
	Port  int
	Debug bool
}

// Run connects to the daemon, launches ssh under a pty and replays daemon
// input until the ssh process exits or the daemon goes away. The returned
// code is the process exit status to propagate.
func Run(ctx context.Context, opts Options, logger *slog.Logger) int {
	cfg, err := config.Load()
	if err != nil {
		logger.Warn("config load failed, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	host, err := config.ParseHost(opts.Host, opts.Username, opts.Port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid host %q: %v\n", opts.Host, err)
		return 1
	}
	if host.Username == "" {
		host.Username = resolveUsername(host.Hostname, cfg.Client.SSHConfigPath, logger)
	}

	conn, err := transport.Dial(opts.Endpoint, transport.AcceptTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach daemon: %v\n", err)
		return 1
	}
	defer conn.Close()

	argv := cfg.Client.SSHCommand(host)
	logger.Info("launching ssh", "host", host.String(), "command", argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		reportConnect(conn, false, err.Error(), logger)
		fmt.Fprintf(os.Stderr, "failed to start %s: %v\n", argv[0], err)
		return 1
	}
	defer ptmx.Close()

	reportConnect(conn, true, "", logger)

	// Track the surrounding terminal size so ssh sees a real console.
	resize := make(chan os.Signal, 1)
	signal.Notify(resize, unix.SIGWINCH)
	go func() {
		for range resize {
			if err := pty.InheritSize(os.Stdin, ptmx); err != nil {
				logger.Warn("pty resize failed", "error", err)
			}
		}
	}()
	resize <- unix.SIGWINCH
	defer signal.Stop(resize)

	// Raw mode so directly-typed keys in this window pass through unmangled.
	if oldState, err := term.MakeRaw(int(os.Stdin.Fd())); err == nil {
		defer term.Restore(int(os.Stdin.Fd()), oldState)
	}

	go heartbeatLoop(ctx, conn, logger)
	go replayLoop(conn, ptmx, logger)
	go func() {
		// Local typing in the session window goes straight to ssh.
		io.Copy(ptmx, os.Stdin)
	}()
	io.Copy(os.Stdout, ptmx)

	err = cmd.Wait()
	code := cmd.ProcessState.ExitCode()
	if err != nil && code < 0 {
		logger.Error("ssh did not exit cleanly", "error", err)
		return 1
	}
	logger.Info("ssh exited", "host", host.String(), "code", code)

	if code == sshConnectFailure {
		fmt.Fprintf(os.Stderr, "\r\nssh to %s failed (exit %d), closing in %s\r\n",
			host.String(), code, inspectionWindow)
		select {
		case <-ctx.Done():
		case <-time.After(inspectionWindow):
		}
	}
	return code
}

func reportConnect(conn net.Conn, ok bool, reason string, logger *slog.Logger) {
	frame, err := wire.EncodeConnectResult(&wire.ConnectResult{OK: ok, Reason: reason})
	if err == nil {
		err = wire.WriteFrame(conn, frame)
	}
	if err != nil {
		logger.Warn("failed to report connect result", "error", err)
	}
}

// heartbeatLoop tells the daemon this session is alive. The daemon marks
// the session disconnected after missing a few of these.
func heartbeatLoop(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	ticker := time.NewTicker(transport.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wire.WriteFrame(conn, wire.HeartbeatFrame()); err != nil {
				logger.Debug("heartbeat write failed", "error", err)
				return
			}
		}
	}
}

// replayLoop reads input frames from the daemon and writes them into the
// ssh pty. Paste fragments arrive in order, so writing them as they come
// reassembles the original paste.
func replayLoop(conn net.Conn, ptmx io.Writer, logger *slog.Logger) {
	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				logger.Debug("daemon connection lost", "error", err)
			}
			return
		}
		if frame.Tag != wire.TagInput {
			continue
		}
		ev, err := wire.DecodeInput(frame.Payload)
		if err != nil {
			logger.Warn("dropping malformed input frame", "error", err)
			continue
		}
		if err := writeEvent(ptmx, ev); err != nil {
			logger.Warn("pty write failed", "error", err)
			return
		}
	}
}

func writeEvent(ptmx io.Writer, ev *wire.InputEvent) error {
	switch {
	case ev.Key != nil:
		if !ev.Key.Down {
			return nil
		}
		data := ev.Key.Bytes
		if len(data) == 0 && ev.Key.Code != 0 {
			data = []byte(string(ev.Key.Code))
		}
		if len(data) == 0 {
			return nil
		}
		_, err := ptmx.Write(data)
		return err
	case ev.Paste != nil:
		if len(ev.Paste.Data) == 0 {
			return nil
		}
		_, err := ptmx.Write(ev.Paste.Data)
		return err
	}
	return nil
}
