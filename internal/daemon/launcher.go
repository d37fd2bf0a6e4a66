package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"cshd/internal/config"
	"cshd/internal/registry"
)

// launcher starts one terminal emulator per session. The emulator runs
// this binary's client subcommand, which dials back to the daemon over
// the session socket.
type launcher struct {
	cfg    func() *config.Config
	exe    string
	debug  bool
	exits  chan<- string
	logger *slog.Logger
}

type process struct {
	cmd *exec.Cmd
}

func (p *process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (l *launcher) Launch(s *registry.Session) (registry.Process, error) {
	command := []string{l.exe, "client", "--endpoint", s.Transport.Addr()}
	if l.debug {
		command = append(command, "--debug")
	}
	command = append(command, s.Host.String())

	argv := l.cfg().Client.TerminalCommand(s.Title, command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("no terminal configured")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting terminal %s: %w", argv[0], err)
	}
	l.logger.Debug("session process started", "session", s.ID, "pid", cmd.Process.Pid)

	go func() {
		cmd.Wait()
		l.exits <- s.ID
	}()

	return &process{cmd: cmd}, nil
}
