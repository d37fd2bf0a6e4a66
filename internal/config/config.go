package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cshd/internal/terminals"
)

// DefaultUsernameHostPlaceholder is substituted with <user>@<host> in the
// configured SSH argument list.
const DefaultUsernameHostPlaceholder = "{{USERNAME_AT_HOST}}"

// Placeholders understood in the terminal argument list.
const (
	TitlePlaceholder   = "{{TITLE}}"
	CommandPlaceholder = "{{COMMAND}}"
)

// Cluster is a named alias for a list of host specs. A cluster's hosts may
// themselves be cluster tags.
type Cluster struct {
	Name  string   `toml:"name" yaml:"name"`
	Hosts []string `toml:"hosts" yaml:"hosts"`
}

// ClientConfig configures the per-session client process.
type ClientConfig struct {
	// SSHConfigPath is the OpenSSH client config consulted for usernames.
	SSHConfigPath string `toml:"ssh_config_path"`
	// Program establishes the remote connection, e.g. "ssh".
	Program string `toml:"program"`
	// Arguments passed to Program. Must contain UsernameHostPlaceholder.
	Arguments []string `toml:"arguments"`
	// UsernameHostPlaceholder marks where <user>@<host> is injected.
	UsernameHostPlaceholder string `toml:"username_host_placeholder"`
	// Terminal is the emulator that hosts each client window.
	Terminal string `toml:"terminal"`
	// TerminalArguments are passed to Terminal. TitlePlaceholder expands
	// to the window title; CommandPlaceholder expands in place to the
	// client command line.
	TerminalArguments []string `toml:"terminal_arguments"`
}

// DaemonConfig configures the daemon console and the tiling pass.
type DaemonConfig struct {
	// Height in pixels of the strip reserved for the daemon console at
	// the bottom of the workspace.
	Height int `toml:"height"`
	// AspectRatioAdjustment steers the client window shape:
	// > 0 aims for tall, narrow windows (eventually all columns),
	// = 0 aims for square windows,
	// < 0 aims for wide, short windows (eventually all rows).
	AspectRatioAdjustment float64 `toml:"aspect_ratio_adjustment"`
}

// Config is the effective project configuration.
type Config struct {
	Clusters []Cluster    `toml:"clusters"`
	Client   ClientConfig `toml:"client"`
	Daemon   DaemonConfig `toml:"daemon"`
}

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	term, ok := terminals.Detect()
	if !ok {
		// Nothing installed; keep a sensible entry for the operator to fix.
		term, _ = terminals.Lookup("xterm")
	}

	return &Config{
		Client: ClientConfig{
			SSHConfigPath:           filepath.Join(home, ".ssh", "config"),
			Program:                 "ssh",
			Arguments:               []string{"-XY", DefaultUsernameHostPlaceholder},
			UsernameHostPlaceholder: DefaultUsernameHostPlaceholder,
			Terminal:                term.Program,
			TerminalArguments:       term.Arguments,
		},
		Daemon: DaemonConfig{
			Height:                200,
			AspectRatioAdjustment: -1.0,
		},
	}
}

// SSHCommand builds the argv for the session process. The placeholder is
// replaced with the host's user@host destination; an explicit port is
// injected as a -p argument right before it, since ssh does not accept
// host:port destinations.
func (c *ClientConfig) SSHCommand(h Host) []string {
	argv := make([]string, 0, len(c.Arguments)+3)
	argv = append(argv, c.Program)
	for _, arg := range c.Arguments {
		if h.Port != 0 && strings.Contains(arg, c.UsernameHostPlaceholder) {
			argv = append(argv, "-p", strconv.Itoa(h.Port))
		}
		argv = append(argv, strings.ReplaceAll(arg, c.UsernameHostPlaceholder, h.Destination()))
	}
	return argv
}

// TerminalCommand builds the argv launching a terminal emulator that runs
// command with the given window title.
func (c *ClientConfig) TerminalCommand(title string, command []string) []string {
	argv := []string{c.Terminal}
	for _, arg := range c.TerminalArguments {
		if arg == CommandPlaceholder {
			argv = append(argv, command...)
			continue
		}
		argv = append(argv, strings.ReplaceAll(arg, TitlePlaceholder, title))
	}
	return argv
}

// Validate checks invariants that would otherwise surface as confusing
// launch failures.
func (c *Config) Validate() error {
	if c.Client.Program == "" {
		return fmt.Errorf("client.program must not be empty")
	}
	found := false
	for _, arg := range c.Client.Arguments {
		if strings.Contains(arg, c.Client.UsernameHostPlaceholder) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("client.arguments must contain the placeholder %q", c.Client.UsernameHostPlaceholder)
	}
	if c.Daemon.Height <= 0 {
		return fmt.Errorf("daemon.height must be positive, got %d", c.Daemon.Height)
	}
	for _, cluster := range c.Clusters {
		if cluster.Name == "" {
			return fmt.Errorf("cluster with empty name")
		}
	}
	return nil
}
