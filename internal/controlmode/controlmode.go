// Package controlmode implements the daemon's administrative command
// interpreter. A reserved chord (Ctrl-A) pulls keystrokes out of the
// normal routing path; the next key selects a command, and the
// create-windows command switches to free-text hostname entry.
package controlmode

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/atotto/clipboard"

	"cshd/internal/wire"
)

// Key codes the interpreter reacts to.
const (
	chordKey     = 0x01 // Ctrl-A
	escapeKey    = 0x1b
	enterCR      = '\r'
	enterLF      = '\n'
	backspace    = 0x7f
	backspaceAlt = 0x08
)

// Phase is the interpreter's current state.
type Phase int

const (
	// PhaseInactive: keystrokes flow to the router untouched.
	PhaseInactive Phase = iota
	// PhaseMenu: the next keystroke selects a command.
	PhaseMenu
	// PhaseHostnameInput: keystrokes accumulate as hostname text.
	PhaseHostnameInput
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseInactive:
		return "inactive"
	case PhaseMenu:
		return "menu"
	case PhaseHostnameInput:
		return "hostname-input"
	default:
		return "unknown"
	}
}

// Commands are the daemon operations the interpreter can invoke. Command
// failures are reported but never retried and never block the state
// transition back to inactive.
type Commands interface {
	// Retile recomputes and reapplies the layout.
	Retile() error
	// ActiveHostnames returns the host identities of all connected
	// sessions, in registry order.
	ActiveHostnames() []string
	// Spawn creates one session for the given host spec.
	Spawn(spec string) error
}

// Display renders interpreter state on the controller console.
type Display interface {
	ShowInstructions()
	ShowMenu()
	ShowPrompt(entered string)
}

// Interpreter is the daemon's single control-mode state machine. It is
// driven only by the capture task; no synchronization is needed.
type Interpreter struct {
	phase     Phase
	buf       []rune
	cmds      Commands
	display   Display
	logger    *slog.Logger
	writeClip func(string) error
}

// New creates an inactive interpreter.
func New(cmds Commands, display Display, logger *slog.Logger) *Interpreter {
	return &Interpreter{
		cmds:      cmds,
		display:   display,
		logger:    logger,
		writeClip: clipboard.WriteAll,
	}
}

// Phase returns the current phase.
func (i *Interpreter) Phase() Phase {
	return i.phase
}

// Active reports whether keystrokes are currently being consumed.
func (i *Interpreter) Active() bool {
	return i.phase != PhaseInactive
}

// Reset returns the interpreter to inactive without running any command.
func (i *Interpreter) Reset() {
	i.phase = PhaseInactive
	i.buf = nil
}

// Handle inspects one captured event. It returns true when the event was
// consumed (including the activation chord itself, which must never be
// forwarded) and false when the event belongs to the normal routing path.
func (i *Interpreter) Handle(ev *wire.InputEvent) bool {
	if ev.Paste != nil {
		// Pastes have no meaning as commands; swallow them while any
		// control state is engaged.
		return i.phase != PhaseInactive
	}
	key := ev.Key
	if key == nil || !key.Down {
		return i.phase != PhaseInactive
	}

	switch i.phase {
	case PhaseInactive:
		if key.Code == chordKey {
			i.phase = PhaseMenu
			i.display.ShowMenu()
			return true
		}
		return false

	case PhaseMenu:
		i.handleMenuKey(key.Code)
		return true

	case PhaseHostnameInput:
		i.handleHostnameKey(key.Code)
		return true
	}
	return false
}

func (i *Interpreter) handleMenuKey(code rune) {
	switch code {
	case escapeKey:
		i.leave()
	case 'r':
		if err := i.cmds.Retile(); err != nil {
			i.logger.Warn("retile failed", "error", err)
		}
		i.leave()
	case 'c':
		i.copyHostnames()
		i.leave()
	case 'n':
		i.phase = PhaseHostnameInput
		i.buf = nil
		i.display.ShowPrompt("")
	default:
		// Not a command; stay in the menu until Esc or a valid key.
	}
}

func (i *Interpreter) handleHostnameKey(code rune) {
	switch code {
	case escapeKey:
		i.leave()
	case enterCR, enterLF:
		specs := strings.Fields(string(i.buf))
		i.leave()
		for _, spec := range specs {
			if err := i.cmds.Spawn(spec); err != nil {
				// One failed spawn must not abort the rest.
				i.logger.Warn("spawn failed", "host", spec, "error", err)
			}
		}
	case backspace, backspaceAlt:
		if len(i.buf) > 0 {
			i.buf = i.buf[:len(i.buf)-1]
		}
		i.display.ShowPrompt(string(i.buf))
	default:
		if unicode.IsPrint(code) {
			i.buf = append(i.buf, code)
			i.display.ShowPrompt(string(i.buf))
		}
	}
}

func (i *Interpreter) copyHostnames() {
	hosts := i.cmds.ActiveHostnames()
	if len(hosts) == 0 {
		return
	}
	if err := i.writeClip(strings.Join(hosts, "\n")); err != nil {
		i.logger.Warn("clipboard write failed", "error", err)
	}
}

func (i *Interpreter) leave() {
	i.phase = PhaseInactive
	i.buf = nil
	i.display.ShowInstructions()
}
