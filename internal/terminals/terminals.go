// Package terminals knows how to drive the common terminal emulators:
// which binary to run and how to hand it a window title and a command.
package terminals

import "os/exec"

// Placeholders substituted by the launcher.
const (
	TitlePlaceholder   = "{{TITLE}}"
	CommandPlaceholder = "{{COMMAND}}"
)

// Emulator is one supported terminal emulator.
type Emulator struct {
	Program string
	// Arguments template. TitlePlaceholder expands to the window title,
	// CommandPlaceholder to the command to run inside.
	Arguments []string
}

// known emulators in preference order. Every entry must set the window
// title, since spawned windows are resolved by their unique title.
var known = []Emulator{
	{Program: "xterm", Arguments: []string{"-T", TitlePlaceholder, "-e", CommandPlaceholder}},
	{Program: "alacritty", Arguments: []string{"--title", TitlePlaceholder, "-e", CommandPlaceholder}},
	{Program: "kitty", Arguments: []string{"--title", TitlePlaceholder, CommandPlaceholder}},
	{Program: "foot", Arguments: []string{"-T", TitlePlaceholder, CommandPlaceholder}},
	{Program: "urxvt", Arguments: []string{"-title", TitlePlaceholder, "-e", CommandPlaceholder}},
	{Program: "gnome-terminal", Arguments: []string{"--title", TitlePlaceholder, "--", CommandPlaceholder}},
}

// Lookup returns the emulator entry for a program name.
func Lookup(program string) (Emulator, bool) {
	for _, e := range known {
		if e.Program == program {
			return e, true
		}
	}
	return Emulator{}, false
}

// Detect returns the first known emulator present in PATH. The boolean is
// false when none is installed.
func Detect() (Emulator, bool) {
	for _, e := range known {
		if _, err := exec.LookPath(e.Program); err == nil {
			return e, true
		}
	}
	return Emulator{}, false
}
