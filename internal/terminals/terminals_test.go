package terminals

import (
	"strings"
	"testing"
)

func TestLookupKnownEmulator(t *testing.T) {
	e, ok := Lookup("xterm")
	if !ok {
		t.Fatal("xterm must be known")
	}
	if e.Program != "xterm" {
		t.Errorf("got program %q", e.Program)
	}
}

func TestLookupUnknownEmulator(t *testing.T) {
	if _, ok := Lookup("definitely-not-a-terminal"); ok {
		t.Error("unknown emulator reported as known")
	}
}

func TestEveryEmulatorSetsTitleAndCommand(t *testing.T) {
	// Window resolution depends on the title; the session depends on the
	// command. An entry missing either is useless.
	for _, e := range known {
		joined := strings.Join(e.Arguments, " ")
		if !strings.Contains(joined, TitlePlaceholder) {
			t.Errorf("%s: no title placeholder in %v", e.Program, e.Arguments)
		}
		if !strings.Contains(joined, CommandPlaceholder) {
			t.Errorf("%s: no command placeholder in %v", e.Program, e.Arguments)
		}
	}
}
