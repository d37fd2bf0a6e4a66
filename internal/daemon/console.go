package daemon

import (
	"fmt"
	"io"
)

// console renders one status line on the controller terminal. The
// terminal is in raw mode, so lines are repainted in place with carriage
// return and erase-to-end instead of newlines.
type console struct {
	w io.Writer
}

const eraseLine = "\r\x1b[K"

func (c *console) ShowInstructions() {
	fmt.Fprintf(c.w, "%scshd: type to broadcast, Ctrl-A for control mode", eraseLine)
}

func (c *console) ShowMenu() {
	fmt.Fprintf(c.w, "%scontrol: [r] retile  [c] copy hostnames  [n] new windows  [Esc] cancel", eraseLine)
}

func (c *console) ShowPrompt(entered string) {
	fmt.Fprintf(c.w, "%snew hosts: %s", eraseLine, entered)
}
