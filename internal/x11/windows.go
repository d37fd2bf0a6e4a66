package x11

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xwindow"

	"cshd/internal/layout"
)

// WindowHandle wraps a single X11 window so callers can position it and
// update its title without holding the connection.
type WindowHandle struct {
	conn *Connection
	id   xproto.Window
}

// ID returns the raw X11 window identifier.
func (w *WindowHandle) ID() xproto.Window {
	return w.id
}

// MoveResize places the window at the given geometry.
func (w *WindowHandle) MoveResize(x, y, width, height int) error {
	return w.conn.MoveResizeWindow(w.id, x, y, width, height)
}

// Place is MoveResize with a Rect.
func (w *WindowHandle) Place(r layout.Rect) error {
	return w.MoveResize(r.X, r.Y, r.Width, r.Height)
}

// SetTitle updates the window title.
func (w *WindowHandle) SetTitle(title string) error {
	if err := ewmh.WmNameSet(w.conn.XUtil, w.id, title); err != nil {
		return fmt.Errorf("setting window title: %w", err)
	}
	return nil
}

// Window wraps a raw window identifier in a WindowHandle.
func (c *Connection) Window(id xproto.Window) *WindowHandle {
	return &WindowHandle{conn: c, id: id}
}

// MoveResizeWindow moves and resizes a window to the specified geometry
func (c *Connection) MoveResizeWindow(windowID xproto.Window, x, y, width, height int) error {
	// Unmaximize first; a maximized window ignores move requests
	c.unmaximizeWindow(windowID)

	win := xwindow.New(c.XUtil, windowID)

	// Use EWMH MoveResize for better WM compatibility
	err := ewmh.MoveresizeWindow(
		c.XUtil,
		windowID,
		x, y, width, height,
	)

	if err != nil {
		// Fallback to direct window manipulation
		win.MoveResize(x, y, width, height)
		return nil
	}

	return nil
}

// unmaximizeWindow removes maximized state from a window
func (c *Connection) unmaximizeWindow(windowID xproto.Window) error {
	states, err := ewmh.WmStateGet(c.XUtil, windowID)
	if err != nil {
		return err
	}

	for _, state := range states {
		if state == "_NET_WM_STATE_MAXIMIZED_HORZ" || state == "_NET_WM_STATE_MAXIMIZED_VERT" {
			ewmh.WmStateReq(c.XUtil, windowID, 0, state)
		}
	}

	return nil
}

// FindWindowByTitle scans the window manager's client list for a window
// whose title matches exactly. Session windows carry unique titles, so a
// match identifies the window unambiguously.
func (c *Connection) FindWindowByTitle(title string) (*WindowHandle, error) {
	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return nil, fmt.Errorf("listing client windows: %w", err)
	}

	for _, windowID := range clients {
		if !c.IsNormalWindow(windowID) {
			continue
		}
		name, err := ewmh.WmNameGet(c.XUtil, windowID)
		if err != nil || name == "" {
			// _NET_WM_NAME may be unset; fall back to WM_NAME
			name, _ = xprops(c, windowID)
		}
		if name == title {
			return &WindowHandle{conn: c, id: windowID}, nil
		}
	}

	return nil, fmt.Errorf("no window titled %q", title)
}

// WaitForWindowByTitle polls for a window with the given title until it
// appears or the deadline passes. Terminal emulators take a moment to map
// their window after launch.
func (c *Connection) WaitForWindowByTitle(title string, timeout time.Duration) (*WindowHandle, error) {
	deadline := time.Now().Add(timeout)
	for {
		if win, err := c.FindWindowByTitle(title); err == nil {
			return win, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("window titled %q did not appear within %s", title, timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// ActiveWindow returns the currently focused window.
func (c *Connection) ActiveWindow() (xproto.Window, error) {
	return ewmh.ActiveWindowGet(c.XUtil)
}

// IsNormalWindow checks if a window is a normal application window
func (c *Connection) IsNormalWindow(windowID xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, windowID)
	if err != nil {
		return true
	}

	for _, t := range types {
		if t == "_NET_WM_WINDOW_TYPE_NORMAL" {
			return true
		}
		if t == "_NET_WM_WINDOW_TYPE_DESKTOP" ||
			t == "_NET_WM_WINDOW_TYPE_DOCK" ||
			t == "_NET_WM_WINDOW_TYPE_SPLASH" ||
			t == "_NET_WM_WINDOW_TYPE_NOTIFICATION" {
			return false
		}
	}

	return len(types) == 0
}

// xprops reads the legacy WM_NAME property for windows that do not set
// the EWMH name.
func xprops(c *Connection, windowID xproto.Window) (string, error) {
	reply, err := xproto.GetProperty(
		c.XUtil.Conn(), false, windowID,
		xproto.AtomWmName, xproto.AtomString, 0, 1024,
	).Reply()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(reply.Value), "\x00"), nil
}
