package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
)

// WatchFocus reports the active window each time the window manager changes
// it. The X event loop runs on its own goroutine and keeps delivering
// updates on the returned channel until the connection is closed. Updates
// are dropped rather than blocking the event loop if the consumer falls
// behind.
func (c *Connection) WatchFocus() (<-chan xproto.Window, error) {
	activeAtom, err := xprop.Atm(c.XUtil, "_NET_ACTIVE_WINDOW")
	if err != nil {
		return nil, fmt.Errorf("interning _NET_ACTIVE_WINDOW: %w", err)
	}

	root := xwindow.New(c.XUtil, c.Root)
	if err := root.Listen(xproto.EventMaskPropertyChange); err != nil {
		return nil, fmt.Errorf("listening for property changes: %w", err)
	}

	updates := make(chan xproto.Window, 16)

	xevent.PropertyNotifyFun(func(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
		if ev.Atom != activeAtom {
			return
		}
		win, err := ewmh.ActiveWindowGet(xu)
		if err != nil {
			return
		}
		select {
		case updates <- win:
		default:
		}
	}).Connect(c.XUtil, c.Root)

	go xevent.Main(c.XUtil)

	return updates, nil
}
