package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"

	"cshd/internal/layout"
)

// Monitor represents a physical display
type Monitor struct {
	ID     int
	Name   string
	X      int
	Y      int
	Width  int
	Height int
}

// Monitors retrieves all active monitors using XRandR
func (c *Connection) Monitors() ([]Monitor, error) {
	if err := randr.Init(c.XUtil.Conn()); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}

	resources, err := randr.GetScreenResources(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var monitors []Monitor

	// Query each CRTC for active monitors
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(c.XUtil.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}

		// Skip disabled CRTCs
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		outputName := fmt.Sprintf("Monitor%d", i)
		if outputInfo, err := randr.GetOutputInfo(c.XUtil.Conn(), crtcInfo.Outputs[0], resources.ConfigTimestamp).Reply(); err == nil {
			outputName = string(outputInfo.Name)
		}

		monitors = append(monitors, Monitor{
			ID:     i,
			Name:   outputName,
			X:      int(crtcInfo.X),
			Y:      int(crtcInfo.Y),
			Width:  int(crtcInfo.Width),
			Height: int(crtcInfo.Height),
		})
	}

	if len(monitors) == 0 {
		return nil, fmt.Errorf("no monitors found")
	}
	return monitors, nil
}

// ActiveMonitor returns the monitor under the mouse cursor, falling back to
// the first monitor. The geometry is adjusted to respect the work area so
// panels and docks are not covered by session windows.
func (c *Connection) ActiveMonitor() (*Monitor, error) {
	monitors, err := c.Monitors()
	if err != nil {
		return nil, err
	}

	var active *Monitor
	if pointer, err := xproto.QueryPointer(c.XUtil.Conn(), c.Root).Reply(); err == nil {
		px, py := int(pointer.RootX), int(pointer.RootY)
		for i := range monitors {
			mon := &monitors[i]
			if px >= mon.X && px < mon.X+mon.Width && py >= mon.Y && py < mon.Y+mon.Height {
				active = mon
				break
			}
		}
	}
	if active == nil {
		active = &monitors[0]
	}

	// Adjust monitor geometry to respect work area (excludes panels, docks, etc.)
	workArea, err := ewmh.WorkareaGet(c.XUtil)
	if err == nil && len(workArea) > 0 {
		desktopIndex := 0
		if currentDesktop, err := ewmh.CurrentDesktopGet(c.XUtil); err == nil {
			if int(currentDesktop) >= 0 && int(currentDesktop) < len(workArea) {
				desktopIndex = int(currentDesktop)
			}
		}

		wa := workArea[desktopIndex]

		// Intersection of monitor and work area
		x1 := max(active.X, int(wa.X))
		y1 := max(active.Y, int(wa.Y))
		x2 := min(active.X+active.Width, int(wa.X)+int(wa.Width))
		y2 := min(active.Y+active.Height, int(wa.Y)+int(wa.Height))

		if x2 > x1 && y2 > y1 {
			active.X = x1
			active.Y = y1
			active.Width = x2 - x1
			active.Height = y2 - y1
		}
	}

	return active, nil
}

// WorkspaceArea returns the region of the active monitor available for
// session windows. A strip of controllerHeight pixels is reserved at the
// bottom for the controller console.
func (c *Connection) WorkspaceArea(controllerHeight int) (layout.WorkspaceArea, error) {
	monitor, err := c.ActiveMonitor()
	if err != nil {
		return layout.WorkspaceArea{}, err
	}

	area := layout.WorkspaceArea{
		X:      monitor.X,
		Y:      monitor.Y,
		Width:  monitor.Width,
		Height: monitor.Height,
	}
	if controllerHeight > 0 && controllerHeight < area.Height {
		area.Height -= controllerHeight
	}
	return area, nil
}

// ControllerArea returns the strip at the bottom of the active monitor
// where the controller console is placed.
func (c *Connection) ControllerArea(controllerHeight int) (layout.Rect, error) {
	monitor, err := c.ActiveMonitor()
	if err != nil {
		return layout.Rect{}, err
	}
	if controllerHeight <= 0 || controllerHeight >= monitor.Height {
		controllerHeight = monitor.Height / 4
	}
	return layout.Rect{
		X:      monitor.X,
		Y:      monitor.Y + monitor.Height - controllerHeight,
		Width:  monitor.Width,
		Height: controllerHeight,
	}, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
