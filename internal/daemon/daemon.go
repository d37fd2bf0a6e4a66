// Package daemon runs the controller side of cshd: it owns the session
// registry, captures operator input, and replicates it to every session
// over the per-session transports. All state changes funnel through one
// serialized update loop.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/term"

	"cshd/internal/config"
	"cshd/internal/controlmode"
	"cshd/internal/layout"
	"cshd/internal/registry"
	"cshd/internal/router"
	"cshd/internal/runtimepath"
	"cshd/internal/transport"
	"cshd/internal/wire"
	"cshd/internal/x11"
)

// windowResolveTimeout bounds how long we poll for a freshly launched
// terminal to map its window.
const windowResolveTimeout = 10 * time.Second

const disconnectedSuffix = " [disconnected]"

type windowAttach struct {
	sessionID string
	win       *x11.WindowHandle
}

// Defaults carries the CLI-level settings that apply to every session the
// daemon starts, including ones spawned later from the control menu.
type Defaults struct {
	// Username applies to hosts without an explicit user.
	Username string
	// Port applies to hosts without an explicit port. Zero leaves the
	// choice to ssh.
	Port  int
	Debug bool
}

// Daemon is the controller process state. Everything below is owned by
// the update loop in Run; auxiliary goroutines communicate via channels.
type Daemon struct {
	ctx      context.Context
	cfg      *config.Config
	defaults Defaults
	x        *x11.Connection
	reg      *registry.Registry
	router   *router.Router
	interp   *controlmode.Interpreter
	logger   *slog.Logger

	events  chan transport.Event
	windows chan windowAttach
	exits   chan string

	winToSession  map[xproto.Window]string
	controllerWin *x11.WindowHandle
}

// Run drives the daemon until the context is cancelled or every session
// has gone away. Startup failures before the loop kill any sessions that
// were already spawned.
func Run(ctx context.Context, cfg *config.Config, hosts []config.Host, defaults Defaults, logger *slog.Logger) error {
	if len(hosts) == 0 {
		return fmt.Errorf("no hosts to connect to")
	}

	xconn, err := x11.NewConnection()
	if err != nil {
		return fmt.Errorf("connecting to X server: %w", err)
	}
	defer xconn.Close()

	d := &Daemon{
		ctx:          ctx,
		cfg:          cfg,
		defaults:     defaults,
		x:            xconn,
		logger:       logger,
		events:       make(chan transport.Event, 64),
		windows:      make(chan windowAttach, 16),
		exits:        make(chan string, 64),
		winToSession: make(map[xproto.Window]string),
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own binary: %w", err)
	}
	launch := &launcher{
		cfg:    func() *config.Config { return d.cfg },
		exe:    exe,
		debug:  defaults.Debug,
		exits:  d.exits,
		logger: logger,
	}
	listen := func(sessionID string) (registry.Transport, error) {
		socketPath, err := runtimepath.SessionSocketPath(sessionID)
		if err != nil {
			return nil, err
		}
		return transport.Listen(sessionID, socketPath, d.events, logger)
	}
	ui := &console{w: os.Stdout}
	d.reg = registry.New(listen, launch, logger)
	d.interp = controlmode.New(d, ui, logger)
	d.router = router.New(d.reg, d.interp, logger)

	d.placeController()

	// Raw mode so chords and pasted text reach us unmangled.
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		d.reg.Shutdown()
		return fmt.Errorf("putting terminal in raw mode: %w", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)
	fmt.Fprint(os.Stdout, enablePaste)
	defer fmt.Fprint(os.Stdout, disablePaste)

	focusCh, err := xconn.WatchFocus()
	if err != nil {
		logger.Warn("focus watching unavailable, staying in broadcast mode", "error", err)
	}

	inputCh := make(chan *wire.InputEvent, 256)
	go readInput(os.Stdin, inputCh, logger)

	reloadCh, closeWatcher := d.watchConfig()
	defer closeWatcher()

	for _, h := range hosts {
		if err := d.spawnHost(h); err != nil {
			logger.Warn("failed to start session", "host", h.String(), "error", err)
		}
	}
	if d.reg.Len() == 0 {
		d.reg.Shutdown()
		return fmt.Errorf("no session could be started")
	}
	d.retile()
	ui.ShowInstructions()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "sessions", d.reg.Len())
			d.reg.Shutdown()
			return nil

		case ev, ok := <-inputCh:
			if !ok {
				// Controller terminal closed.
				d.reg.Shutdown()
				return nil
			}
			if d.interp.Handle(ev) {
				continue
			}
			d.router.Route(ev)

		case tev := <-d.events:
			d.handleTransportEvent(tev)

		case att := <-d.windows:
			d.attachWindow(att)

		case win := <-focusCh:
			d.handleFocus(win)

		case id := <-d.exits:
			d.handleSessionExit(id)
			if d.reg.Len() == 0 {
				logger.Info("all sessions gone, exiting")
				return nil
			}

		case <-reloadCh:
			d.reloadConfig()
		}
	}
}

// spawnHost creates the session and resolves its window in the
// background. The window handle is delivered back into the update loop.
func (d *Daemon) spawnHost(h config.Host) error {
	s, err := d.reg.Spawn(h)
	if err != nil {
		return err
	}
	go func() {
		win, err := d.x.WaitForWindowByTitle(s.Title, windowResolveTimeout)
		if err != nil {
			d.logger.Warn("session window not found", "session", s.ID, "error", err)
			return
		}
		select {
		case d.windows <- windowAttach{sessionID: s.ID, win: win}:
		case <-d.ctx.Done():
		}
	}()
	return nil
}

func (d *Daemon) attachWindow(att windowAttach) {
	s := d.reg.Get(att.sessionID)
	if s == nil {
		return
	}
	d.reg.AttachWindow(att.sessionID, att.win)
	d.winToSession[att.win.ID()] = att.sessionID
	d.applyTitle(s)
	d.retile()
}

func (d *Daemon) handleTransportEvent(tev transport.Event) {
	s := d.reg.Get(tev.SessionID)
	if s == nil {
		return
	}
	switch tev.Kind {
	case transport.EventConnected:
		d.reg.MarkConnected(tev.SessionID)
	case transport.EventConnectFailed, transport.EventDisconnected:
		d.reg.MarkDisconnected(tev.SessionID)
	}
	d.applyTitle(s)
}

// applyTitle surfaces the session state in its window title.
func (d *Daemon) applyTitle(s *registry.Session) {
	if s.Window == nil {
		return
	}
	title := s.Title
	if s.State == registry.StateDisconnected {
		title += disconnectedSuffix
	}
	if err := s.Window.SetTitle(title); err != nil {
		d.logger.Debug("title update failed", "session", s.ID, "error", err)
	}
}

func (d *Daemon) handleFocus(win xproto.Window) {
	if d.controllerWin != nil && win == d.controllerWin.ID() {
		d.router.SetFocus(router.Focus{})
		return
	}
	if id, ok := d.winToSession[win]; ok {
		d.router.SetFocus(router.Focus{SessionID: id})
	}
	// Focus on an unrelated window changes nothing; input stops
	// arriving on our stdin anyway.
}

func (d *Daemon) handleSessionExit(id string) {
	s := d.reg.Get(id)
	if s == nil {
		return
	}
	if w, ok := s.Window.(*x11.WindowHandle); ok {
		delete(d.winToSession, w.ID())
	}
	d.reg.Remove(id)
	if d.router.Focus().SessionID == id {
		d.router.SetFocus(router.Focus{})
	}
	d.retile()
}

// placeController moves our own terminal into the reserved strip at the
// bottom of the monitor. The active window at startup is us.
func (d *Daemon) placeController() {
	var win xproto.Window
	if active, err := d.x.ActiveWindow(); err == nil && active != 0 {
		win = active
	} else if idStr := os.Getenv("WINDOWID"); idStr != "" {
		if id, err := strconv.ParseUint(idStr, 10, 32); err == nil {
			win = xproto.Window(id)
		}
	}
	if win == 0 {
		d.logger.Warn("cannot identify controller window, leaving it unplaced")
		return
	}
	d.controllerWin = d.x.Window(win)

	strip, err := d.x.ControllerArea(d.cfg.Daemon.Height)
	if err != nil {
		d.logger.Warn("controller placement failed", "error", err)
		return
	}
	if err := d.controllerWin.Place(strip); err != nil {
		d.logger.Warn("controller placement failed", "error", err)
	}
}

// retile recomputes the grid and repositions every session window plus
// the controller strip.
func (d *Daemon) retile() {
	sessions := d.reg.Sessions()

	area, err := d.x.WorkspaceArea(d.cfg.Daemon.Height)
	if err != nil {
		d.logger.Warn("workspace query failed", "error", err)
		return
	}

	placements := layout.Compute(area, len(sessions), d.cfg.Daemon.AspectRatioAdjustment)
	for i, s := range sessions {
		if s.Window == nil {
			continue
		}
		p := placements[i]
		if err := s.Window.MoveResize(p.X, p.Y, p.Width, p.Height); err != nil {
			d.logger.Warn("window placement failed", "session", s.ID, "error", err)
		}
	}

	if d.controllerWin != nil {
		if strip, err := d.x.ControllerArea(d.cfg.Daemon.Height); err == nil {
			d.controllerWin.Place(strip)
		}
	}
}

// watchConfig delivers a signal whenever the config file changes. Editors
// often replace the file, so the directory is watched and events are
// filtered by name.
func (d *Daemon) watchConfig() (<-chan struct{}, func()) {
	noop := func() {}

	configPath, err := config.DefaultConfigPath()
	if err != nil {
		return nil, noop
	}
	clustersPath, _ := config.DefaultClustersPath()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("config watching unavailable", "error", err)
		return nil, noop
	}
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		d.logger.Warn("config watching unavailable", "error", err)
		watcher.Close()
		return nil, noop
	}

	ch := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != configPath && ev.Name != clustersPath {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Debug("config watch error", "error", err)
			}
		}
	}()
	return ch, func() { watcher.Close() }
}

// reloadConfig refreshes tunables from disk. Topology is untouched;
// layout bias, controller height and client-launch settings apply to
// everything that happens next.
func (d *Daemon) reloadConfig() {
	cfg, err := config.Load()
	if err != nil {
		d.logger.Warn("config reload failed, keeping current settings", "error", err)
		return
	}
	d.cfg = cfg
	d.logger.Info("config reloaded",
		"height", cfg.Daemon.Height,
		"aspect_ratio_adjustment", cfg.Daemon.AspectRatioAdjustment)
	d.retile()
}

// Retile recomputes and reapplies the layout.
func (d *Daemon) Retile() error {
	d.retile()
	return nil
}

// ActiveHostnames lists the hostnames of all connected sessions in
// creation order.
func (d *Daemon) ActiveHostnames() []string {
	var hosts []string
	for _, s := range d.reg.Connected() {
		hosts = append(hosts, s.Host.Hostname)
	}
	return hosts
}

// Spawn resolves one host spec (cluster tags and brace ranges included)
// and starts a session per resulting host.
func (d *Daemon) Spawn(spec string) error {
	hosts, err := d.resolveSpec(spec)
	if err != nil {
		return err
	}
	var firstErr error
	for _, h := range hosts {
		if err := d.spawnHost(h); err != nil {
			d.logger.Warn("failed to start session", "host", h.String(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	d.retile()
	return firstErr
}

// resolveSpec expands one host spec with the same user/port defaults the
// daemon was started with.
func (d *Daemon) resolveSpec(spec string) ([]config.Host, error) {
	return config.ResolveHosts([]string{spec}, d.cfg.Clusters, d.defaults.Username, d.defaults.Port)
}

