package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cshd/internal/client"
	"cshd/internal/config"
	"cshd/internal/daemon"
	"cshd/internal/runtimepath"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "client":
		os.Exit(runClient(os.Args[2:]))
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		// Bare host arguments start the daemon directly.
		os.Exit(runDaemon(os.Args[1:]))
	}
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	username := fs.String("u", "", "login user for hosts without an explicit one")
	port := fs.Int("p", 0, "ssh port for hosts without an explicit one")
	debug := fs.Bool("debug", false, "write debug logs under the runtime dir")
	fs.Usage = func() { printMainUsage(os.Stderr) }
	fs.Parse(args)

	specs := fs.Args()
	if len(specs) == 0 {
		fmt.Fprintln(os.Stderr, "no hosts given")
		fmt.Fprintln(os.Stderr, "")
		printMainUsage(os.Stderr)
		return 2
	}

	logger := newLogger("daemon", *debug)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cshd: %v\n", err)
		return 1
	}

	hosts, err := config.ResolveHosts(specs, cfg.Clusters, *username, *port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cshd: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx, cfg, hosts, daemon.Defaults{Username: *username, Port: *port, Debug: *debug}, logger); err != nil {
		fmt.Fprintf(os.Stderr, "cshd: %v\n", err)
		return 1
	}
	return 0
}

func runClient(args []string) int {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	endpoint := fs.String("endpoint", "", "session socket path handed over by the daemon")
	username := fs.String("u", "", "login user when the host spec has none")
	port := fs.Int("p", 0, "ssh port when the host spec has none")
	debug := fs.Bool("debug", false, "write debug logs under the runtime dir")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: cshd client --endpoint PATH [-u USER] [-p PORT] HOST")
	}
	fs.Parse(args)

	if *endpoint == "" || fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	logger := newLogger("client", *debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return client.Run(ctx, client.Options{
		Endpoint: *endpoint,
		Host:     fs.Arg(0),
		Username: *username,
		Port:     *port,
		Debug:    *debug,
	}, logger)
}

// newLogger routes logs away from the interactive terminal. With --debug
// everything goes to a per-process file; otherwise only warnings reach
// stderr.
func newLogger(role string, debug bool) *slog.Logger {
	if debug {
		if path, err := runtimepath.LogPath(fmt.Sprintf("%s-%d", role, os.Getpid())); err == nil {
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
				return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
			}
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "cshd - drive many ssh sessions from one keyboard")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cshd [flags] HOST...          start the controller with one session per host")
	fmt.Fprintln(w, "  cshd daemon [flags] HOST...   same, explicit form")
	fmt.Fprintln(w, "  cshd client --endpoint PATH HOST")
	fmt.Fprintln(w, "                                internal: one session window (started by the daemon)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Hosts may be user@host:port specs, cluster names from the config,")
	fmt.Fprintln(w, "or brace ranges like node{1..8}.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -u USER    login user for hosts without an explicit one")
	fmt.Fprintln(w, "  -p PORT    ssh port for hosts without an explicit one (default: ssh decides)")
	fmt.Fprintln(w, "  -debug     write debug logs under the runtime dir")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "While running, press Ctrl-A for the control menu (retile, copy")
	fmt.Fprintln(w, "hostnames, open new windows).")
}
