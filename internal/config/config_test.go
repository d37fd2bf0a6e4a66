package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Client.Program != "ssh" {
		t.Errorf("program: got %q", cfg.Client.Program)
	}
	if cfg.Daemon.Height != 200 {
		t.Errorf("height: got %d", cfg.Daemon.Height)
	}
	if cfg.Daemon.AspectRatioAdjustment != -1.0 {
		t.Errorf("aspect_ratio_adjustment: got %v", cfg.Daemon.AspectRatioAdjustment)
	}
}

func TestSSHCommandSubstitutesPlaceholder(t *testing.T) {
	cfg := DefaultConfig()
	argv := cfg.Client.SSHCommand(Host{Username: "alice", Hostname: "web1"})

	want := []string{"ssh", "-XY", "alice@web1"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("got %v, want %v", argv, want)
	}
}

func TestSSHCommandPortBecomesFlag(t *testing.T) {
	cfg := DefaultConfig()
	argv := cfg.Client.SSHCommand(Host{Username: "alice", Hostname: "web1", Port: 2222})

	// ssh rejects host:port destinations, so the port must travel as -p.
	want := []string{"ssh", "-XY", "-p", "2222", "alice@web1"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("got %v, want %v", argv, want)
	}
}

func TestSSHCommandBareHostStaysBare(t *testing.T) {
	hosts, err := ResolveHosts([]string{"web1"}, nil, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hosts) != 1 {
		t.Fatalf("got %d hosts, want 1", len(hosts))
	}

	cfg := DefaultConfig()
	argv := cfg.Client.SSHCommand(hosts[0])

	want := []string{"ssh", "-XY", "web1"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("got %v, want %v", argv, want)
	}
}

func TestTerminalCommandSplicesClientCommand(t *testing.T) {
	client := ClientConfig{
		Terminal:          "xterm",
		TerminalArguments: []string{"-T", TitlePlaceholder, "-e", CommandPlaceholder},
	}
	argv := client.TerminalCommand("cshd web1", []string{"/usr/bin/cshd", "client", "web1"})

	want := []string{"xterm", "-T", "cshd web1", "-e", "/usr/bin/cshd", "client", "web1"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("got %v, want %v", argv, want)
	}
}

func TestValidateRejectsMissingPlaceholder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Client.Arguments = []string{"-XY"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for arguments without placeholder")
	}
}

func TestValidateRejectsBadHeight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Daemon.Height = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero height")
	}
}

func TestRawEffectiveAppliesOverrides(t *testing.T) {
	program := "mosh"
	height := 150
	raw := RawConfig{
		Client: &RawClientConfig{Program: &program},
		Daemon: &RawDaemonConfig{Height: &height},
	}

	cfg := raw.Effective()
	if cfg.Client.Program != "mosh" {
		t.Errorf("program override lost: %q", cfg.Client.Program)
	}
	if cfg.Daemon.Height != 150 {
		t.Errorf("height override lost: %d", cfg.Daemon.Height)
	}
	// Untouched fields keep their defaults.
	if cfg.Client.Terminal != DefaultConfig().Client.Terminal {
		t.Errorf("terminal default lost: %q", cfg.Client.Terminal)
	}
	if cfg.Daemon.AspectRatioAdjustment != -1.0 {
		t.Errorf("adjustment default lost: %v", cfg.Daemon.AspectRatioAdjustment)
	}
}

func TestLoadFromPathWritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Client.Program != "ssh" {
		t.Errorf("expected defaults, got program %q", cfg.Client.Program)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("defaults were not persisted: %v", err)
	}
}

func TestLoadFromPathRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig()
	cfg.Clusters = []Cluster{{Name: "web", Hosts: []string{"web1", "web2"}}}
	cfg.Daemon.AspectRatioAdjustment = 0.5
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if !reflect.DeepEqual(loaded.Clusters, cfg.Clusters) {
		t.Errorf("clusters: got %+v, want %+v", loaded.Clusters, cfg.Clusters)
	}
	if loaded.Daemon.AspectRatioAdjustment != 0.5 {
		t.Errorf("adjustment: got %v", loaded.Daemon.AspectRatioAdjustment)
	}
}

func TestLoadFromPathPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	partial := "[daemon]\nheight = 120\n"
	if err := os.WriteFile(path, []byte(partial), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Daemon.Height != 120 {
		t.Errorf("height: got %d", cfg.Daemon.Height)
	}
	if cfg.Client.Program != "ssh" {
		t.Errorf("defaults not applied alongside partial file: %q", cfg.Client.Program)
	}
}

func TestMergeClusterInventory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clusters.yaml")
	inventory := "web:\n  - web9\ndb:\n  - db1\n  - db2\n"
	if err := os.WriteFile(path, []byte(inventory), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Clusters = []Cluster{{Name: "web", Hosts: []string{"web1"}}}
	if err := mergeClusterInventory(cfg, path); err != nil {
		t.Fatalf("mergeClusterInventory: %v", err)
	}

	want := []Cluster{
		{Name: "web", Hosts: []string{"web9"}},
		{Name: "db", Hosts: []string{"db1", "db2"}},
	}
	if !reflect.DeepEqual(cfg.Clusters, want) {
		t.Errorf("got %+v, want %+v", cfg.Clusters, want)
	}
}

func TestMergeClusterInventoryMissingFile(t *testing.T) {
	cfg := DefaultConfig()
	if err := mergeClusterInventory(cfg, filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Errorf("missing inventory must not fail: %v", err)
	}
	if len(cfg.Clusters) != 0 {
		t.Errorf("clusters appeared from nowhere: %+v", cfg.Clusters)
	}
}
