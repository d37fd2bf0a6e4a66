package config

// RawConfig mirrors Config with every field optional so that files written
// by older versions, or files that only override a few values, merge
// cleanly over the defaults.
type RawConfig struct {
	Clusters *[]Cluster       `toml:"clusters"`
	Client   *RawClientConfig `toml:"client"`
	Daemon   *RawDaemonConfig `toml:"daemon"`
}

type RawClientConfig struct {
	SSHConfigPath           *string   `toml:"ssh_config_path"`
	Program                 *string   `toml:"program"`
	Arguments               *[]string `toml:"arguments"`
	UsernameHostPlaceholder *string   `toml:"username_host_placeholder"`
	Terminal                *string   `toml:"terminal"`
	TerminalArguments       *[]string `toml:"terminal_arguments"`
}

type RawDaemonConfig struct {
	Height                *int     `toml:"height"`
	AspectRatioAdjustment *float64 `toml:"aspect_ratio_adjustment"`
}

// Effective applies raw overrides on top of the defaults.
func (r *RawConfig) Effective() *Config {
	cfg := DefaultConfig()

	if r.Clusters != nil {
		cfg.Clusters = *r.Clusters
	}
	if r.Client != nil {
		c := r.Client
		if c.SSHConfigPath != nil {
			cfg.Client.SSHConfigPath = *c.SSHConfigPath
		}
		if c.Program != nil {
			cfg.Client.Program = *c.Program
		}
		if c.Arguments != nil {
			cfg.Client.Arguments = *c.Arguments
		}
		if c.UsernameHostPlaceholder != nil {
			cfg.Client.UsernameHostPlaceholder = *c.UsernameHostPlaceholder
		}
		if c.Terminal != nil {
			cfg.Client.Terminal = *c.Terminal
		}
		if c.TerminalArguments != nil {
			cfg.Client.TerminalArguments = *c.TerminalArguments
		}
	}
	if r.Daemon != nil {
		d := r.Daemon
		if d.Height != nil {
			cfg.Daemon.Height = *d.Height
		}
		if d.AspectRatioAdjustment != nil {
			cfg.Daemon.AspectRatioAdjustment = *d.AspectRatioAdjustment
		}
	}

	return cfg
}
