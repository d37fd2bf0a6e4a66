package client

import (
	"log/slog"
	"os"
	"os/user"

	"github.com/kevinburke/ssh_config"
)

// resolveUsername picks the login user for a host that carried no explicit
// user. ssh_config wins over the environment so per-host User entries
// behave the same as they do for plain ssh.
func resolveUsername(hostname, sshConfigPath string, logger *slog.Logger) string {
	if name := sshConfigUser(hostname, sshConfigPath, logger); name != "" {
		return name
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

func sshConfigUser(hostname, sshConfigPath string, logger *slog.Logger) string {
	if sshConfigPath == "" {
		return ssh_config.Get(hostname, "User")
	}

	f, err := os.Open(sshConfigPath)
	if err != nil {
		logger.Warn("cannot open ssh config", "path", sshConfigPath, "error", err)
		return ""
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		logger.Warn("cannot parse ssh config", "path", sshConfigPath, "error", err)
		return ""
	}
	name, err := cfg.Get(hostname, "User")
	if err != nil {
		return ""
	}
	return name
}
