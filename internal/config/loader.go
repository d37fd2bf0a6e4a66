package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	configFileName   = "config.toml"
	clustersFileName = "clusters.yaml"
)

// DefaultConfigPath returns the main config file location.
func DefaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// DefaultClustersPath returns the optional YAML cluster inventory location.
func DefaultClustersPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, clustersFileName), nil
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "cshd"), nil
}

// Load reads the effective configuration from the standard locations. A
// missing config file yields the defaults; the defaults are written back
// to disk on first run so the operator has something to edit.
func Load() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}

	clustersPath, err := DefaultClustersPath()
	if err != nil {
		return nil, err
	}
	if err := mergeClusterInventory(cfg, clustersPath); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromPath reads the TOML config at path, writing the defaults there
// first if nothing exists yet.
func LoadFromPath(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := Save(cfg, path); err != nil {
			// First-run persistence is best effort; the defaults still work.
			return cfg, nil
		}
		return cfg, nil
	}

	var raw RawConfig
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg := raw.Effective()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as TOML to path, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// clusterInventory is the shape of the optional clusters.yaml: a plain map
// of tag name to host list, the way inventory files are usually kept.
type clusterInventory map[string][]string

// mergeClusterInventory overlays clusters.yaml entries onto cfg.Clusters.
// An inventory entry with the same name as a TOML cluster replaces it.
func mergeClusterInventory(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cluster inventory %s: %w", path, err)
	}

	var inventory clusterInventory
	if err := yaml.Unmarshal(data, &inventory); err != nil {
		return fmt.Errorf("failed to parse cluster inventory %s: %w", path, err)
	}

	byName := make(map[string]int, len(cfg.Clusters))
	for i, cluster := range cfg.Clusters {
		byName[cluster.Name] = i
	}

	// Sort names for deterministic ordering of appended clusters.
	names := make([]string, 0, len(inventory))
	for name := range inventory {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if i, ok := byName[name]; ok {
			cfg.Clusters[i].Hosts = inventory[name]
			continue
		}
		cfg.Clusters = append(cfg.Clusters, Cluster{Name: name, Hosts: inventory[name]})
	}
	return nil
}
