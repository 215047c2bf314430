// Package appconfig loads the daemon's YAML configuration. Every key
// has a default, so a missing file yields a working config.
package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Host    HostConfig    `mapstructure:"host" yaml:"host"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
}

// ServerConfig configures the websocket listener the extension and
// overlay connect to.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// HostConfig selects how the engine attaches to a browser: "extension"
// waits for the companion extension on /host, "cdp" drives a Chromium
// over the DevTools protocol.
type HostConfig struct {
	Kind        string `mapstructure:"kind" yaml:"kind"`
	CDPURL      string `mapstructure:"cdp_url" yaml:"cdp_url"`
	ExecPath    string `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir string `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Headless    bool   `mapstructure:"headless" yaml:"headless"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:19191",
		},
		Host: HostConfig{
			Kind: "extension",
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    filepath.Join(home, ".tabwarden", "state.db"),
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tabwarden", "config.yaml"), nil
}
