package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads the config file at path, layering it over the defaults.
// A missing file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	def, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("host.kind", def.Host.Kind)
	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("storage.path", def.Storage.Path)

	if err := v.ReadInConfig(); err != nil {
		// With SetConfigFile a missing file surfaces as a plain path
		// error, not viper's not-found type. Tolerate both.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.Host.Kind {
	case "", "extension":
		cfg.Host.Kind = "extension"
	case "cdp":
	default:
		return Config{}, fmt.Errorf("unsupported host.kind %q (want extension or cdp)", cfg.Host.Kind)
	}

	cfg.Storage.Path = expandEnv(cfg.Storage.Path)
	cfg.Host.ExecPath = expandEnv(cfg.Host.ExecPath)
	cfg.Host.UserDataDir = expandEnv(cfg.Host.UserDataDir)

	return cfg, nil
}

// expandEnv substitutes ${VAR} references from the environment,
// leaving unset variables untouched.
func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "${" + key + "}"
	})
}

// WriteDefault writes the default config as YAML to path, creating
// parent directories as needed. Unless overwrite is set, an existing
// file is left alone.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
	}
	cfg, err := DefaultConfig()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
