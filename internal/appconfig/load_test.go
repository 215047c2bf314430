package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:19191" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "127.0.0.1:19191")
	}
	if cfg.Host.Kind != "extension" {
		t.Errorf("Host.Kind = %q, want %q", cfg.Host.Kind, "extension")
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "sqlite")
	}
	if cfg.Storage.Path == "" {
		t.Error("Storage.Path is empty, want a default under the home dir")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "0.0.0.0:7777"
host:
  kind: cdp
  cdp_url: "ws://127.0.0.1:9222"
  headless: true
storage:
  backend: bolt
  path: /var/lib/tabwarden/state.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:7777" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "0.0.0.0:7777")
	}
	if cfg.Host.Kind != "cdp" {
		t.Errorf("Host.Kind = %q, want %q", cfg.Host.Kind, "cdp")
	}
	if cfg.Host.CDPURL != "ws://127.0.0.1:9222" {
		t.Errorf("Host.CDPURL = %q, want %q", cfg.Host.CDPURL, "ws://127.0.0.1:9222")
	}
	if !cfg.Host.Headless {
		t.Error("Host.Headless = false, want true")
	}
	if cfg.Storage.Backend != "bolt" {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, "bolt")
	}
	if cfg.Storage.Path != "/var/lib/tabwarden/state.db" {
		t.Errorf("Storage.Path = %q, want %q", cfg.Storage.Path, "/var/lib/tabwarden/state.db")
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /tmp/custom.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "/tmp/custom.db" {
		t.Errorf("Storage.Path = %q, want %q", cfg.Storage.Path, "/tmp/custom.db")
	}
	if cfg.Server.Addr != "127.0.0.1:19191" {
		t.Errorf("Server.Addr = %q, want default %q", cfg.Server.Addr, "127.0.0.1:19191")
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want default %q", cfg.Storage.Backend, "sqlite")
	}
}

func TestLoadRejectsUnknownHostKind(t *testing.T) {
	path := writeConfig(t, `
host:
  kind: safari
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported host.kind") {
		t.Fatalf("Load error = %v, want unsupported host.kind", err)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "{{{ not yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed yaml, want error")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TABWARDEN_TEST_DIR", "/srv/tw")
	path := writeConfig(t, `
host:
  exec_path: ${TABWARDEN_TEST_DIR}/chromium
storage:
  path: ${TABWARDEN_TEST_DIR}/state.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "/srv/tw/state.db" {
		t.Errorf("Storage.Path = %q, want %q", cfg.Storage.Path, "/srv/tw/state.db")
	}
	if cfg.Host.ExecPath != "/srv/tw/chromium" {
		t.Errorf("Host.ExecPath = %q, want %q", cfg.Host.ExecPath, "/srv/tw/chromium")
	}
}

func TestLoadLeavesUnsetEnvUntouched(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: ${TABWARDEN_NO_SUCH_VAR}/state.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "${TABWARDEN_NO_SUCH_VAR}/state.db" {
		t.Errorf("Storage.Path = %q, want the reference preserved", cfg.Storage.Path)
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def, err := DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
	if cfg != def {
		t.Errorf("loaded config = %+v, want defaults %+v", cfg, def)
	}

	if err := WriteDefault(path, false); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("WriteDefault on existing file = %v, want already exists", err)
	}
	if err := WriteDefault(path, true); err != nil {
		t.Fatalf("WriteDefault overwrite: %v", err)
	}
}
