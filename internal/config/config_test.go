package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
	if cfg.Workers.Count != 2 {
		t.Errorf("workers: got %d", cfg.Workers.Count)
	}
	if cfg.Banks.CacheTTLSeconds != 300 {
		t.Errorf("cache ttl: got %d", cfg.Banks.CacheTTLSeconds)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging: got %+v", cfg.Logging)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
[server]
addr = ":9090"

[workers]
count = 8

[logging]
format = "json"
`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
	if cfg.Workers.Count != 8 {
		t.Errorf("workers: got %d", cfg.Workers.Count)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("log format: got %q", cfg.Logging.Format)
	}

	// Sections absent from the file keep their defaults.
	if cfg.Server.BodyLimitMB != 30 {
		t.Errorf("body limit: got %d, want default 30", cfg.Server.BodyLimitMB)
	}
	if cfg.Storage.DataDir != "data" {
		t.Errorf("data dir: got %q, want default data", cfg.Storage.DataDir)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
}

func TestLoadBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server\nbroken"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unparseable config")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STMX_ADDR", ":7070")
	t.Setenv("STMX_DATA_DIR", "/var/lib/stmx")
	t.Setenv("STMX_BANKS_FILE", "/etc/stmx/banks.toml")
	t.Setenv("STMX_WORKERS", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
	if cfg.Storage.DataDir != "/var/lib/stmx" {
		t.Errorf("data dir: got %q", cfg.Storage.DataDir)
	}
	if cfg.Banks.File != "/etc/stmx/banks.toml" {
		t.Errorf("banks file: got %q", cfg.Banks.File)
	}
	if cfg.Workers.Count != 5 {
		t.Errorf("workers: got %d", cfg.Workers.Count)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server]\naddr = \":9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STMX_ADDR", ":6060")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":6060" {
		t.Errorf("environment must win over the file: got %q", cfg.Server.Addr)
	}
}

func TestEnvWorkersRejectsGarbage(t *testing.T) {
	t.Setenv("STMX_WORKERS", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers.Count != 2 {
		t.Errorf("workers: got %d, want default 2", cfg.Workers.Count)
	}

	t.Setenv("STMX_WORKERS", "-3")
	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers.Count != 2 {
		t.Errorf("negative workers: got %d, want default 2", cfg.Workers.Count)
	}
}

func TestPaths(t *testing.T) {
	cfg := Config{Storage: Storage{DataDir: "/srv/stmx"}}

	if got := cfg.DatabasePath(); got != "/srv/stmx/jobs.db" {
		t.Errorf("database path: got %q", got)
	}
	if got := cfg.UploadsDir(); got != "/srv/stmx/uploads" {
		t.Errorf("uploads dir: got %q", got)
	}
}
