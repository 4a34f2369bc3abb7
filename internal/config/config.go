// Package config loads service configuration: builtin defaults,
// overridden by an optional TOML file, overridden by environment
// variables. Environment variables use the STMX_ prefix.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`
	Banks   Banks   `toml:"banks"`
	Workers Workers `toml:"workers"`
	Logging Logging `toml:"logging"`
}

type Server struct {
	Addr        string `toml:"addr"`
	BodyLimitMB int    `toml:"body_limit_mb"`
}

type Storage struct {
	DataDir string `toml:"data_dir"`
}

type Banks struct {
	File            string `toml:"file"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

type Workers struct {
	Count int `toml:"count"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() Config {
	return Config{
		Server:  Server{Addr: ":8080", BodyLimitMB: 30},
		Storage: Storage{DataDir: "data"},
		Banks:   Banks{File: "banks.toml", CacheTTLSeconds: 300},
		Workers: Workers{Count: 2},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then applies environment
// overrides. A missing file is not an error; a broken one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STMX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("STMX_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("STMX_BANKS_FILE"); v != "" {
		c.Banks.File = v
	}
	if v := os.Getenv("STMX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers.Count = n
		}
	}
}

// DatabasePath is the SQLite file inside the data directory.
func (c Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, "jobs.db")
}

// UploadsDir is the root of the dated upload tree.
func (c Config) UploadsDir() string {
	return filepath.Join(c.Storage.DataDir, "uploads")
}

// NewLogger builds the service logger described by the logging
// section.
func NewLogger(l Logging) *slog.Logger {
	level := slog.LevelInfo
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if l.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
