// Package config loads the steady CLI configuration from a TOML file.
//
//	[log]
//	level = "info"            # debug, info, warn, error
//
//	[journal]
//	path = "steady.db"        # empty disables the journal
//
//	[manifests]
//	dir = "manifests"         # CUE manifests applied at startup
//
//	[engine]
//	ack_timeout = "5s"        # how long an acknowledged command may take
//
//	[kinds]
//	foo_resync = "30s"        # Foo reconcile requeue interval, "0s" disables
//
// Keys missing from the file keep their defaults. Relative paths are
// resolved against the directory of the config file.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the resolved CLI configuration.
type Config struct {
	LogLevel     slog.Level
	JournalPath  string
	ManifestsDir string
	AckTimeout   time.Duration
	FooResync    time.Duration
}

// fileConfig is the TOML layout.
type fileConfig struct {
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
	Journal struct {
		Path string `toml:"path"`
	} `toml:"journal"`
	Manifests struct {
		Dir string `toml:"dir"`
	} `toml:"manifests"`
	Engine struct {
		AckTimeout string `toml:"ack_timeout"`
	} `toml:"engine"`
	Kinds struct {
		FooResync string `toml:"foo_resync"`
	} `toml:"kinds"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:   slog.LevelInfo,
		AckTimeout: 5 * time.Second,
		FooResync:  30 * time.Second,
	}
}

// Load reads path and overlays it on Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	base := filepath.Dir(path)

	if meta.IsDefined("log", "level") {
		level, err := ParseLevel(raw.Log.Level)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("journal", "path") {
		cfg.JournalPath = resolve(base, raw.Journal.Path)
	}
	if meta.IsDefined("manifests", "dir") {
		cfg.ManifestsDir = resolve(base, raw.Manifests.Dir)
	}
	if meta.IsDefined("engine", "ack_timeout") {
		d, err := parseDuration("engine.ack_timeout", raw.Engine.AckTimeout)
		if err != nil {
			return Config{}, err
		}
		cfg.AckTimeout = d
	}
	if meta.IsDefined("kinds", "foo_resync") {
		d, err := parseDuration("kinds.foo_resync", raw.Kinds.FooResync)
		if err != nil {
			return Config{}, err
		}
		cfg.FooResync = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed by types alone.
func (c Config) Validate() error {
	if c.AckTimeout <= 0 {
		return fmt.Errorf("engine.ack_timeout must be positive, got %s", c.AckTimeout)
	}
	if c.FooResync < 0 {
		return fmt.Errorf("kinds.foo_resync must not be negative, got %s", c.FooResync)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q (expected debug, info, warn or error)", s)
	}
	return level, nil
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("load config: %s: %w", key, err)
	}
	return d, nil
}

func resolve(base, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
