package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "steady.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"

[journal]
path = "state/steady.db"

[manifests]
dir = "/etc/steady/manifests"

[engine]
ack_timeout = "250ms"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "state/steady.db"), cfg.JournalPath, "relative to the config file")
	assert.Equal(t, "/etc/steady/manifests", cfg.ManifestsDir)
	assert.Equal(t, 250*time.Millisecond, cfg.AckTimeout)
	assert.Equal(t, Default().FooResync, cfg.FooResync, "missing keys keep defaults")
}

func TestLoad_EmptyFileIsDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_DisableResync(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[kinds]\nfoo_resync = \"0s\"\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.FooResync)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad level", "[log]\nlevel = \"loud\"\n", "invalid log level"},
		{"bad duration", "[engine]\nack_timeout = \"soon\"\n", "engine.ack_timeout"},
		{"zero timeout", "[engine]\nack_timeout = \"0s\"\n", "must be positive"},
		{"negative resync", "[kinds]\nfoo_resync = \"-1s\"\n", "must not be negative"},
		{"unknown key", "[engine]\nworkers = 4\n", "unknown key"},
		{"syntax", "[log\n", "load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}
