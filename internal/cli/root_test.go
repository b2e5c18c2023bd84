package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "steady", cmd.Use)
	assert.Contains(t, cmd.Long, "manifests")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "apply", "journal", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command string
		flag    string
		def     string
	}{
		{"run", "journal", ""},
		{"run", "for", "0s"},
		{"apply", "journal", ""},
		{"journal", "object", ""},
		{"journal", "since", "0"},
		{"journal", "manifests", "false"},
		{"test", "update", "false"},
		{"test", "filter", ""},
		{"test", "golden", ""},
	}

	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{tt.command})
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "apply", "testdata/manifests")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}

func TestConfigFlag(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.toml"), "apply", "testdata/manifests")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "invalid config")
	})

	t.Run("invalid value", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "steady.toml")
		require.NoError(t, os.WriteFile(path, []byte("[engine]\nack_timeout = \"0s\"\n"), 0644))

		_, _, err := execute(t, "--config", path, "apply", "testdata/manifests")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "steady.toml")
		require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"warn\"\n"), 0644))

		_, _, err := execute(t, "--config", path, "apply", "testdata/manifests")
		require.NoError(t, err)
	})
}
