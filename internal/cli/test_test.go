package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGolden    = "../harness/testdata/golden"
)

func TestTestCommand_HarnessScenariosPass(t *testing.T) {
	stdout, _, err := execute(t, "test", harnessScenarios, "--golden", harnessGolden)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "✓ parent_cascade")
	assert.Contains(t, stdout, "✓ All scenarios passed")
	assert.NotContains(t, stdout, "no golden file")
}

func TestTestCommand_JSON(t *testing.T) {
	stdout, _, err := execute(t, "--format", "json", "test", harnessScenarios, "--golden", harnessGolden, "--filter", "foo_*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, "foo_lifecycle", resp.Data.Scenarios[0].Name)
}

func TestTestCommand_VerboseProgressOnStderr(t *testing.T) {
	stdout, stderr, err := execute(t, "-v", "--format", "json", "test", harnessScenarios, "--golden", harnessGolden, "--filter", "foo_*")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	assert.Contains(t, stderr, "running "+filepath.Join(harnessScenarios, "foo_lifecycle.yaml"))
	assert.NotContains(t, stdout, "running ")
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	golden := t.TempDir()

	stdout, _, err := execute(t, "test", harnessScenarios, "--golden", golden, "--filter", "foo_*", "--update")
	require.NoError(t, err)
	assert.Contains(t, stdout, "golden updated")

	written, err := os.ReadFile(filepath.Join(golden, "foo_lifecycle.golden"))
	require.NoError(t, err)
	expected, err := os.ReadFile(filepath.Join(harnessGolden, "foo_lifecycle.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(written))

	_, _, err = execute(t, "test", harnessScenarios, "--golden", golden, "--filter", "foo_*")
	require.NoError(t, err)
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	golden := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(golden, "foo_lifecycle.golden"), []byte(`{"scenario":"foo_lifecycle","trace":[]}`), 0644))

	stdout, _, err := execute(t, "test", harnessScenarios, "--golden", golden, "--filter", "foo_*")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "does not match golden file")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	scenario := `
name: wrong_state
description: expects the wrong state
steps:
  - insert: {kind: Foo, name: x, props: {foo: true}}
assertions:
  - type: state
    kind: Foo
    name: x
    state: {foo: false}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_state.yaml"), []byte(scenario), 0644))

	stdout, _, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommand_InvalidScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: bad\nsteps: [{}]\n"), 0644))

	stdout, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, stdout, "✗ bad.yaml")
	assert.Contains(t, stdout, "failed to load scenario")
}

func TestTestCommand_CommandErrors(t *testing.T) {
	_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")

	_, _, err = execute(t, "test", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no scenarios found")

	_, _, err = execute(t, "test")
	require.Error(t, err)
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "c.txt", "parent_one.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{}, 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "nested.yaml"), []byte{}, 0644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yml"),
		filepath.Join(dir, "parent_one.yaml"),
	}, files)

	files, err = findScenarioFiles(dir, "parent_*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "parent_one.yaml")}, files)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}
