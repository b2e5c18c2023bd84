package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/steady/pkg/object"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, `
name: valid
description: "all step kinds"
timeout: 2s
steps:
  - insert:
      kind: Child
      name: Sara
      owner: { kind: Parent, name: parent }
      props: { toys: 2 }
    error: UNKNOWN_KIND
  - remove: { kind: Child, name: Sara }
  - apply: manifests
  - await: { kind: Child, names: [Sara], live: true }
    assert:
      - { type: live, kind: Child, names: [Sara] }
assertions:
  - { type: trace_count, change: create, ref: Child/Sara, count: 1 }
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, 2*time.Second, s.timeout())
	require.Len(t, s.Steps, 4)

	insert := s.Steps[0].Insert
	require.NotNil(t, insert)
	assert.Equal(t, object.Kind("Child"), insert.Kind)
	assert.Equal(t, &object.Ref{Kind: "Parent", Name: "parent"}, insert.Owner)
	assert.Equal(t, 2, insert.Props["toys"])
	assert.Equal(t, "UNKNOWN_KIND", s.Steps[0].Error)

	assert.Equal(t, &object.Ref{Kind: "Child", Name: "Sara"}, s.Steps[1].Remove)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "manifests"), s.resolve(s.Steps[2].Apply))
	assert.True(t, s.Steps[3].Await.Live)
	require.Len(t, s.Steps[3].Assert, 1)

	require.Len(t, s.Assertions, 1)
	assert.Equal(t, "Child/Sara", s.Assertions[0].Ref)
}

func TestLoadScenario_DefaultTimeout(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: d
description: d
steps:
  - remove: { kind: Foo, name: x }
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, s.timeout())
	assert.Equal(t, "/abs", s.resolve("/abs"))
	assert.Equal(t, "rel", s.resolve("rel"))
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no name", "description: d\nsteps: [{remove: {kind: Foo, name: x}}]\n", "name is required"},
		{"no description", "name: n\nsteps: [{remove: {kind: Foo, name: x}}]\n", "description is required"},
		{"no steps", "name: n\ndescription: d\n", "steps list is required"},
		{"bad timeout", "name: n\ndescription: d\ntimeout: soon\nsteps: [{remove: {kind: Foo, name: x}}]\n", "timeout"},
		{"negative timeout", "name: n\ndescription: d\ntimeout: -1s\nsteps: [{remove: {kind: Foo, name: x}}]\n", "timeout must be positive"},
		{"empty step", "name: n\ndescription: d\nsteps: [{error: CLOSED}]\n", "exactly one of"},
		{"two actions", "name: n\ndescription: d\nsteps: [{remove: {kind: Foo, name: x}, apply: dir}]\n", "exactly one of"},
		{"insert without name", "name: n\ndescription: d\nsteps: [{insert: {kind: Foo}}]\n", "kind and name are required"},
		{"await without kind", "name: n\ndescription: d\nsteps: [{await: {names: [a]}}]\n", "kind is required"},
		{"unknown field", "name: n\ndescription: d\nstep: []\n", "failed to parse YAML"},
		{"unknown assertion", "name: n\ndescription: d\nsteps: [{remove: {kind: Foo, name: x}}]\nassertions: [{type: final_state}]\n", "unknown assertion type"},
		{"state without fields", "name: n\ndescription: d\nsteps: [{remove: {kind: Foo, name: x}}]\nassertions: [{type: state, kind: Foo, name: x}]\n", "state is required"},
		{"owned without owner", "name: n\ndescription: d\nsteps: [{remove: {kind: Foo, name: x}}]\nassertions: [{type: owned}]\n", "owner is required"},
		{"step assertion", "name: n\ndescription: d\nsteps: [{remove: {kind: Foo, name: x}, assert: [{type: stored}]}]\n", "steps[0].assert[0]: kind is required"},
		{"trace_order empty", "name: n\ndescription: d\nsteps: [{remove: {kind: Foo, name: x}}]\nassertions: [{type: trace_order}]\n", "events list is required"},
		{"trace_count negative", "name: n\ndescription: d\nsteps: [{remove: {kind: Foo, name: x}}]\nassertions: [{type: trace_count, change: own, count: -1}]\n", "non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
