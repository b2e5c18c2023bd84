package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/steady/pkg/object"
)

func TestRun_Scenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "parent_cascade.yaml"))
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_FailedAssertionIsReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_state",
		Description: "state assertion that cannot hold",
		Steps: []Step{
			{
				Insert: &InsertStep{Kind: "Foo", Name: "x", Props: map[string]any{"foo": true}},
				Assert: []Assertion{{Type: AssertState, Kind: "Foo", Name: "x", State: map[string]any{"foo": false}}},
			},
		},
		Assertions: []Assertion{{Type: AssertStored, Kind: "Foo", Names: []string{"y"}}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "step 0")
	assert.Contains(t, result.Errors[0], `field "foo"`)
	assert.Contains(t, result.Errors[1], "Foo names [y]")
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "insert into an unknown kind without expecting it",
		Steps:       []Step{{Remove: &object.Ref{Kind: "Widget", Name: "w"}}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Contains(t, result.Errors[0], "UNKNOWN_KIND")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing_error",
		Description: "expects an error that never happens",
		Steps: []Step{{
			Insert: &InsertStep{Kind: "Foo", Name: "x"},
			Error:  "ALREADY_OWNED",
		}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error ALREADY_OWNED, got none")
}

func TestRun_WrongErrorCode(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_code",
		Description: "fails with a different code",
		Steps: []Step{{
			Remove: &object.Ref{Kind: "Widget", Name: "w"},
			Error:  "NOT_FOUND",
		}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected error NOT_FOUND, got")
}

func TestRun_AwaitTimesOut(t *testing.T) {
	scenario := &Scenario{
		Name:        "await_timeout",
		Description: "waits for a child that never appears",
		Timeout:     "50ms",
		Steps:       []Step{{Await: &AwaitStep{Kind: "Child", Names: []string{"ghost"}}}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "timed out")
}

func TestRun_InvalidProps(t *testing.T) {
	scenario := &Scenario{
		Name:        "invalid_props",
		Description: "props that do not decode",
		Steps: []Step{{
			Insert: &InsertStep{Kind: "Foo", Name: "x", Props: map[string]any{"foo": "yes"}},
			Error:  "INVALID_MANIFEST",
		}},
		Assertions: []Assertion{{Type: AssertStored, Kind: "Foo"}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace)
}

func TestRun_StateAssertionReadsMapState(t *testing.T) {
	scenario := &Scenario{
		Name:        "parent_state",
		Description: "parent state lists applied children",
		Steps: []Step{{
			Insert: &InsertStep{Kind: "Parent", Name: "p", Props: map[string]any{
				"children": []any{map[string]any{"name": "Sara", "toys": 2}},
			}},
			Assert: []Assertion{{
				Type:  AssertState,
				Kind:  "Parent",
				Name:  "p",
				State: map[string]any{"children": map[string]any{"Sara": map[string]any{"toys": 2}}},
			}},
		}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
