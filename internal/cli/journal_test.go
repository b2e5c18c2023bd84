package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/steady/internal/journal"
)

// seededJournal persists the demo manifests and returns the journal path.
func seededJournal(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "steady.db")
	_, _, err := execute(t, "apply", "--journal", dbPath, "testdata/manifests")
	require.NoError(t, err)
	return dbPath
}

func TestJournal_Changes(t *testing.T) {
	dbPath := seededJournal(t)

	stdout, _, err := execute(t, "journal", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "create  Foo/proxy")
	assert.Contains(t, stdout, "own     Child/Sara  owner=Parent/parent")
}

func TestJournal_ObjectFilter(t *testing.T) {
	dbPath := seededJournal(t)

	stdout, _, err := execute(t, "--format", "json", "journal", dbPath, "--object", "Child/Sara")
	require.NoError(t, err)

	var resp struct {
		Data []journal.Change `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotEmpty(t, resp.Data)
	for _, c := range resp.Data {
		assert.Equal(t, "Sara", c.Name)
	}
	assert.Equal(t, journal.ChangeOwn, resp.Data[0].Change, "ownership is recorded before the insert")
}

func TestJournal_Since(t *testing.T) {
	dbPath := seededJournal(t)

	all, _, err := execute(t, "journal", dbPath)
	require.NoError(t, err)
	later, _, err := execute(t, "journal", dbPath, "--since", "2")
	require.NoError(t, err)

	assert.Equal(t, len(strings.Split(strings.TrimSpace(all), "\n"))-2,
		len(strings.Split(strings.TrimSpace(later), "\n")))
}

func TestJournal_Manifests(t *testing.T) {
	dbPath := seededJournal(t)

	stdout, _, err := execute(t, "--format", "json", "journal", dbPath, "--manifests")
	require.NoError(t, err)

	var resp struct {
		Data []journal.Manifest `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Len(t, resp.Data, 4)
}

func TestJournal_Errors(t *testing.T) {
	_, _, err := execute(t, "journal", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "journal not found")

	_, _, err = execute(t, "journal", "unused.db", "--object", "/x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseObjectFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    journal.ChangeFilter
		wantErr bool
	}{
		{in: "", want: journal.ChangeFilter{}},
		{in: "Foo", want: journal.ChangeFilter{Kind: "Foo"}},
		{in: "Child/Sara", want: journal.ChangeFilter{Kind: "Child", Name: "Sara"}},
		{in: "/Sara", wantErr: true},
		{in: "Child/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseObjectFilter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatChange(t *testing.T) {
	c := journal.Change{Seq: 7, Kind: "Foo", Name: "x", Change: "update", Patch: true, Digest: "abc"}
	assert.Equal(t, "     7  update  Foo/x  (patch)  abc", formatChange(c))
}
