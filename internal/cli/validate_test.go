package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPipeline = `schema_version: v1
store:
  path: events.db
stages:
  - name: find
    kind: vertex_finder
  - name: counts
    kind: callback
    callback: row_counts
`

func TestValidate_Text(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pipeline.yml", validPipeline)

	out, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "valid, 2 stage(s)")
	assert.Contains(t, out, "kind: vertex_finder")
	assert.Contains(t, out, "callback: row_counts")
}

func TestValidate_ShowsEnvironmentOverrides(t *testing.T) {
	t.Setenv("FASTSIM_STORE__PATH", "/data/override.db")
	path := writeFile(t, t.TempDir(), "pipeline.yml", validPipeline)

	out, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "path: /data/override.db")
}

func TestValidate_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pipeline.yml", validPipeline)

	out, _, err := execute(t, "--format", "json", "validate", path)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, 2.0, data["stages"])
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad kind", "schema_version: v1\nstages:\n  - name: a\n    kind: tracker\n", "kind"},
		{"unknown callback", "schema_version: v1\nstages:\n  - name: a\n    kind: callback\n    callback: nope\n", `unknown callback "nope"`},
		{"duplicate names", "schema_version: v1\nstages:\n  - name: a\n    kind: store_cleaner\n  - name: a\n    kind: store_cleaner\n", "already used"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "pipeline.yml", tt.body)

			out, _, err := execute(t, "validate", path)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, "✗ Validation failed")
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestValidate_InvalidJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pipeline.yml", "schema_version: v9\nstages: []\n")

	out, _, err := execute(t, "--format", "json", "validate", path)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
	details := resp.Error.Details.(map[string]any)
	assert.Equal(t, false, details["valid"])
	assert.NotEmpty(t, details["errors"])
}

func TestValidate_MissingFile(t *testing.T) {
	_, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
