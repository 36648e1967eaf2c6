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

const failingScenario = `name: failing
description: expects the wrong outcome
flow:
  - op: create
    as: alice
    video: clip
    ai: true
    score: 70
    expect:
      outcome: DuplicateVerification
assertions:
  - type: count
    count: 1
`

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, "", "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := execute(t, "", "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := execute(t, "", "--format", "json", "test", harnessScenarios, "--golden", harnessGolden)
	require.NoError(t, err, out)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Positive(t, resp.Data.Total)
	assert.Equal(t, resp.Data.Total, resp.Data.Passed)
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execute(t, "", "test", harnessScenarios, "--golden", harnessGolden, "--filter", "update_*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ update_score")
	assert.Contains(t, out, "✓ update_missing")
	assert.NotContains(t, out, "create_and_read")
	assert.Contains(t, out, "2 passed, 0 failed, 2 total")
}

func TestTestCommandFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failing.yaml"), []byte(failingScenario), 0o644))

	out, err := execute(t, "", "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeScenarioFailure, resp.Error.Code)
}

func TestTestCommandUpdateGolden(t *testing.T) {
	dir := t.TempDir()
	golden := filepath.Join(dir, "golden")
	src, err := os.ReadFile(filepath.Join(harnessScenarios, "create_and_read.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "create_and_read.yaml"), src, 0o644))

	_, err = execute(t, "", "test", dir, "--update")
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(golden, "create_and_read.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(harnessGolden, "create_and_read.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(written))

	// A tampered golden file fails the run.
	require.NoError(t, os.WriteFile(filepath.Join(golden, "create_and_read.golden"), []byte("{}"), 0o644))
	out, err := execute(t, "", "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}
