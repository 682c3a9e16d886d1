package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/quorum/internal/orchestrator"
	"github.com/fyrsmithlabs/quorum/internal/phase"
)

// execute runs the root command against project dir and returns stdout.
// Flag variables are package globals, so they are reset first.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()

	projectDir, configPath = ".", ""
	runRoles, runTimeout, statusJSON, resetForce = nil, 0, false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"-C", dir}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, ".quorum", "config.yaml"), "logging:\n  level: error\n"+content)
}

func TestStatus_NoPipeline(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No pipeline has been started")
}

func TestMigrate(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")
	writeFile(t, filepath.Join(dir, "CONSTITUTION.md"), "# Rules\n")
	writeFile(t, filepath.Join(dir, "PLAN.md"), "# Plan\n")
	writeFile(t, filepath.Join(dir, "legacy.yaml"), `name: billing
language: go
type: api
phase: execution
plan_file: PLAN.md
`)

	out, err := execute(t, dir, "migrate", "legacy.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "IMPLEMENTATION")
	assert.Contains(t, out, "master_plan/master_plan@v1")

	st, err := orchestrator.NewStateStore(filepath.Join(dir, ".quorum")).Load()
	require.NoError(t, err)
	assert.Equal(t, phase.Implementation, st.Phase)
	assert.NotEmpty(t, st.ConstitutionHash)
	assert.Equal(t, "billing", st.Legacy["name"])

	t.Run("refuses to overwrite", func(t *testing.T) {
		_, err := execute(t, dir, "migrate", "legacy.yaml")
		require.Error(t, err)
		assert.ErrorIs(t, err, orchestrator.ErrStateExists)
		assert.Contains(t, err.Error(), "quorum reset")
	})

	t.Run("status shows the migrated run", func(t *testing.T) {
		out, err := execute(t, dir, "status")
		require.NoError(t, err)
		assert.Contains(t, out, st.RunID)
		assert.Contains(t, out, "IMPLEMENTATION")
	})

	t.Run("status json", func(t *testing.T) {
		out, err := execute(t, dir, "status", "--json")
		require.NoError(t, err)

		var decoded orchestrator.PipelineState
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, st.RunID, decoded.RunID)
	})
}

func TestMigrate_UnknownPhase(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")
	writeFile(t, filepath.Join(dir, "legacy.yaml"), "name: x\nphase: review\n")

	_, err := execute(t, dir, "migrate", "legacy.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown legacy phase")
}

func TestReset(t *testing.T) {
	t.Run("nothing to reset", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "")

		out, err := execute(t, dir, "reset")
		require.NoError(t, err)
		assert.Contains(t, out, "Nothing to reset")
	})

	t.Run("in progress requires force", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "")
		writeFile(t, filepath.Join(dir, "legacy.yaml"), "name: x\nphase: plan\n")
		_, err := execute(t, dir, "migrate", "legacy.yaml")
		require.NoError(t, err)

		_, err = execute(t, dir, "reset")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--force")

		out, err := execute(t, dir, "reset", "--force")
		require.NoError(t, err)
		assert.Contains(t, out, "pipeline state cleared")
		assert.NoFileExists(t, filepath.Join(dir, ".quorum", "state.json"))
	})

	t.Run("done resets without force", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "")
		writeFile(t, filepath.Join(dir, "legacy.yaml"), "name: x\nphase: complete\n")
		_, err := execute(t, dir, "migrate", "legacy.yaml")
		require.NoError(t, err)

		_, err = execute(t, dir, "reset")
		require.NoError(t, err)

		out, err := execute(t, dir, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "No pipeline has been started")
	})
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")
	writeFile(t, filepath.Join(dir, "CONSTITUTION.md"), "# Rules\n")
	writeFile(t, filepath.Join(dir, "PLAN.md"), "# Plan\n")
	writeFile(t, filepath.Join(dir, "legacy.yaml"), "name: x\nphase: plan\nplan_file: PLAN.md\n")
	_, err := execute(t, dir, "migrate", "legacy.yaml")
	require.NoError(t, err)

	out, err := execute(t, dir, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "artifacts: 1 verified")

	writeFile(t, filepath.Join(dir, "CONSTITUTION.md"), "# Rules, amended\n")

	out, err = execute(t, dir, "verify")
	require.Error(t, err)
	assert.ErrorIs(t, err, orchestrator.ErrIntegrity)
	assert.Equal(t, exitIntegrity, exitCode(err))
	assert.Contains(t, out, "changed since intake")
}

func TestVerify_NoState(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")

	out, err := execute(t, dir, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "no pipeline state")
	assert.Contains(t, out, "artifacts: 0 verified")
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")
	writeFile(t, filepath.Join(dir, "go.mod"), "module example.com/x\n\ngo 1.24\n")
	writeFile(t, filepath.Join(dir, "main.go"), "package main\n\nfunc main() {}\n")

	out, err := execute(t, dir, "snapshot")
	require.NoError(t, err)

	var snap map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.NotEmpty(t, snap["hash"])
	assert.Contains(t, snap, "languages")
	assert.Positive(t, snap["total_files"])
}

func TestCheck(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		dir := t.TempDir()
		_, err := execute(t, dir, "check", "deploy")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown check type")
	})

	t.Run("env missing variable", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "")
		writeFile(t, filepath.Join(dir, ".env.example"), "API_KEY=\nPORT=8080\n")
		writeFile(t, filepath.Join(dir, ".env"), "PORT=9000\n")

		out, err := execute(t, dir, "check", "env")
		require.Error(t, err)
		assert.Contains(t, out, "FAIL")
		assert.Contains(t, err.Error(), "API_KEY")
	})

	t.Run("env without example skips", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "")

		out, err := execute(t, dir, "check", "env")
		require.NoError(t, err)
		assert.Contains(t, out, "SKIP")
	})

	t.Run("placeholder", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "")
		writeFile(t, filepath.Join(dir, "main.go"), "package main\n\n// TODO: wire the handler\nfunc main() {}\n")

		out, err := execute(t, dir, "check", "placeholder")
		require.Error(t, err)
		assert.Contains(t, out, "main.go:3")
	})

	t.Run("configured build command", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "checks:\n  build: echo built\n")

		out, err := execute(t, dir, "check", "build")
		require.NoError(t, err)
		assert.Contains(t, out, "PASS")
		assert.Contains(t, out, "$ echo built")
	})

	t.Run("failing command", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "checks:\n  lint: exit 3\n")

		out, err := execute(t, dir, "check", "lint")
		require.Error(t, err)
		assert.Contains(t, out, "FAIL")
	})
}
