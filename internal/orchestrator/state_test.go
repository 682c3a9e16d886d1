package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/phase"
	"github.com/fyrsmithlabs/quorum/internal/skills"
)

func TestStateStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStateStore(dir)
	assert.False(t, s.Exists())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := NewPipelineState("run-1", "/srv/orders", now)
	st.Phase = phase.ConsensusArchitecture
	st.Roles = []skills.Role{skills.RoleArchitect, skills.RoleBackend}
	st.Iterations[phase.ConsensusArchitecture] = 2
	st.Artifacts[artifactKey(artifact.TypeArchitecture)] = artifact.Ref{
		ID: "a1", Type: artifact.TypeArchitecture, LogicalID: "architecture", Version: 2, Hash: "abc", Path: "architecture/architecture/v2",
	}
	st.History = append(st.History, Transition{From: phase.Architecture, To: phase.ConsensusArchitecture, Reason: "all stages passed", At: now})
	require.NoError(t, s.Save(st))
	assert.True(t, s.Exists())

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, st.RunID, got.RunID)
	assert.Equal(t, phase.ConsensusArchitecture, got.CurrentPhase())
	assert.Equal(t, st.Roles, got.ActiveRoles())
	assert.Equal(t, 2, got.Iterations[phase.ConsensusArchitecture])
	assert.Equal(t, st.Artifacts, got.ArtifactRefs())
	assert.Equal(t, st.History, got.History)

	// No temp files are left next to the state.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StateFile, entries[0].Name())

	require.NoError(t, s.Remove())
	require.NoError(t, s.Remove())
	_, err = s.Load()
	assert.ErrorIs(t, err, ErrNoState)
}

func TestStateStore_NormalizesMissingMaps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, StateFile), `{"version": 1, "run_id": "r", "phase": "AUDIT"}`)

	st, err := NewStateStore(dir).Load()
	require.NoError(t, err)
	assert.NotNil(t, st.Retries)
	assert.NotNil(t, st.Iterations)
	assert.NotNil(t, st.Artifacts)
	st.Retries[phase.Audit]++
}

func TestStateStore_RejectsNewerVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, StateFile), `{"version": 99, "phase": "INTAKE"}`)

	_, err := NewStateStore(dir).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer")
}

func TestStateStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, StateFile), `{"version":`)

	_, err := NewStateStore(dir).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoState)
}

func TestPipelineState_Accessors(t *testing.T) {
	st := NewPipelineState("r", "/p", time.Now())
	assert.Equal(t, phase.Intake, st.CurrentPhase())
	assert.False(t, st.Terminal())

	st.Roles = []skills.Role{skills.RoleQA}
	roles := st.ActiveRoles()
	roles[0] = skills.RoleAuditor
	assert.Equal(t, skills.RoleQA, st.Roles[0])

	st.Phase = phase.Stuck
	assert.True(t, st.Terminal())
}

func TestStateKeys(t *testing.T) {
	assert.Equal(t, "master_plan", artifactKey(artifact.TypeMasterPlan))
	assert.Equal(t, "plan_packet/master_plan", packetKey(artifact.TypeMasterPlan))
	assert.Equal(t, "repo_snapshot", snapshotKey)
}

func TestErrors(t *testing.T) {
	ie := &IntegrityError{Phase: phase.Audit, Reason: "hash mismatch", Err: os.ErrNotExist}
	assert.ErrorIs(t, ie, ErrIntegrity)
	assert.ErrorIs(t, ie, os.ErrNotExist)
	assert.Contains(t, ie.Error(), "AUDIT")

	se := &StuckError{Phase: phase.Review, Reason: "budget"}
	assert.ErrorIs(t, se, ErrStuck)
	assert.NotErrorIs(t, se, ErrIntegrity)
}
