package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	return s
}

func TestStore_RoundTripHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	contents := [][]byte{
		[]byte("# Master Plan\n\nShip it."),
		[]byte(`{"findings":[]}`),
		{0x00, 0x01, 0xff},
	}
	for _, content := range contents {
		entry, err := s.Store(ctx, TypeMasterPlan, "plan", content, "INTAKE")
		require.NoError(t, err)
		assert.Equal(t, HashBytes(content), entry.Hash)

		got, err := s.Fetch(ctx, entry.Ref)
		require.NoError(t, err)
		assert.Equal(t, HashBytes(content), HashBytes(got))
	}
}

func TestStore_VersionsPerLogicalArtifact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a1, err := s.Store(ctx, TypeRolePlan, "backend", []byte("v1"), "ROLE_PLANNING")
	require.NoError(t, err)
	a2, err := s.Store(ctx, TypeRolePlan, "backend", []byte("v2"), "ROLE_PLANNING")
	require.NoError(t, err)
	b1, err := s.Store(ctx, TypeRolePlan, "frontend", []byte("v1"), "ROLE_PLANNING")
	require.NoError(t, err)

	assert.Equal(t, 1, a1.Version)
	assert.Equal(t, 2, a2.Version)
	assert.Equal(t, 1, b1.Version)
	assert.NotEqual(t, a1.Path, a2.Path)

	latest, err := s.Latest(TypeRolePlan, "backend")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	// v1 is untouched by v2
	got, err := s.Fetch(ctx, a1.Ref)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
}

func TestStore_TamperDetected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entry, err := s.Store(ctx, TypeArchitecture, "arch", []byte("# Architecture\noriginal"), "ARCHITECTURE")
	require.NoError(t, err)

	path := filepath.Join(s.Root(), filepath.FromSlash(entry.Path))
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("# Architecture\nrelaxed"), 0o644))

	_, err = s.Fetch(ctx, entry.Ref)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)

	var ie *IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, entry.Hash, ie.Expected)

	failures, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.Len(t, failures, 1)
}

func TestStore_ForgedRefRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entry, err := s.Store(ctx, TypeMasterPlan, "plan", []byte("content"), "INTAKE")
	require.NoError(t, err)

	forged := entry.Ref
	forged.Hash = HashBytes([]byte("other"))
	_, err = s.Fetch(ctx, forged)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestStore_ManifestSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "artifacts")
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	s, err := Open(root, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	_, err = s.Store(ctx, TypeAuditReport, "audit", []byte("report"), "AUDIT")
	require.NoError(t, err)

	reopened, err := Open(root)
	require.NoError(t, err)
	entries := reopened.List(TypeAuditReport)
	require.Len(t, entries, 1)
	assert.Equal(t, fixed, entries[0].CreatedAt)
	assert.Equal(t, "AUDIT", entries[0].Phase)

	next, err := reopened.Store(ctx, TypeAuditReport, "audit", []byte("report 2"), "AUDIT")
	require.NoError(t, err)
	assert.Equal(t, 2, next.Version)
}

func TestStore_StoreStructured(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	type packet struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	}
	entry, err := s.StoreStructured(ctx, TypeConsensusPacket, "", packet{ID: "p1", Score: 0.8}, "CONSENSUS_MASTER_PLAN")
	require.NoError(t, err)
	assert.Equal(t, "consensus_packet", entry.LogicalID)
	assert.Equal(t, ".json", filepath.Ext(entry.Path))

	var out packet
	require.NoError(t, s.FetchStructured(ctx, entry.Ref, &out))
	assert.Equal(t, 0.8, out.Score)
}

func TestStore_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Store(ctx, TypeMasterPlan, "plan", nil, "INTAKE")
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = s.Store(ctx, TypeMasterPlan, "../escape", []byte("x"), "INTAKE")
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = s.Fetch(ctx, Ref{Path: "../../etc/passwd", Hash: "x"})
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = s.Latest(TypeMasterPlan, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestStore(t)

	_, err := s.Store(ctx, TypeMasterPlan, "plan", []byte("x"), "INTAKE")
	assert.ErrorIs(t, err, context.Canceled)
}
