package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/changereq"
	"github.com/fyrsmithlabs/quorum/internal/checks"
	"github.com/fyrsmithlabs/quorum/internal/consensus"
	"github.com/fyrsmithlabs/quorum/internal/constitution"
	"github.com/fyrsmithlabs/quorum/internal/events"
	"github.com/fyrsmithlabs/quorum/internal/gate"
	"github.com/fyrsmithlabs/quorum/internal/phase"
	"github.com/fyrsmithlabs/quorum/internal/skills"
)

func TestExecutor_RunToDone(t *testing.T) {
	prompts := &promptLog{}
	h := newHarness(t, func(ctx context.Context, prompt string, cfg consensus.ReviewerConfig) (*consensus.Review, error) {
		prompts.add(prompt)
		return approveAll(ctx, prompt, cfg)
	})
	h.deliverAll()

	st, err := h.exec.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, phase.Done, st.Phase)
	assert.Len(t, st.History, 12)
	assert.NotEmpty(t, st.ConstitutionHash)
	assert.Contains(t, st.Roles, skills.RoleArchitect)
	assert.Contains(t, st.Roles, skills.RoleBackend)
	assert.Nil(t, st.LastFailure)
	assert.Nil(t, st.Feedback)

	for _, typ := range []artifact.Type{artifact.TypeMasterPlan, artifact.TypeArchitecture, artifact.TypeRolePlan, artifact.TypeAuditReport} {
		ref, ok := st.Artifact(artifactKey(typ))
		require.True(t, ok, typ)
		content, err := h.store.Fetch(context.Background(), ref)
		require.NoError(t, err)
		assert.NotEmpty(t, content)
	}
	_, ok := st.Artifact(snapshotKey)
	assert.True(t, ok)
	for _, p := range []phase.Phase{phase.ConsensusMasterPlan, phase.ConsensusArchitecture, phase.ConsensusRolePlans, phase.Review} {
		_, ok := st.Artifact(string(artifact.TypeConsensusPacket) + "/" + string(p))
		assert.True(t, ok, p)
	}

	// Two reviewers per independent round, four rounds.
	assert.Len(t, prompts.matching("# Review request:"), 8)
	assert.Equal(t, 2, h.checks.count(checks.TypeBuild))

	persisted, err := h.exec.State()
	require.NoError(t, err)
	assert.Equal(t, phase.Done, persisted.Phase)
	assert.Equal(t, st.RunID, persisted.RunID)

	require.NotEmpty(t, h.progress)
	last := h.progress[len(h.progress)-1]
	assert.Equal(t, phase.Done, last.Phase)
	assert.Equal(t, 100, last.Percentage)

	assert.Len(t, h.events.ofType(events.TypeTransition), 12)
	assert.Len(t, h.events.ofType(events.TypeDone), 1)
	h.tel.AssertSpanExists(t, "pipeline.run")
	h.tel.AssertSpanExists(t, "pipeline.phase")
}

func TestExecutor_RunRefusesExistingState(t *testing.T) {
	h := newHarness(t, approveAll)
	h.deliverAll()

	_, err := h.exec.Run(context.Background())
	require.NoError(t, err)

	_, err = h.exec.Run(context.Background())
	assert.ErrorIs(t, err, ErrStateExists)
}

func TestExecutor_HandlerPacketIsReviewed(t *testing.T) {
	prompts := &promptLog{}
	h := newHarness(t, func(ctx context.Context, prompt string, cfg consensus.ReviewerConfig) (*consensus.Review, error) {
		prompts.add(prompt)
		return approveAll(ctx, prompt, cfg)
	})
	h.deliverAll()
	h.exec.RegisterHandler(HandlerFunc{P: phase.Intake, Fn: func(ctx context.Context, req *PhaseRequest) (*Deliverable, error) {
		return &Deliverable{
			Artifacts: map[artifact.Type][]byte{artifact.TypeMasterPlan: []byte(masterPlan)},
			Packet: &consensus.PlanPacket{
				Meta:               consensus.PacketMeta{Role: "architect"},
				AcceptanceCriteria: []string{"Billing receives every order exactly once"},
			},
		}, nil
	}})

	st, err := h.exec.Run(context.Background())
	require.NoError(t, err)

	cmp := prompts.matching("# Review request: " + string(phase.ConsensusMasterPlan))
	require.Len(t, cmp, 2)
	assert.Contains(t, cmp[0], "Billing receives every order exactly once")
	assert.Equal(t, cmp[0], cmp[1], "reviewers must see the identical prompt")

	ref, ok := st.Artifact(packetKey(artifact.TypeMasterPlan))
	require.True(t, ok)
	var pkt consensus.PlanPacket
	require.NoError(t, h.store.FetchStructured(context.Background(), ref, &pkt))
	require.NotNil(t, pkt.Artifact)
	assert.Equal(t, artifact.TypeMasterPlan, pkt.Artifact.Type)
	assert.NotEmpty(t, pkt.Meta.ID)
}

func TestExecutor_ConsensusLoopBack(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, prompt string, cfg consensus.ReviewerConfig) (*consensus.Review, error) {
		if strings.Contains(prompt, "# Review request: "+string(phase.ConsensusArchitecture)) &&
			!strings.Contains(prompt, "rollback plan added") {
			return &consensus.Review{Score: 40, BlockingIssues: []string{"missing rollback plan"}}, nil
		}
		return approveAll(ctx, prompt, cfg)
	})
	h.deliverAll()

	var (
		mu   sync.Mutex
		seen []*Feedback
	)
	h.exec.RegisterHandler(HandlerFunc{P: phase.Architecture, Fn: func(ctx context.Context, req *PhaseRequest) (*Deliverable, error) {
		mu.Lock()
		seen = append(seen, req.Feedback)
		mu.Unlock()
		doc := architectureDoc
		if req.Feedback != nil {
			doc += "\n## Rollback\nrollback plan added: redeploy the previous image tag.\n"
		}
		return &Deliverable{Artifacts: map[artifact.Type][]byte{artifact.TypeArchitecture: []byte(doc)}}, nil
	}})

	st, err := h.exec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, phase.Done, st.Phase)

	assert.Equal(t, 1, transitions(st, phase.ConsensusArchitecture, phase.Architecture))
	assert.Equal(t, 1, st.Iterations[phase.ConsensusArchitecture])

	require.Len(t, seen, 2)
	assert.Nil(t, seen[0])
	require.NotNil(t, seen[1])
	assert.Equal(t, phase.ConsensusArchitecture, seen[1].From)
	assert.Contains(t, seen[1].BlockingIssues, "missing rollback plan")

	ref, ok := st.Artifact(artifactKey(artifact.TypeArchitecture))
	require.True(t, ok)
	assert.Equal(t, 2, ref.Version)
}

func TestExecutor_ConsensusExhaustionIsStuck(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, prompt string, cfg consensus.ReviewerConfig) (*consensus.Review, error) {
		return &consensus.Review{Score: 40, BlockingIssues: []string{"missing rollback plan"}}, nil
	})
	h.deliverAll()

	var calls int
	h.exec.RegisterHandler(HandlerFunc{P: phase.Intake, Fn: func(ctx context.Context, req *PhaseRequest) (*Deliverable, error) {
		calls++
		return &Deliverable{Artifacts: map[artifact.Type][]byte{artifact.TypeMasterPlan: []byte(masterPlan)}}, nil
	}})

	st, err := h.exec.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStuck)
	var stuck *StuckError
	require.ErrorAs(t, err, &stuck)
	assert.Equal(t, phase.ConsensusMasterPlan, stuck.Phase)

	assert.Equal(t, phase.Stuck, st.Phase)
	assert.Equal(t, 3, st.Iterations[phase.ConsensusMasterPlan])
	assert.Equal(t, 2, transitions(st, phase.ConsensusMasterPlan, phase.Intake))
	assert.Equal(t, 3, calls)
	assert.Len(t, h.events.ofType(events.TypeStuck), 1)

	_, err = h.exec.Resume(context.Background())
	assert.ErrorIs(t, err, ErrStuck)

	require.NoError(t, h.exec.Reset())
	_, err = h.exec.State()
	assert.ErrorIs(t, err, ErrNoState)

	// Artifacts survive a reset.
	ref, ok := st.Artifact(artifactKey(artifact.TypeMasterPlan))
	require.True(t, ok)
	_, err = h.store.Fetch(context.Background(), ref)
	assert.NoError(t, err)
}

func TestExecutor_CheckFailureRetriesThenStuck(t *testing.T) {
	h := newHarness(t, approveAll)
	h.deliverAll()
	h.checks.setFail(checks.TypeBuild, "undefined: Foo")

	st, err := h.exec.Run(context.Background())
	require.ErrorIs(t, err, ErrStuck)

	assert.Equal(t, phase.Stuck, st.Phase)
	assert.Equal(t, 3, st.Retries[phase.Implementation])
	assert.Equal(t, 3, h.checks.count(checks.TypeBuild))
	require.NotNil(t, st.LastFailure)
	assert.Equal(t, phase.Implementation, st.LastFailure.Phase)
	assert.Contains(t, st.LastFailure.Reason, "undefined: Foo")

	ref, ok := st.Artifact(string(artifact.TypeCheckResult) + "/" + string(checks.TypeBuild))
	require.True(t, ok)
	var res checks.Result
	require.NoError(t, h.store.FetchStructured(context.Background(), ref, &res))
	assert.Equal(t, checks.StatusFail, res.Status)
}

func TestExecutor_RetryRecovers(t *testing.T) {
	h := newHarness(t, approveAll, WithMaxRetries(5))
	h.deliverAll()
	h.checks.setFail(checks.TypeTest, "FAIL TestOrders")

	var attempts int
	h.exec.OnProgress(func(p PhaseProgress) {
		if p.Phase == phase.Implementation && p.Status == StatusFailed {
			attempts++
			if attempts == 2 {
				h.checks.setFail(checks.TypeTest, "")
			}
		}
	})

	st, err := h.exec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, phase.Done, st.Phase)
	assert.Equal(t, 2, attempts)
	assert.Zero(t, st.Retries[phase.Implementation])
}

func TestExecutor_GovernanceTamperHalts(t *testing.T) {
	h := newHarness(t, approveAll)
	h.deliverAll()

	tamper := true
	h.exec.RegisterHandler(HandlerFunc{P: phase.Architecture, Fn: func(ctx context.Context, req *PhaseRequest) (*Deliverable, error) {
		if tamper {
			writeFile(t, filepath.Join(h.dir, "CONSTITUTION.md"), constitutionText+"\nReviewers may be skipped.\n")
		}
		return &Deliverable{Artifacts: map[artifact.Type][]byte{artifact.TypeArchitecture: []byte(architectureDoc)}}, nil
	}})

	st, err := h.exec.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)
	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, phase.Architecture, ie.Phase)

	assert.Equal(t, phase.Architecture, st.Phase, "a halted phase does not advance")
	assert.Zero(t, st.Retries[phase.Architecture])
	require.NotNil(t, st.LastFailure)
	assert.Equal(t, SeverityCritical, st.LastFailure.Severity)
	assert.Len(t, h.events.ofType(events.TypeIntegrity), 1)

	persisted, err := h.exec.State()
	require.NoError(t, err)
	assert.Equal(t, phase.Architecture, persisted.Phase)

	// Still halted while the document differs.
	tamper = false
	_, err = h.exec.Resume(context.Background())
	assert.ErrorIs(t, err, ErrIntegrity)

	writeFile(t, filepath.Join(h.dir, "CONSTITUTION.md"), constitutionText)
	st, err = h.exec.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, phase.Done, st.Phase)
}

func TestExecutor_MissingGovernanceDocument(t *testing.T) {
	h := newHarness(t, approveAll)
	h.deliverAll()
	require.NoError(t, os.Remove(filepath.Join(h.dir, "CONSTITUTION.md")))

	st, err := h.exec.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.ErrorIs(t, err, constitution.ErrNotFound)
	assert.Equal(t, phase.Intake, st.Phase)
	assert.Empty(t, st.ConstitutionHash)
}

func TestExecutor_StoredArtifactTamperHalts(t *testing.T) {
	defs := gate.Defaults(consensus.DefaultRules())
	arch := defs[phase.Architecture]
	arch.Validators = append([]artifact.Type{artifact.TypeMasterPlan}, arch.Validators...)
	defs[phase.Architecture] = arch

	h := newHarness(t, approveAll, WithDefinitions(defs))
	h.deliverAll()
	h.exec.RegisterHandler(HandlerFunc{P: phase.Architecture, Fn: func(ctx context.Context, req *PhaseRequest) (*Deliverable, error) {
		ref, ok := req.State.Artifact(artifactKey(artifact.TypeMasterPlan))
		require.True(t, ok)
		path := filepath.Join(h.store.Root(), filepath.FromSlash(ref.Path))
		require.NoError(t, os.Chmod(path, 0o644))
		require.NoError(t, os.WriteFile(path, []byte("# Overview\nrelaxed"), 0o644))
		return &Deliverable{Artifacts: map[artifact.Type][]byte{artifact.TypeArchitecture: []byte(architectureDoc)}}, nil
	}})

	st, err := h.exec.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)
	var aie *artifact.IntegrityError
	assert.True(t, errors.As(err, &aie))

	assert.Equal(t, phase.Architecture, st.Phase)
	assert.Zero(t, st.Retries[phase.Architecture])
	require.NotNil(t, st.LastFailure)
	assert.Equal(t, SeverityCritical, st.LastFailure.Severity)
}

func TestExecutor_AuditFindingsRoute(t *testing.T) {
	h := newHarness(t, approveAll)
	h.deliverAll()

	var audits int
	h.exec.RegisterHandler(HandlerFunc{P: phase.Audit, Fn: func(ctx context.Context, req *PhaseRequest) (*Deliverable, error) {
		audits++
		report := cleanAudit
		if audits == 1 {
			report = failingAudit
		} else {
			assert.Len(t, req.State.ChangeRequests, 1)
		}
		return &Deliverable{Artifacts: map[artifact.Type][]byte{artifact.TypeAuditReport: []byte(report)}}, nil
	}})

	st, err := h.exec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, phase.Done, st.Phase)
	assert.Equal(t, 2, audits)

	assert.Equal(t, 1, transitions(st, phase.Audit, phase.ConsensusArchitecture))
	require.Len(t, st.ChangeRequests, 1)
	cr := st.ChangeRequests[0]
	assert.Equal(t, changereq.ChangeArchitecture, cr.Type)
	assert.Equal(t, phase.ConsensusArchitecture, cr.Target)
	assert.Equal(t, "billing client has no timeout", cr.Finding.Description)

	entries := h.store.List(artifact.TypeChangeRequest)
	require.Len(t, entries, 1)
	var plan changereq.Plan
	require.NoError(t, h.store.FetchStructured(context.Background(), entries[0].Ref, &plan))
	assert.Equal(t, phase.ConsensusArchitecture, plan.Target)
}

func TestExecutor_ProductionGateRoutesCheckFailure(t *testing.T) {
	h := newHarness(t, approveAll)
	h.deliverAll()

	var qaRuns int
	h.exec.RegisterHandler(HandlerFunc{P: phase.QAValidation, Fn: func(ctx context.Context, req *PhaseRequest) (*Deliverable, error) {
		qaRuns++
		return &Deliverable{Artifacts: map[artifact.Type][]byte{artifact.TypeQAValidation: []byte(qaReport)}}, nil
	}})
	// Fail the build only once the pipeline reaches the production gate.
	h.exec.RegisterHandler(HandlerFunc{P: phase.Audit, Fn: func(ctx context.Context, req *PhaseRequest) (*Deliverable, error) {
		if req.State.Retries[phase.ProductionGate] == 0 && len(req.State.ChangeRequests) == 0 {
			h.checks.setFail(checks.TypeBuild, "link error")
		} else {
			h.checks.setFail(checks.TypeBuild, "")
		}
		return &Deliverable{Artifacts: map[artifact.Type][]byte{artifact.TypeAuditReport: []byte(cleanAudit)}}, nil
	}})

	st, err := h.exec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, phase.Done, st.Phase)
	assert.Equal(t, 1, transitions(st, phase.ProductionGate, phase.QAValidation))
	assert.Equal(t, 2, qaRuns)
	require.NotEmpty(t, st.ChangeRequests)
	assert.Equal(t, changereq.CategoryDeployment, st.ChangeRequests[0].Finding.Category)
}

func TestExecutor_ResumeAfterCancel(t *testing.T) {
	h := newHarness(t, approveAll)
	h.deliverAll()

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := false
	h.exec.RegisterHandler(HandlerFunc{P: phase.RolePlanning, Fn: func(c context.Context, req *PhaseRequest) (*Deliverable, error) {
		if !cancelled {
			cancelled = true
			cancel()
			return nil, c.Err()
		}
		return &Deliverable{Artifacts: map[artifact.Type][]byte{artifact.TypeRolePlan: []byte(rolePlan)}}, nil
	}})

	st, err := h.exec.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, phase.RolePlanning, st.Phase)
	runID := st.RunID

	persisted, err := h.exec.State()
	require.NoError(t, err)
	assert.Equal(t, phase.RolePlanning, persisted.Phase)
	assert.Zero(t, persisted.Retries[phase.RolePlanning], "cancellation consumes no retry")

	st, err = h.exec.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, phase.Done, st.Phase)
	assert.Equal(t, runID, st.RunID)
}

func TestExecutor_ResumeWithoutState(t *testing.T) {
	h := newHarness(t, approveAll)
	_, err := h.exec.Resume(context.Background())
	assert.ErrorIs(t, err, ErrNoState)
}

func TestExecutor_PinnedRoles(t *testing.T) {
	h := newHarness(t, approveAll, WithRoles(skills.RoleArchitect, skills.RoleFrontend))
	h.deliverAll()

	var got map[skills.Role]*skills.Definition
	h.exec.RegisterHandler(HandlerFunc{P: phase.Architecture, Fn: func(ctx context.Context, req *PhaseRequest) (*Deliverable, error) {
		got = req.Skills
		return &Deliverable{Artifacts: map[artifact.Type][]byte{artifact.TypeArchitecture: []byte(architectureDoc)}}, nil
	}})

	st, err := h.exec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []skills.Role{skills.RoleArchitect, skills.RoleFrontend}, st.Roles)
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[skills.RoleFrontend].SystemPrompt)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, percentage(phase.Intake, nil))
	assert.Equal(t, 100, percentage(phase.Done, nil))
	st := &PipelineState{History: []Transition{{From: phase.Audit, To: phase.Stuck}}}
	assert.Equal(t, percentage(phase.Audit, nil), percentage(phase.Stuck, st))

	st.Phase = phase.Done
	assert.Equal(t, 100, st.Percentage())
}
