package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/changereq"
	"github.com/fyrsmithlabs/quorum/internal/commands"
	"github.com/fyrsmithlabs/quorum/internal/consensus"
	"github.com/fyrsmithlabs/quorum/internal/gate"
	"github.com/fyrsmithlabs/quorum/internal/phase"
	"github.com/fyrsmithlabs/quorum/internal/snapshot"
)

// gateInput assembles what def inspects. Stored artifacts are re-read and
// re-hashed; an *artifact.IntegrityError is returned as is.
func (e *Executor) gateInput(ctx context.Context, st *PipelineState, def gate.Definition, snap *snapshot.Snapshot) (gate.Input, error) {
	in := gate.Input{
		Dir:          e.projectDir,
		Governance:   e.governance,
		RecordedHash: st.ConstitutionHash,
		Artifacts:    make(map[artifact.Type][]byte),
		Commands:     commands.Resolve(snap, e.overrides),
		Revise:       e.reviser,
	}

	types := slices.Clone(def.Validators)
	if def.ArtifactType != "" && !slices.Contains(types, def.ArtifactType) {
		types = append(types, def.ArtifactType)
	}
	for _, typ := range types {
		ref, ok := st.Artifact(artifactKey(typ))
		if !ok {
			continue
		}
		content, err := e.store.Fetch(ctx, ref)
		if err != nil {
			return in, err
		}
		in.Artifacts[typ] = content
	}

	if def.HasConsensus() && def.ArtifactType != "" {
		if _, ok := in.Artifacts[def.ArtifactType]; ok {
			pkt, err := e.planPacket(ctx, st, def)
			if err != nil {
				return in, err
			}
			in.Packet = pkt
		}
	}
	return in, nil
}

// planPacket returns the proposal for def's artifact: the one the handler
// supplied, or one derived from the owning role's skill definition.
func (e *Executor) planPacket(ctx context.Context, st *PipelineState, def gate.Definition) (*consensus.PlanPacket, error) {
	ref, _ := st.Artifact(artifactKey(def.ArtifactType))

	if pref, ok := st.Artifact(packetKey(def.ArtifactType)); ok {
		var pkt consensus.PlanPacket
		if err := e.store.FetchStructured(ctx, pref, &pkt); err != nil {
			return nil, err
		}
		if pkt.Meta.Phase == "" {
			pkt.Meta.Phase = string(def.Phase)
		}
		if pkt.Artifact == nil {
			pkt.Artifact = &ref
		}
		return &pkt, nil
	}
	return e.derivePacket(st, def, ref), nil
}

// derivePacket builds a proposal whose acceptance criteria are the owning
// role's required outputs and whose constraints are its rules plus the
// governance document.
func (e *Executor) derivePacket(st *PipelineState, def gate.Definition, ref artifact.Ref) *consensus.PlanPacket {
	role := OwnerRole(def.ArtifactType)
	pkt := &consensus.PlanPacket{
		Meta: consensus.PacketMeta{
			ID:      uuid.NewString(),
			Phase:   string(def.Phase),
			Role:    string(role),
			Version: ref.Version,
		},
		Summary:  fmt.Sprintf("%s v%d proposed by %s", def.ArtifactType, ref.Version, role),
		Artifact: &ref,
		Evidence: []artifact.Ref{ref},
		Constraints: []consensus.Constraint{
			{Type: "governance", Description: "conforms to " + e.governance.File},
		},
	}
	if snap, ok := st.Artifact(snapshotKey); ok {
		pkt.Evidence = append(pkt.Evidence, snap)
	}

	if d, err := e.skills.Load(role); err == nil {
		for _, out := range d.RequiredOutputs {
			pkt.AcceptanceCriteria = append(pkt.AcceptanceCriteria, "The deliverable covers "+out)
		}
		for _, c := range d.Constraints {
			pkt.Constraints = append(pkt.Constraints, consensus.Constraint{Type: string(role), Description: c})
		}
	}
	if len(pkt.AcceptanceCriteria) == 0 {
		pkt.AcceptanceCriteria = []string{fmt.Sprintf("The %s is complete, consistent and implementable", strings.ReplaceAll(string(def.ArtifactType), "_", " "))}
	}
	if st.Feedback != nil {
		for _, issue := range st.Feedback.BlockingIssues {
			pkt.AcceptanceCriteria = append(pkt.AcceptanceCriteria, "Resolves: "+issue)
		}
	}
	return pkt
}

// findings collects every problem a failed routing gate raised.
func (e *Executor) findings(ctx context.Context, st *PipelineState, p phase.Phase, out *gate.Outcome) []changereq.Finding {
	var fs []changereq.Finding
	for _, r := range out.Checks {
		if f, ok := changereq.FromCheck(r); ok {
			fs = append(fs, f)
		}
	}
	fs = append(fs, changereq.FromBlockingIssues(strings.ToLower(string(p)), out.BlockingIssues())...)
	fs = append(fs, e.auditFindings(ctx, st, p)...)
	return fs
}

// auditFindings reads the findings of the stored audit report when p is
// AUDIT. Findings at info or low severity are not returned.
func (e *Executor) auditFindings(ctx context.Context, st *PipelineState, p phase.Phase) []changereq.Finding {
	if p != phase.Audit {
		return nil
	}
	ref, ok := st.Artifact(artifactKey(artifact.TypeAuditReport))
	if !ok {
		return nil
	}
	content, err := e.store.Fetch(ctx, ref)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.Warn(ctx, "reading audit report for findings", zap.Error(err))
		}
		return nil
	}
	return changereq.FromAuditReport(content)
}

// feedbackFrom turns a failed outcome into handler feedback.
func feedbackFrom(p phase.Phase, out *gate.Outcome) *Feedback {
	fb := &Feedback{From: p, Reason: out.Reason, BlockingIssues: out.BlockingIssues()}
	if out.Consensus != nil {
		for _, v := range out.Consensus.Votes {
			fb.Suggestions = append(fb.Suggestions, v.Suggestions...)
		}
	}
	for _, r := range out.Validation {
		fb.BlockingIssues = append(fb.BlockingIssues, r.Errors...)
	}
	return fb
}
