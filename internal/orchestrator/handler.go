package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/consensus"
	"github.com/fyrsmithlabs/quorum/internal/phase"
	"github.com/fyrsmithlabs/quorum/internal/skills"
)

// PhaseRequest is what a handler receives. State is a snapshot copy;
// handlers must not expect changes to it to persist.
type PhaseRequest struct {
	Phase    phase.Phase
	State    PipelineState
	Skills   map[skills.Role]*skills.Definition
	Feedback *Feedback
}

// Deliverable is a handler's output for one phase.
type Deliverable struct {
	Artifacts map[artifact.Type][]byte
	// Packet is the proposal reviewers vote on for the artifact of the
	// next consensus gate. Nil lets the orchestrator derive one.
	Packet  *consensus.PlanPacket
	Summary string
}

// PhaseHandler produces the deliverable of one phase.
type PhaseHandler interface {
	Phase() phase.Phase
	Execute(ctx context.Context, req *PhaseRequest) (*Deliverable, error)
}

// HandlerFunc adapts a function to PhaseHandler.
type HandlerFunc struct {
	P  phase.Phase
	Fn func(ctx context.Context, req *PhaseRequest) (*Deliverable, error)
}

// Phase implements PhaseHandler.
func (h HandlerFunc) Phase() phase.Phase { return h.P }

// Execute implements PhaseHandler.
func (h HandlerFunc) Execute(ctx context.Context, req *PhaseRequest) (*Deliverable, error) {
	return h.Fn(ctx, req)
}

// produces lists the artifact types each phase delivers.
var produces = map[phase.Phase][]artifact.Type{
	phase.Intake:       {artifact.TypeMasterPlan},
	phase.Architecture: {artifact.TypeArchitecture},
	phase.RolePlanning: {artifact.TypeRolePlan},
	phase.QAValidation: {artifact.TypeQAValidation},
	phase.Review:       {artifact.TypeReviewReport},
	phase.Audit:        {artifact.TypeAuditReport},
	phase.RecoveryLoop: {artifact.TypeRecoveryPlan},
}

// Produces returns the artifact types p delivers.
func Produces(p phase.Phase) []artifact.Type {
	return append([]artifact.Type(nil), produces[p]...)
}

// DirHandler reads deliverables a human or an external agent dropped on
// disk. For each artifact type the phase produces it looks for
// <dir>/<phase>/<type>.md|.json, then <dir>/<type>.md|.json. A
// plan_packet.json next to the artifact becomes the proposal.
type DirHandler struct {
	dir string
	p   phase.Phase
}

// NewDirHandler creates a handler for p rooted at dir.
func NewDirHandler(dir string, p phase.Phase) *DirHandler {
	return &DirHandler{dir: dir, p: p}
}

// DirHandlers returns a DirHandler for every phase that produces an
// artifact.
func DirHandlers(dir string) []PhaseHandler {
	var out []PhaseHandler
	for _, p := range phase.All() {
		if len(produces[p]) > 0 {
			out = append(out, NewDirHandler(dir, p))
		}
	}
	return out
}

// Phase implements PhaseHandler.
func (h *DirHandler) Phase() phase.Phase { return h.p }

// Execute implements PhaseHandler. Missing files are not an error; the
// gate decides whether an absent deliverable is acceptable.
func (h *DirHandler) Execute(ctx context.Context, _ *PhaseRequest) (*Deliverable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := &Deliverable{Artifacts: make(map[artifact.Type][]byte)}
	dirs := []string{filepath.Join(h.dir, strings.ToLower(string(h.p))), h.dir}

	for _, typ := range produces[h.p] {
		content, _, err := readFirst(dirs, string(typ)+".md", string(typ)+".json")
		if err != nil {
			return nil, err
		}
		if len(content) > 0 {
			d.Artifacts[typ] = content
		}
	}

	raw, path, err := readFirst(dirs[:1], "plan_packet.json")
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		var pkt consensus.PlanPacket
		if err := json.Unmarshal(raw, &pkt); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		d.Packet = &pkt
	}
	return d, nil
}

// readFirst returns the first existing file among dirs x names.
func readFirst(dirs []string, names ...string) ([]byte, string, error) {
	for _, dir := range dirs {
		for _, name := range names {
			p := filepath.Join(dir, name)
			content, err := os.ReadFile(p)
			if err == nil {
				return content, p, nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				return nil, p, fmt.Errorf("read deliverable %s: %w", p, err)
			}
		}
	}
	return nil, "", nil
}
