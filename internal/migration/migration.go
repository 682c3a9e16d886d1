// Package migration converts pipelines recorded by the legacy two-phase
// workflow (plan, execution, complete) into PipelineState and maps new
// phases back for status reporting.
package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/constitution"
	"github.com/fyrsmithlabs/quorum/internal/orchestrator"
	"github.com/fyrsmithlabs/quorum/internal/phase"
	"github.com/fyrsmithlabs/quorum/internal/sanitize"
	"github.com/fyrsmithlabs/quorum/internal/skills"
)

// LegacyPhase is a phase of the legacy workflow.
type LegacyPhase string

const (
	LegacyPlan      LegacyPhase = "plan"
	LegacyExecution LegacyPhase = "execution"
	LegacyComplete  LegacyPhase = "complete"
)

// ErrUnknownLegacyPhase is returned for records in a phase this package
// cannot map.
var ErrUnknownLegacyPhase = errors.New("unknown legacy phase")

// Record is the legacy project state document.
type Record struct {
	Name      string      `yaml:"name" json:"name"`
	Language  string      `yaml:"language" json:"language"`
	Type      string      `yaml:"type" json:"type"`
	Phase     LegacyPhase `yaml:"phase" json:"phase"`
	PlanFile  string      `yaml:"plan_file,omitempty" json:"plan_file,omitempty"`
	UpdatedAt time.Time   `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// ReadRecord decodes a legacy record. YAML and JSON are both accepted.
func ReadRecord(path string) (*Record, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading legacy record: %w", err)
	}
	var rec Record
	if err := yaml.Unmarshal(content, &rec); err != nil {
		return nil, fmt.Errorf("decoding legacy record %s: %w", path, err)
	}
	rec.Phase = LegacyPhase(strings.ToLower(strings.TrimSpace(string(rec.Phase))))
	return &rec, nil
}

// FromLegacy maps rec onto a fresh PipelineState: plan starts at INTAKE,
// execution at IMPLEMENTATION, complete is DONE. Roles come from the
// record's declared language and type.
func FromLegacy(rec *Record, projectDir string, now time.Time) (*orchestrator.PipelineState, error) {
	if rec == nil {
		return nil, errors.New("nil legacy record")
	}
	var p phase.Phase
	switch rec.Phase {
	case LegacyPlan:
		p = phase.Intake
	case LegacyExecution:
		p = phase.Implementation
	case LegacyComplete:
		p = phase.Done
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLegacyPhase, rec.Phase)
	}

	st := orchestrator.NewPipelineState(uuid.NewString(), projectDir, now.UTC())
	st.Phase = p
	st.Roles = skills.RolesFor(rec.Language, rec.Type)
	st.Legacy = map[string]string{
		"phase": string(rec.Phase),
	}
	if rec.Name != "" {
		st.Legacy["name"] = rec.Name
	}
	if rec.Language != "" {
		st.Legacy["language"] = rec.Language
	}
	if rec.Type != "" {
		st.Legacy["type"] = rec.Type
	}
	if p != phase.Intake {
		st.History = append(st.History, orchestrator.Transition{
			From:   phase.Intake,
			To:     p,
			Reason: fmt.Sprintf("migrated from legacy %s phase", rec.Phase),
			At:     now.UTC(),
		})
	}
	return st, nil
}

// ToLegacy collapses p onto its legacy equivalent. The switch lists every
// phase; TestToLegacy_Total fails when a new phase is added without a
// mapping.
func ToLegacy(p phase.Phase) LegacyPhase {
	//exhaustive:enforce
	switch p {
	case phase.Intake,
		phase.ConsensusMasterPlan,
		phase.Architecture,
		phase.ConsensusArchitecture,
		phase.RolePlanning,
		phase.ConsensusRolePlans:
		return LegacyPlan
	case phase.Implementation,
		phase.QAValidation,
		phase.Review,
		phase.Audit,
		phase.ProductionGate,
		phase.RecoveryLoop,
		phase.Stuck:
		return LegacyExecution
	case phase.Done:
		return LegacyComplete
	}
	return ""
}

// Migrator writes a migrated pipeline into a project.
type Migrator struct {
	States     *orchestrator.StateStore
	Store      *artifact.Store
	Governance constitution.Document
	Now        func() time.Time
}

// Migrate converts rec and persists it. It refuses to overwrite an
// existing pipeline. A legacy plan file becomes the master plan artifact,
// and the governance hash is recorded when the document exists.
func (m *Migrator) Migrate(ctx context.Context, rec *Record) (*orchestrator.PipelineState, error) {
	if m.States.Exists() {
		return nil, orchestrator.ErrStateExists
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}

	st, err := FromLegacy(rec, m.Governance.ProjectDir, now())
	if err != nil {
		return nil, err
	}

	if hash, err := m.Governance.Hash(); err == nil {
		st.ConstitutionHash = hash
	} else if !errors.Is(err, constitution.ErrNotFound) {
		return nil, err
	}

	if rec.PlanFile != "" && m.Store != nil {
		path, err := sanitize.ValidatePath(rec.PlanFile, m.Governance.ProjectDir)
		if err != nil {
			return nil, fmt.Errorf("legacy plan_file: %w", err)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading legacy plan: %w", err)
		}
		entry, err := m.Store.Store(ctx, artifact.TypeMasterPlan, string(artifact.TypeMasterPlan), content, string(phase.Intake))
		if err != nil {
			return nil, err
		}
		st.Artifacts[string(artifact.TypeMasterPlan)] = entry.Ref
	}

	if err := m.States.Save(st); err != nil {
		return nil, err
	}
	return st, nil
}
