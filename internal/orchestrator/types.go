package orchestrator

import (
	"maps"
	"slices"
	"time"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/changereq"
	"github.com/fyrsmithlabs/quorum/internal/gate"
	"github.com/fyrsmithlabs/quorum/internal/phase"
	"github.com/fyrsmithlabs/quorum/internal/skills"
)

// StateVersion is the on-disk schema version of PipelineState.
const StateVersion = 1

// PhaseStatus is the status reported with progress updates.
type PhaseStatus string

const (
	StatusInProgress PhaseStatus = "in_progress"
	StatusCompleted  PhaseStatus = "completed"
	StatusFailed     PhaseStatus = "failed"
	StatusSkipped    PhaseStatus = "skipped"
)

// Severity indicates how a failure is handled.
type Severity string

const (
	// SeverityError failures consume retry or iteration budget.
	SeverityError Severity = "error"
	// SeverityCritical failures halt the phase without retrying.
	SeverityCritical Severity = "critical"
)

// Transition is one recorded phase change.
type Transition struct {
	From   phase.Phase `json:"from"`
	To     phase.Phase `json:"to"`
	Reason string      `json:"reason"`
	At     time.Time   `json:"at"`
}

// Failure is the most recent gate or handler failure.
type Failure struct {
	Phase    phase.Phase `json:"phase"`
	Stage    gate.Stage  `json:"stage,omitempty"`
	Kind     gate.Kind   `json:"kind,omitempty"`
	Severity Severity    `json:"severity"`
	Reason   string      `json:"reason"`
	At       time.Time   `json:"at"`
}

// Feedback is handed to the next handler run after a failure or a
// loop-back so it can address what went wrong.
type Feedback struct {
	From           phase.Phase               `json:"from"`
	Reason         string                    `json:"reason"`
	BlockingIssues []string                  `json:"blocking_issues,omitempty"`
	Suggestions    []string                  `json:"suggestions,omitempty"`
	ChangeRequests []changereq.ChangeRequest `json:"change_requests,omitempty"`
}

// PipelineState is the durable record of one pipeline run. It is saved
// after every mutation.
type PipelineState struct {
	Version          int                       `json:"version"`
	RunID            string                    `json:"run_id"`
	ProjectDir       string                    `json:"project_dir"`
	Phase            phase.Phase               `json:"phase"`
	Roles            []skills.Role             `json:"roles"`
	ConstitutionHash string                    `json:"constitution_hash,omitempty"`
	Iterations       map[phase.Phase]int       `json:"iterations"`
	Retries          map[phase.Phase]int       `json:"retries"`
	History          []Transition              `json:"history"`
	Artifacts        map[string]artifact.Ref   `json:"artifacts"`
	ChangeRequests   []changereq.ChangeRequest `json:"change_requests,omitempty"`
	Feedback         *Feedback                 `json:"feedback,omitempty"`
	LastFailure      *Failure                  `json:"last_failure,omitempty"`
	Legacy           map[string]string         `json:"legacy,omitempty"`
	StartedAt        time.Time                 `json:"started_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

// NewPipelineState creates a state at INTAKE.
func NewPipelineState(runID, projectDir string, now time.Time) *PipelineState {
	return &PipelineState{
		Version:    StateVersion,
		RunID:      runID,
		ProjectDir: projectDir,
		Phase:      phase.Intake,
		Roles:      []skills.Role{},
		Iterations: make(map[phase.Phase]int),
		Retries:    make(map[phase.Phase]int),
		History:    []Transition{},
		Artifacts:  make(map[string]artifact.Ref),
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

// CurrentPhase returns the phase the pipeline is in.
func (s *PipelineState) CurrentPhase() phase.Phase {
	return s.Phase
}

// ActiveRoles returns a copy of the active roles.
func (s *PipelineState) ActiveRoles() []skills.Role {
	return slices.Clone(s.Roles)
}

// ArtifactRefs returns a copy of the latest artifact refs by key.
func (s *PipelineState) ArtifactRefs() map[string]artifact.Ref {
	return maps.Clone(s.Artifacts)
}

// Artifact returns the latest ref stored under key.
func (s *PipelineState) Artifact(key string) (artifact.Ref, bool) {
	ref, ok := s.Artifacts[key]
	return ref, ok
}

// Terminal reports whether the pipeline is DONE or STUCK.
func (s *PipelineState) Terminal() bool {
	return s.Phase.Terminal()
}

// normalize fills maps a decoded state may lack.
// Percentage reports how far through the phase chain the run is. A STUCK
// run reports the phase it got stuck in.
func (s *PipelineState) Percentage() int {
	return percentage(s.Phase, s)
}

func (s *PipelineState) normalize() {
	if s.Iterations == nil {
		s.Iterations = make(map[phase.Phase]int)
	}
	if s.Retries == nil {
		s.Retries = make(map[phase.Phase]int)
	}
	if s.Artifacts == nil {
		s.Artifacts = make(map[string]artifact.Ref)
	}
	if s.History == nil {
		s.History = []Transition{}
	}
	if s.Roles == nil {
		s.Roles = []skills.Role{}
	}
}

// artifactKey is the state key of the latest artifact of typ.
func artifactKey(typ artifact.Type) string {
	return string(typ)
}

// packetKey is the state key of the plan packet proposed with typ.
func packetKey(typ artifact.Type) string {
	return string(artifact.TypePlanPacket) + "/" + string(typ)
}

const snapshotKey = string(artifact.TypeRepoSnapshot)
