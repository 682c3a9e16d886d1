package gate

import (
	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/checks"
	"github.com/fyrsmithlabs/quorum/internal/consensus"
	"github.com/fyrsmithlabs/quorum/internal/phase"
)

// Definition is the gate guarding the exit of one phase.
type Definition struct {
	Phase phase.Phase
	// ArtifactType is the deliverable the gate inspects and, when
	// Consensus is set, the proposal reviewers vote on.
	ArtifactType artifact.Type
	// Validators name the artifact types whose completeness must pass.
	Validators []artifact.Type
	// RequiredChecks fail the gate when they fail or have no command.
	RequiredChecks []checks.Type
	// OptionalChecks are skipped when no command resolves, but still block
	// when they run and fail.
	OptionalChecks []checks.Type
	// Consensus is nil for gates without a reviewer vote.
	Consensus *consensus.Rules
	// NoOpWithoutArtifact passes the gate outright when ArtifactType is
	// set but no such deliverable exists.
	NoOpWithoutArtifact bool
}

// HasConsensus reports whether the gate runs a reviewer vote.
func (d Definition) HasConsensus() bool {
	return d.Consensus != nil
}

// MaxIterations is the consensus loop-back budget, zero without consensus.
func (d Definition) MaxIterations() int {
	if d.Consensus == nil {
		return 0
	}
	return d.Consensus.MaxIterations
}

// Defaults returns a gate for every non-terminal phase. rules is the base
// consensus rule set; the recovery loop runs it in iterative mode.
func Defaults(rules consensus.Rules) map[phase.Phase]Definition {
	independent := rules
	independent.Mode = consensus.ModeIndependent
	iterative := rules
	iterative.Mode = consensus.ModeIterative

	withRules := func(r consensus.Rules) *consensus.Rules { return &r }

	return map[phase.Phase]Definition{
		phase.Intake: {
			Phase:        phase.Intake,
			ArtifactType: artifact.TypeMasterPlan,
			Validators:   []artifact.Type{artifact.TypeMasterPlan},
		},
		phase.ConsensusMasterPlan: {
			Phase:        phase.ConsensusMasterPlan,
			ArtifactType: artifact.TypeMasterPlan,
			Consensus:    withRules(independent),
		},
		phase.Architecture: {
			Phase:        phase.Architecture,
			ArtifactType: artifact.TypeArchitecture,
			Validators:   []artifact.Type{artifact.TypeArchitecture},
		},
		phase.ConsensusArchitecture: {
			Phase:        phase.ConsensusArchitecture,
			ArtifactType: artifact.TypeArchitecture,
			Consensus:    withRules(independent),
		},
		phase.RolePlanning: {
			Phase:        phase.RolePlanning,
			ArtifactType: artifact.TypeRolePlan,
			Validators:   []artifact.Type{artifact.TypeRolePlan},
		},
		phase.ConsensusRolePlans: {
			Phase:        phase.ConsensusRolePlans,
			ArtifactType: artifact.TypeRolePlan,
			Consensus:    withRules(independent),
		},
		phase.Implementation: {
			Phase:          phase.Implementation,
			RequiredChecks: []checks.Type{checks.TypeBuild, checks.TypeTest, checks.TypePlaceholder},
			OptionalChecks: []checks.Type{checks.TypeLint, checks.TypeTypecheck},
		},
		phase.QAValidation: {
			Phase:          phase.QAValidation,
			ArtifactType:   artifact.TypeQAValidation,
			Validators:     []artifact.Type{artifact.TypeQAValidation},
			RequiredChecks: []checks.Type{checks.TypeTest},
			OptionalChecks: []checks.Type{checks.TypeLint, checks.TypeTypecheck, checks.TypeMigration},
		},
		phase.Review: {
			Phase:        phase.Review,
			ArtifactType: artifact.TypeReviewReport,
			Validators:   []artifact.Type{artifact.TypeReviewReport},
			Consensus:    withRules(independent),
		},
		phase.Audit: {
			Phase:          phase.Audit,
			ArtifactType:   artifact.TypeAuditReport,
			Validators:     []artifact.Type{artifact.TypeAuditReport},
			RequiredChecks: []checks.Type{checks.TypeSecrets},
		},
		phase.ProductionGate: {
			Phase:          phase.ProductionGate,
			RequiredChecks: []checks.Type{checks.TypeBuild, checks.TypeTest, checks.TypeEnv, checks.TypePlaceholder, checks.TypeSecrets},
			OptionalChecks: []checks.Type{checks.TypeMigration, checks.TypeStart},
		},
		phase.RecoveryLoop: {
			Phase:               phase.RecoveryLoop,
			ArtifactType:        artifact.TypeRecoveryPlan,
			Validators:          []artifact.Type{artifact.TypeRecoveryPlan},
			Consensus:           withRules(iterative),
			NoOpWithoutArtifact: true,
		},
	}
}
