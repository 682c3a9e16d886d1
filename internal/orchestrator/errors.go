package orchestrator

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/quorum/internal/checks"
	"github.com/fyrsmithlabs/quorum/internal/consensus"
	"github.com/fyrsmithlabs/quorum/internal/phase"
	"github.com/fyrsmithlabs/quorum/internal/validate"
)

// Error taxonomy. Each sentinel matches its typed error through errors.Is.
var (
	ErrIntegrity         = errors.New("integrity violation")
	ErrSandboxRejection  = checks.ErrSandboxRejected
	ErrTimeout           = checks.ErrTimeout
	ErrReviewerFailure   = consensus.ErrReviewerFailure
	ErrConsensusRejected = consensus.ErrConsensusRejected
	ErrStructural        = validate.ErrStructural
	ErrStuck             = errors.New("pipeline is stuck")
)

var (
	// ErrNoState is returned by Resume when no pipeline has been started.
	ErrNoState = errors.New("no pipeline state")

	// ErrStateExists is returned by Run when a pipeline is already in
	// progress.
	ErrStateExists = errors.New("pipeline state already exists")
)

// IntegrityError halts a phase: the governance document or a stored
// artifact no longer matches its recorded hash. It is never retried.
type IntegrityError struct {
	Phase  phase.Phase
	Reason string
	Err    error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation at %s: %s", e.Phase, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrIntegrity) true.
func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// StuckError reports a pipeline that exhausted a retry or iteration
// budget. Only Reset clears it.
type StuckError struct {
	Phase  phase.Phase
	Reason string
}

func (e *StuckError) Error() string {
	return fmt.Sprintf("pipeline stuck at %s: %s", e.Phase, e.Reason)
}

// Is makes errors.Is(err, ErrStuck) true.
func (e *StuckError) Is(target error) bool { return target == ErrStuck }
