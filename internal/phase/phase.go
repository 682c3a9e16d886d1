// Package phase defines the governed pipeline phases and their ordering.
package phase

import "fmt"

// Phase is one state of the pipeline.
type Phase string

const (
	Intake                Phase = "INTAKE"
	ConsensusMasterPlan   Phase = "CONSENSUS_MASTER_PLAN"
	Architecture          Phase = "ARCHITECTURE"
	ConsensusArchitecture Phase = "CONSENSUS_ARCHITECTURE"
	RolePlanning          Phase = "ROLE_PLANNING"
	ConsensusRolePlans    Phase = "CONSENSUS_ROLE_PLANS"
	Implementation        Phase = "IMPLEMENTATION"
	QAValidation          Phase = "QA_VALIDATION"
	Review                Phase = "REVIEW"
	Audit                 Phase = "AUDIT"
	ProductionGate        Phase = "PRODUCTION_GATE"
	RecoveryLoop          Phase = "RECOVERY_LOOP"
	Done                  Phase = "DONE"
	Stuck                 Phase = "STUCK"
)

// order is the forward sequence. STUCK sits outside it.
var order = []Phase{
	Intake,
	ConsensusMasterPlan,
	Architecture,
	ConsensusArchitecture,
	RolePlanning,
	ConsensusRolePlans,
	Implementation,
	QAValidation,
	Review,
	Audit,
	ProductionGate,
	RecoveryLoop,
	Done,
}

// All returns every phase in forward order, followed by STUCK.
func All() []Phase {
	return append(append([]Phase(nil), order...), Stuck)
}

// Parse converts s into a known phase.
func Parse(s string) (Phase, error) {
	p := Phase(s)
	if p == Stuck || p.Index() >= 0 {
		return p, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// Index is the position of p in the forward sequence, or -1 for STUCK and
// unknown values.
func (p Phase) Index() int {
	for i, q := range order {
		if q == p {
			return i
		}
	}
	return -1
}

// Before reports whether p comes strictly earlier than q in the sequence.
func (p Phase) Before(q Phase) bool {
	i, j := p.Index(), q.Index()
	return i >= 0 && j >= 0 && i < j
}

// Next returns the following phase. Terminal phases return themselves.
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 || p == Done {
		return p
	}
	return order[i+1]
}

// Terminal reports whether no further transition happens without a reset.
func (p Phase) Terminal() bool {
	return p == Done || p == Stuck
}

// Consensus reports whether the phase is gated by a reviewer vote.
func (p Phase) Consensus() bool {
	switch p {
	case ConsensusMasterPlan, ConsensusArchitecture, ConsensusRolePlans:
		return true
	}
	return false
}

// Planning returns the phase that produces the proposal a consensus phase
// votes on. Other phases return "".
func (p Phase) Planning() Phase {
	switch p {
	case ConsensusMasterPlan:
		return Intake
	case ConsensusArchitecture:
		return Architecture
	case ConsensusRolePlans:
		return RolePlanning
	}
	return ""
}

// Routes reports whether findings raised in p may send the pipeline back
// to an earlier phase through a change request.
func (p Phase) Routes() bool {
	switch p {
	case Review, Audit, ProductionGate, RecoveryLoop:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is allowed. Resets are not
// transitions and bypass this table.
func CanTransition(from, to Phase) error {
	switch {
	case from.Terminal():
		return fmt.Errorf("phase %s is terminal", from)
	case to.Index() < 0 && to != Stuck:
		return fmt.Errorf("unknown target phase %q", to)
	case to == Stuck:
		return nil
	case to == from.Next():
		return nil
	case from.Consensus() && to == from.Planning():
		return nil
	case from.Routes() && to.Before(from):
		return nil
	}
	return fmt.Errorf("cannot transition from %s to %s", from, to)
}
