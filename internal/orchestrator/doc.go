// Package orchestrator drives a delivery pipeline through its governed
// phases.
//
// # Overview
//
// A pipeline moves forward through
//
//	INTAKE → CONSENSUS_MASTER_PLAN → ARCHITECTURE → CONSENSUS_ARCHITECTURE →
//	ROLE_PLANNING → CONSENSUS_ROLE_PLANS → IMPLEMENTATION → QA_VALIDATION →
//	REVIEW → AUDIT → PRODUCTION_GATE → RECOVERY_LOOP → DONE
//
// Each phase runs its registered PhaseHandler, stores the deliverable in
// the artifact store, captures a repository snapshot and then evaluates
// the phase's exit gate. Only a passing gate advances the pipeline.
//
// # Failure policy
//
//   - Governance or artifact integrity failures halt the phase with an
//     *IntegrityError. Nothing advances and no budget is consumed.
//   - A rejected consensus vote loops back to the planning phase that
//     produced the proposal, bounded by the gate's iteration budget.
//   - Failures at REVIEW, AUDIT, PRODUCTION_GATE and RECOVERY_LOOP become
//     change requests routed to the earliest phase that owns the fix.
//   - Anything else retries the phase with feedback for the handler.
//
// Exhausting a budget moves the pipeline to STUCK, which only Reset clears.
//
// # Persistence
//
// PipelineState is written atomically after every mutation, so Resume
// continues from the last recorded phase after a crash or cancellation.
//
// # Usage Example
//
//	store, _ := artifact.Open(filepath.Join(dir, ".quorum", "artifacts"))
//	engine := gate.NewEngine(gate.WithConsensusRunner(runner))
//	exec := orchestrator.NewExecutor(dir, store, engine,
//	    orchestrator.WithLogger(logger),
//	    orchestrator.WithPublisher(publisher),
//	)
//	for _, h := range orchestrator.DirHandlers(filepath.Join(dir, ".quorum", "deliverables")) {
//	    exec.RegisterHandler(h)
//	}
//	state, err := exec.Run(ctx)
package orchestrator
