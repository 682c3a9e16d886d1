package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/changereq"
	"github.com/fyrsmithlabs/quorum/internal/commands"
	"github.com/fyrsmithlabs/quorum/internal/consensus"
	"github.com/fyrsmithlabs/quorum/internal/constitution"
	"github.com/fyrsmithlabs/quorum/internal/events"
	"github.com/fyrsmithlabs/quorum/internal/gate"
	"github.com/fyrsmithlabs/quorum/internal/logging"
	"github.com/fyrsmithlabs/quorum/internal/phase"
	"github.com/fyrsmithlabs/quorum/internal/skills"
	"github.com/fyrsmithlabs/quorum/internal/snapshot"
)

const instrumentationName = "github.com/fyrsmithlabs/quorum/internal/orchestrator"

// DefaultMaxRetries is the per-phase retry budget.
const DefaultMaxRetries = 3

// PhaseProgress reports progress during execution
type PhaseProgress struct {
	Phase      phase.Phase `json:"phase"`
	Status     PhaseStatus `json:"status"`
	Message    string      `json:"message"`
	Percentage int         `json:"percentage"`
}

// ProgressCallback receives progress updates during execution
type ProgressCallback func(progress PhaseProgress)

// Executor drives a pipeline through its phases, evaluating the exit gate
// of each one and persisting state after every mutation.
type Executor struct {
	projectDir string
	states     *StateStore
	store      *artifact.Store
	engine     *gate.Engine
	defs       map[phase.Phase]gate.Definition
	governance constitution.Document
	snapshots  *snapshot.Generator
	skills     *skills.Loader
	overrides  commands.Commands
	reviser    consensus.Reviser
	roles      []skills.Role
	maxRetries int

	handlers         map[phase.Phase]PhaseHandler
	progressCallback ProgressCallback
	publisher        events.Publisher
	logger           *logging.Logger
	tracer           trace.Tracer
	now              func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithStateDir stores state.json under dir instead of <project>/.quorum.
func WithStateDir(dir string) Option {
	return func(e *Executor) {
		if dir != "" {
			e.states = NewStateStore(dir)
		}
	}
}

// WithDefinitions replaces the gate definitions.
func WithDefinitions(defs map[phase.Phase]gate.Definition) Option {
	return func(e *Executor) {
		if defs != nil {
			e.defs = defs
		}
	}
}

// WithGovernance sets the governance document.
func WithGovernance(doc constitution.Document) Option {
	return func(e *Executor) { e.governance = doc }
}

// WithSnapshotGenerator sets the repository snapshot generator.
func WithSnapshotGenerator(g *snapshot.Generator) Option {
	return func(e *Executor) {
		if g != nil {
			e.snapshots = g
		}
	}
}

// WithSkillsLoader sets the role definition loader.
func WithSkillsLoader(l *skills.Loader) Option {
	return func(e *Executor) {
		if l != nil {
			e.skills = l
		}
	}
}

// WithCommandOverrides sets commands that win over detected ones.
func WithCommandOverrides(c commands.Commands) Option {
	return func(e *Executor) { e.overrides = c }
}

// WithReviser sets the proposal reviser used by iterative consensus.
func WithReviser(r consensus.Reviser) Option {
	return func(e *Executor) { e.reviser = r }
}

// WithRoles pins the active roles instead of inferring them at INTAKE.
func WithRoles(roles ...skills.Role) Option {
	return func(e *Executor) { e.roles = slices.Clone(roles) }
}

// WithMaxRetries sets the per-phase retry budget.
func WithMaxRetries(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithPublisher publishes pipeline events.
func WithPublisher(p events.Publisher) Option {
	return func(e *Executor) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer for pipeline spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor creates an executor for the project at projectDir. Gate
// definitions default to gate.Defaults with the default consensus rules.
func NewExecutor(projectDir string, store *artifact.Store, engine *gate.Engine, opts ...Option) *Executor {
	e := &Executor{
		projectDir: projectDir,
		states:     NewStateStore(filepath.Join(projectDir, ".quorum")),
		store:      store,
		engine:     engine,
		defs:       gate.Defaults(consensus.DefaultRules()),
		governance: constitution.New(projectDir, ""),
		snapshots:  snapshot.NewGenerator(),
		skills:     skills.NewLoader("", nil),
		maxRetries: DefaultMaxRetries,
		handlers:   make(map[phase.Phase]PhaseHandler),
		publisher:  events.Nop{},
		logger:     logging.Nop(),
		tracer:     otel.Tracer(instrumentationName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterHandler registers a phase handler
func (e *Executor) RegisterHandler(handler PhaseHandler) {
	e.handlers[handler.Phase()] = handler
}

// OnProgress sets the progress callback
func (e *Executor) OnProgress(callback ProgressCallback) {
	e.progressCallback = callback
}

// States returns the state store.
func (e *Executor) States() *StateStore {
	return e.states
}

// State loads the persisted state.
func (e *Executor) State() (*PipelineState, error) {
	return e.states.Load()
}

// Run starts a new pipeline at INTAKE and drives it until it is DONE,
// STUCK, halted, or ctx is cancelled. It fails with ErrStateExists when a
// pipeline is already recorded.
func (e *Executor) Run(ctx context.Context) (*PipelineState, error) {
	if e.states.Exists() {
		return nil, ErrStateExists
	}
	st := NewPipelineState(uuid.NewString(), e.projectDir, e.now().UTC())
	if err := e.states.Save(st); err != nil {
		return nil, err
	}
	return e.drive(ctx, st)
}

// Resume continues the recorded pipeline from its current phase. A STUCK
// pipeline returns a *StuckError until Reset.
func (e *Executor) Resume(ctx context.Context) (*PipelineState, error) {
	st, err := e.states.Load()
	if err != nil {
		return nil, err
	}
	if st.Phase == phase.Stuck {
		return st, stuckError(st)
	}
	return e.drive(ctx, st)
}

// Reset discards the recorded state. Stored artifacts are kept.
func (e *Executor) Reset() error {
	return e.states.Remove()
}

func (e *Executor) drive(ctx context.Context, st *PipelineState) (*PipelineState, error) {
	ctx = logging.WithRun(ctx, st.RunID, st.ProjectDir)
	ctx, span := e.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", st.RunID),
		attribute.String("pipeline.start_phase", string(st.Phase)),
	))
	defer span.End()

	e.logger.Info(ctx, "pipeline started", zap.String("phase", string(st.Phase)))

	for !st.Terminal() {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return st, err
		}
		if err := e.step(ctx, st); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return st, err
		}
	}

	span.SetAttributes(attribute.String("pipeline.end_phase", string(st.Phase)))
	if st.Phase == phase.Stuck {
		err := stuckError(st)
		span.SetStatus(codes.Error, err.Error())
		return st, err
	}

	e.logger.Info(ctx, "pipeline done", zap.Int("transitions", len(st.History)))
	e.reportProgress(st, phase.Done, StatusCompleted, "Pipeline complete")
	e.publish(ctx, st, events.Event{Type: events.TypeDone, Message: "pipeline complete"})
	return st, nil
}

// step runs one attempt of the current phase.
func (e *Executor) step(ctx context.Context, st *PipelineState) error {
	p := st.Phase
	ctx = logging.WithPhase(ctx, string(p))
	ctx, span := e.tracer.Start(ctx, "pipeline.phase", trace.WithAttributes(
		attribute.String("pipeline.phase", string(p)),
		attribute.Int("pipeline.retry", st.Retries[p]),
	))
	defer span.End()

	start := e.now()
	defer func() {
		PhaseDuration.WithLabelValues(string(p)).Observe(e.now().Sub(start).Seconds())
	}()

	e.reportProgress(st, p, StatusInProgress, fmt.Sprintf("Starting phase: %s", p))

	if p == phase.Intake && st.ConstitutionHash == "" {
		hash, err := e.governance.Hash()
		if err != nil {
			return e.halt(ctx, st, p, "governance document unavailable", err)
		}
		st.ConstitutionHash = hash
	}

	if err := e.runHandler(ctx, st, p); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ie *artifact.IntegrityError
		if errors.As(err, &ie) {
			return e.halt(ctx, st, p, ie.Error(), err)
		}
		e.logger.Warn(ctx, "phase handler failed", zap.Error(err))
		return e.retry(ctx, st, p, &Failure{
			Phase:    p,
			Severity: SeverityError,
			Reason:   "handler: " + err.Error(),
		}, &Feedback{From: p, Reason: err.Error()})
	}

	snap, err := e.captureSnapshot(ctx, st, p)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ie *artifact.IntegrityError
		if errors.As(err, &ie) {
			return e.halt(ctx, st, p, ie.Error(), err)
		}
		e.logger.Warn(ctx, "repository snapshot failed; continuing without it", zap.Error(err))
	}

	if p == phase.Intake && len(st.Roles) == 0 {
		st.Roles = e.roles
		if len(st.Roles) == 0 {
			st.Roles = InferRoles(snap)
		}
		e.logger.Info(ctx, "roles selected", zap.Any("roles", st.Roles))
	}

	def, ok := e.defs[p]
	if !ok {
		return e.transition(ctx, st, p.Next(), "no gate")
	}

	in, err := e.gateInput(ctx, st, def, snap)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ie *artifact.IntegrityError
		if errors.As(err, &ie) {
			return e.halt(ctx, st, p, ie.Error(), err)
		}
		return e.retry(ctx, st, p, &Failure{
			Phase:    p,
			Severity: SeverityError,
			Reason:   "gate input: " + err.Error(),
		}, &Feedback{From: p, Reason: err.Error()})
	}

	out, err := e.engine.Evaluate(ctx, def, in)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		st.LastFailure = &Failure{Phase: p, Severity: SeverityCritical, Reason: err.Error(), At: e.now().UTC()}
		if serr := e.save(st); serr != nil {
			return serr
		}
		return fmt.Errorf("gate %s: %w", p, err)
	}
	span.SetAttributes(attribute.Bool("gate.passed", out.Passed), attribute.String("gate.stage", string(out.Stage)))

	e.recordOutcome(ctx, st, out)

	if out.Passed {
		if fs := e.auditFindings(ctx, st, p); len(fs) > 0 {
			reason := fmt.Sprintf("audit raised %d finding(s)", len(fs))
			return e.route(ctx, st, p, fs,
				&Failure{Phase: p, Stage: out.Stage, Severity: SeverityError, Reason: reason},
				&Feedback{From: p, Reason: reason})
		}
		delete(st.Retries, p)
		st.Feedback = nil
		st.LastFailure = nil
		e.reportProgress(st, p, StatusCompleted, fmt.Sprintf("Completed phase: %s", p))
		return e.transition(ctx, st, p.Next(), out.Reason)
	}

	span.SetStatus(codes.Error, out.Reason)
	return e.handleFailure(ctx, st, def, out)
}

// handleFailure applies the failure policy of a failed gate.
func (e *Executor) handleFailure(ctx context.Context, st *PipelineState, def gate.Definition, out *gate.Outcome) error {
	p := def.Phase
	failure := &Failure{
		Phase:    p,
		Stage:    out.Stage,
		Kind:     out.Kind,
		Severity: SeverityError,
		Reason:   out.Reason,
	}
	fb := feedbackFrom(p, out)

	switch {
	case out.Kind == gate.KindIntegrity:
		return e.halt(ctx, st, p, out.Reason, out.Err())

	case out.Kind == gate.KindConsensus && p.Consensus():
		st.Iterations[p]++
		if st.Iterations[p] >= def.MaxIterations() {
			return e.stuck(ctx, st, failure, fmt.Sprintf("consensus rejected %d times: %s", st.Iterations[p], out.Reason))
		}
		RetriesTotal.WithLabelValues(string(p), "loopback").Inc()
		failure.At = e.now().UTC()
		st.LastFailure = failure
		st.Feedback = fb
		return e.transition(ctx, st, p.Planning(), "consensus rejected: "+out.Reason)

	case p.Routes():
		return e.route(ctx, st, p, e.findings(ctx, st, p, out), failure, fb)

	default:
		return e.retry(ctx, st, p, failure, fb)
	}
}

// route sends findings raised at p back to the earliest phase that owns a
// fix. Findings that target p itself, or no findings, retry in place.
func (e *Executor) route(ctx context.Context, st *PipelineState, p phase.Phase, fs []changereq.Finding, failure *Failure, fb *Feedback) error {
	plan, ok := changereq.FromFindings(fs)
	if !ok || !plan.Target.Before(p) {
		return e.retry(ctx, st, p, failure, fb)
	}
	st.Retries[p]++
	if st.Retries[p] >= e.maxRetries {
		return e.stuck(ctx, st, failure, fmt.Sprintf("%s failed %d times: %s", p, st.Retries[p], failure.Reason))
	}
	if _, err := e.store.StoreStructured(ctx, artifact.TypeChangeRequest, "change-requests", plan, string(p)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn(ctx, "storing change requests", zap.Error(err))
	}
	RetriesTotal.WithLabelValues(string(p), "change_request").Inc()

	st.ChangeRequests = append(st.ChangeRequests, plan.Requests...)
	fb.ChangeRequests = plan.Requests
	failure.At = e.now().UTC()
	st.LastFailure = failure
	st.Feedback = fb
	return e.transition(ctx, st, plan.Target, fmt.Sprintf("%d change request(s) from %s", len(plan.Requests), p))
}

// retry keeps the pipeline in p and consumes one retry. The handler runs
// again with fb on the next step.
func (e *Executor) retry(ctx context.Context, st *PipelineState, p phase.Phase, failure *Failure, fb *Feedback) error {
	st.Retries[p]++
	if st.Retries[p] >= e.maxRetries {
		return e.stuck(ctx, st, failure, fmt.Sprintf("%s failed %d times: %s", p, st.Retries[p], failure.Reason))
	}
	RetriesTotal.WithLabelValues(string(p), "retry").Inc()

	failure.At = e.now().UTC()
	st.LastFailure = failure
	st.Feedback = fb
	st.UpdatedAt = failure.At
	e.reportProgress(st, p, StatusFailed, fmt.Sprintf("Retrying %s (%d/%d): %s", p, st.Retries[p], e.maxRetries, failure.Reason))
	e.logger.Warn(ctx, "phase failed; retrying",
		zap.Int("retry", st.Retries[p]),
		zap.Int("max_retries", e.maxRetries),
		zap.String("reason", failure.Reason))
	e.publish(ctx, st, events.Event{Type: events.TypeGate, Message: failure.Reason})
	return e.save(st)
}

// stuck moves the pipeline to STUCK.
func (e *Executor) stuck(ctx context.Context, st *PipelineState, failure *Failure, reason string) error {
	p := st.Phase
	failure.At = e.now().UTC()
	failure.Reason = reason
	st.LastFailure = failure
	StuckTotal.WithLabelValues(string(p)).Inc()
	e.logger.Error(ctx, "pipeline stuck", zap.String("reason", reason))
	e.publish(ctx, st, events.Event{Type: events.TypeStuck, Message: reason})
	return e.transition(ctx, st, phase.Stuck, reason)
}

// halt records a critical failure and stops without advancing or
// consuming budget.
func (e *Executor) halt(ctx context.Context, st *PipelineState, p phase.Phase, reason string, cause error) error {
	now := e.now().UTC()
	st.LastFailure = &Failure{
		Phase:    p,
		Kind:     gate.KindIntegrity,
		Severity: SeverityCritical,
		Reason:   reason,
		At:       now,
	}
	st.UpdatedAt = now
	e.logger.Error(ctx, "integrity violation; pipeline halted", zap.String("reason", reason), zap.Error(cause))
	e.reportProgress(st, p, StatusFailed, "Integrity violation: "+reason)
	e.publish(ctx, st, events.Event{Type: events.TypeIntegrity, Message: reason})
	if err := e.save(st); err != nil {
		return err
	}
	return &IntegrityError{Phase: p, Reason: reason, Err: cause}
}

// transition moves st to next, records it and persists.
func (e *Executor) transition(ctx context.Context, st *PipelineState, next phase.Phase, reason string) error {
	from := st.Phase
	if err := phase.CanTransition(from, next); err != nil {
		return err
	}
	now := e.now().UTC()
	st.History = append(st.History, Transition{From: from, To: next, Reason: reason, At: now})
	st.Phase = next
	st.UpdatedAt = now

	TransitionsTotal.WithLabelValues(string(from), string(next)).Inc()
	e.logger.Info(ctx, "phase transition",
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.String("reason", reason))

	if err := e.save(st); err != nil {
		return err
	}
	e.publish(ctx, st, events.Event{Type: events.TypeTransition, From: string(from), To: string(next), Message: reason})
	return nil
}

// runHandler executes the registered handler and stores its deliverable.
func (e *Executor) runHandler(ctx context.Context, st *PipelineState, p phase.Phase) error {
	h, ok := e.handlers[p]
	if !ok {
		return nil
	}

	defs, err := e.skills.LoadAll(st.Roles)
	if err != nil {
		return fmt.Errorf("loading skills: %w", err)
	}
	req := &PhaseRequest{Phase: p, State: *st, Skills: defs, Feedback: st.Feedback}

	d, err := h.Execute(ctx, req)
	if err != nil {
		return err
	}
	if d == nil {
		return nil
	}

	types := make([]artifact.Type, 0, len(d.Artifacts))
	for typ := range d.Artifacts {
		types = append(types, typ)
	}
	slices.Sort(types)
	for _, typ := range types {
		entry, err := e.store.Store(ctx, typ, string(typ), d.Artifacts[typ], string(p))
		if err != nil {
			return fmt.Errorf("storing %s: %w", typ, err)
		}
		st.Artifacts[artifactKey(typ)] = entry.Ref
		e.logger.Debug(ctx, "artifact stored", zap.String("ref", entry.Ref.String()))
	}

	if d.Packet != nil {
		target := artifact.Type("")
		if out := produces[p]; len(out) > 0 {
			target = out[0]
		}
		if target == "" {
			return fmt.Errorf("%s does not produce an artifact to propose", p)
		}
		pkt := *d.Packet
		if ref, ok := st.Artifact(artifactKey(target)); ok {
			pkt.Artifact = &ref
			if pkt.Meta.Version == 0 {
				pkt.Meta.Version = ref.Version
			}
		}
		if pkt.Meta.ID == "" {
			pkt.Meta.ID = uuid.NewString()
		}
		entry, err := e.store.StoreStructured(ctx, artifact.TypePlanPacket, string(target), pkt, string(p))
		if err != nil {
			return fmt.Errorf("storing plan packet: %w", err)
		}
		st.Artifacts[packetKey(target)] = entry.Ref
	} else {
		for _, typ := range produces[p] {
			if _, ok := d.Artifacts[typ]; ok {
				delete(st.Artifacts, packetKey(typ))
			}
		}
	}

	st.UpdatedAt = e.now().UTC()
	if d.Summary != "" {
		e.reportProgress(st, p, StatusInProgress, d.Summary)
	}
	return e.save(st)
}

// captureSnapshot generates and stores a snapshot, reporting drift from
// the previous one.
func (e *Executor) captureSnapshot(ctx context.Context, st *PipelineState, p phase.Phase) (*snapshot.Snapshot, error) {
	snap, err := e.snapshots.Generate(ctx, e.projectDir)
	if err != nil {
		return nil, err
	}

	prevRef, hadPrev := st.Artifact(snapshotKey)
	if hadPrev && prevRef.Hash != "" {
		var prev snapshot.Snapshot
		if err := e.store.FetchStructured(ctx, prevRef, &prev); err != nil {
			return snap, err
		}
		if prev.Hash == snap.Hash {
			return snap, nil
		}
		if diff := snapshot.Compare(&prev, snap); diff.HasChanges {
			msg := fmt.Sprintf("repository drift: %d config(s) added, %d removed, %d changed, %+d files",
				len(diff.AddedConfigs), len(diff.RemovedConfigs), len(diff.ChangedConfigs), diff.FileDelta)
			e.logger.Info(ctx, "repository drift detected", zap.String("summary", msg))
			e.reportProgress(st, p, StatusInProgress, msg)
			e.publish(ctx, st, events.Event{Type: events.TypeDrift, Message: msg, Payload: diff})
		}
	}

	entry, err := e.store.StoreStructured(ctx, artifact.TypeRepoSnapshot, "repo", snap, string(p))
	if err != nil {
		return snap, err
	}
	st.Artifacts[snapshotKey] = entry.Ref
	return snap, e.save(st)
}

// recordOutcome stores the consensus packet and check results of out.
// Storage failures are logged; the outcome itself already decided the
// gate.
func (e *Executor) recordOutcome(ctx context.Context, st *PipelineState, out *gate.Outcome) {
	p := string(out.Phase)
	if out.Consensus != nil {
		entry, err := e.store.StoreStructured(ctx, artifact.TypeConsensusPacket, string(out.Phase), out.Consensus, p)
		if err != nil {
			e.logger.Warn(ctx, "storing consensus packet", zap.Error(err))
		} else {
			st.Artifacts[string(artifact.TypeConsensusPacket)+"/"+p] = entry.Ref
		}
		e.publish(ctx, st, events.Event{
			Type:    events.TypeConsensus,
			Message: out.Consensus.Score.Reason,
			Payload: out.Consensus.Score,
		})
	}
	for _, r := range out.Checks {
		entry, err := e.store.StoreStructured(ctx, artifact.TypeCheckResult, string(r.Type), r, p)
		if err != nil {
			e.logger.Warn(ctx, "storing check result", zap.String("check", string(r.Type)), zap.Error(err))
			continue
		}
		st.Artifacts[string(artifact.TypeCheckResult)+"/"+string(r.Type)] = entry.Ref
	}
	e.publish(ctx, st, events.Event{
		Type:    events.TypeGate,
		Message: out.Reason,
		Payload: map[string]any{"passed": out.Passed, "stage": out.Stage},
	})
}

func (e *Executor) save(st *PipelineState) error {
	return e.states.Save(st)
}

// publish sends ev best-effort; a broker outage never fails a phase.
func (e *Executor) publish(ctx context.Context, st *PipelineState, ev events.Event) {
	ev.RunID = st.RunID
	ev.Project = st.ProjectDir
	if ev.Phase == "" {
		ev.Phase = string(st.Phase)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now().UTC()
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Warn(ctx, "publishing pipeline event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

// reportProgress sends a progress update if callback is set
func (e *Executor) reportProgress(st *PipelineState, p phase.Phase, status PhaseStatus, msg string) {
	if e.progressCallback == nil {
		return
	}
	e.progressCallback(PhaseProgress{
		Phase:      p,
		Status:     status,
		Message:    msg,
		Percentage: percentage(p, st),
	})
}

// percentage maps a phase to its position in the forward order.
func percentage(p phase.Phase, st *PipelineState) int {
	if p == phase.Done {
		return 100
	}
	if p == phase.Stuck && st != nil {
		if n := len(st.History); n > 0 {
			p = st.History[n-1].From
		}
	}
	total := phase.Done.Index()
	idx := p.Index()
	if idx < 0 || total <= 0 {
		return 0
	}
	return idx * 100 / total
}

func stuckError(st *PipelineState) error {
	reason := "retry budget exhausted"
	p := st.Phase
	if st.LastFailure != nil {
		reason = st.LastFailure.Reason
		p = st.LastFailure.Phase
	}
	return &StuckError{Phase: p, Reason: reason}
}
