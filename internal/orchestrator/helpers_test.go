package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/checks"
	"github.com/fyrsmithlabs/quorum/internal/commands"
	"github.com/fyrsmithlabs/quorum/internal/consensus"
	"github.com/fyrsmithlabs/quorum/internal/events"
	"github.com/fyrsmithlabs/quorum/internal/gate"
	"github.com/fyrsmithlabs/quorum/internal/phase"
	"github.com/fyrsmithlabs/quorum/internal/snapshot"
	"github.com/fyrsmithlabs/quorum/internal/telemetry"
)

const constitutionText = "# Constitution\n\nAll changes ship with tests. No secrets in the repository.\n"

const masterPlan = `# Overview
Build an order service that accepts customer orders over HTTP, validates them
and hands accepted orders to the billing system for invoicing.

## Scope
Order intake API, payload validation, persistence in PostgreSQL and the
asynchronous hand-off to billing through the existing message queue.

## Acceptance Criteria
- Orders with missing fields are rejected with a 400 response.
- Accepted orders are persisted before the billing hand-off.
- Billing receives every accepted order exactly once.

## Risks
Billing downtime delays invoicing; the queue must retain messages for a day.
`

const architectureDoc = `# Architecture

## Components
The service is a single Go binary in cmd/orders/main.go with an HTTP layer,
a validation package and a repository backed by PostgreSQL. A publisher
pushes accepted orders to the billing queue.

## Data Model
orders(id uuid primary key, customer_id text, total_cents bigint, status text,
created_at timestamptz). Migrations live in migrations/001_orders.sql.

## Interfaces
POST /orders accepts JSON and returns 201 with the order id. GET /orders/{id}
returns the stored order. The billing message schema is documented in
docs/billing.md.

## Deployment
Deployed as a container next to the existing PostgreSQL instance. Health checks
hit /healthz. Configuration comes from environment variables listed in
.env.example.
`

const rolePlan = `# Role plan: backend

## Tasks
1. Implement the order handler in internal/orders/handler.go.
2. Add the repository in internal/orders/store.go with its migration.
3. Publish accepted orders to billing.

## Deliverables
Handler, repository and publisher with unit tests in internal/orders.
`

const qaReport = `# QA validation

## Results
All 42 unit tests pass and the integration suite against PostgreSQL passes.
Manual checks of the order API returned the expected status codes.

## Acceptance Criteria
Every acceptance criterion of the master plan is covered by at least one test.
`

const reviewReport = `# Review

## Findings
The handler validates payloads before persisting and the repository uses
transactions for the billing outbox.

## Verdict
Approved for audit.
`

const cleanAudit = `{"findings": [], "status": "pass", "risk_score": 0.1}`

const failingAudit = `{"findings": [{"category": "integration", "severity": "high", "description": "billing client has no timeout"}], "status": "fail", "risk_score": 0.6}`

type fakeChecks struct {
	mu    sync.Mutex
	fail  map[checks.Type]string
	calls map[checks.Type]int
}

func newFakeChecks() *fakeChecks {
	return &fakeChecks{fail: make(map[checks.Type]string), calls: make(map[checks.Type]int)}
}

func (f *fakeChecks) Run(_ context.Context, typ checks.Type, command, _ string, _ time.Duration) *checks.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[typ]++
	if msg, ok := f.fail[typ]; ok {
		return &checks.Result{Type: typ, Status: checks.StatusFail, Command: command, ExitCode: 1, StderrSummary: msg}
	}
	return &checks.Result{Type: typ, Status: checks.StatusPass, Command: command}
}

func (f *fakeChecks) RunStart(ctx context.Context, command, dir string, timeout time.Duration) *checks.Result {
	return f.Run(ctx, checks.TypeStart, command, dir, timeout)
}

func (f *fakeChecks) setFail(typ checks.Type, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg == "" {
		delete(f.fail, typ)
		return
	}
	f.fail[typ] = msg
}

func (f *fakeChecks) count(typ checks.Type) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[typ]
}

type cleanSecrets struct{}

func (cleanSecrets) ScanSecrets(_ context.Context, root string) *checks.Result {
	return &checks.Result{Type: checks.TypeSecrets, Status: checks.StatusPass, Command: "gitleaks:" + root}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// promptLog records every prompt a reviewer saw.
type promptLog struct {
	mu      sync.Mutex
	prompts []string
}

func (l *promptLog) add(p string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, p)
}

func (l *promptLog) matching(substr string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, p := range l.prompts {
		if strings.Contains(p, substr) {
			out = append(out, p)
		}
	}
	return out
}

func approveAll(ctx context.Context, prompt string, cfg consensus.ReviewerConfig) (*consensus.Review, error) {
	return &consensus.Review{Approved: true, Score: 95, Suggestions: []string{"add request ids to logs"}}, nil
}

type harness struct {
	dir      string
	store    *artifact.Store
	checks   *fakeChecks
	events   *recordingPublisher
	tel      *telemetry.TestTelemetry
	exec     *Executor
	progress []PhaseProgress
}

func newHarness(t *testing.T, reviewer consensus.ReviewerFunc, opts ...Option) *harness {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "CONSTITUTION.md"), constitutionText)

	store, err := artifact.Open(filepath.Join(dir, ".quorum", "artifacts"))
	require.NoError(t, err)

	reg := consensus.NewRegistry()
	require.NoError(t, reg.Register("stub", reviewer))
	runner := consensus.NewRunner(reg, []consensus.ReviewerConfig{
		{ID: "stub-1", Provider: "stub", Model: "m1"},
		{ID: "stub-2", Provider: "stub", Model: "m2"},
	})

	h := &harness{
		dir:    dir,
		store:  store,
		checks: newFakeChecks(),
		events: &recordingPublisher{},
		tel:    telemetry.NewTestTelemetry(),
	}
	engine := gate.NewEngine(
		gate.WithCheckRunner(h.checks),
		gate.WithSecretScanner(cleanSecrets{}),
		gate.WithConsensusRunner(runner),
	)
	base := []Option{
		WithCommandOverrides(commands.Commands{Build: "make build", Test: "make test"}),
		WithPublisher(h.events),
		WithTracer(h.tel.Tracer("test")),
		WithSnapshotGenerator(snapshot.NewGenerator(snapshot.WithGitStatus(false))),
	}
	h.exec = NewExecutor(dir, store, engine, append(base, opts...)...)
	h.exec.OnProgress(func(p PhaseProgress) {
		h.progress = append(h.progress, p)
	})
	return h
}

// deliver registers a handler for p that returns content as typ.
func (h *harness) deliver(p phase.Phase, typ artifact.Type, content string) {
	h.exec.RegisterHandler(HandlerFunc{P: p, Fn: func(ctx context.Context, req *PhaseRequest) (*Deliverable, error) {
		return &Deliverable{Artifacts: map[artifact.Type][]byte{typ: []byte(content)}}, nil
	}})
}

// deliverAll registers passing handlers for every producing phase.
func (h *harness) deliverAll() {
	h.deliver(phase.Intake, artifact.TypeMasterPlan, masterPlan)
	h.deliver(phase.Architecture, artifact.TypeArchitecture, architectureDoc)
	h.deliver(phase.RolePlanning, artifact.TypeRolePlan, rolePlan)
	h.deliver(phase.QAValidation, artifact.TypeQAValidation, qaReport)
	h.deliver(phase.Review, artifact.TypeReviewReport, reviewReport)
	h.deliver(phase.Audit, artifact.TypeAuditReport, cleanAudit)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func transitions(st *PipelineState, from, to phase.Phase) int {
	n := 0
	for _, tr := range st.History {
		if tr.From == from && tr.To == to {
			n++
		}
	}
	return n
}
