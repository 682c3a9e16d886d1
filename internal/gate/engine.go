// Package gate evaluates phase-boundary gates. Stages run cheapest first
// and stop at the first blocking failure:
//
//  1. governance: the constitution hash recorded at intake must still match
//  2. validation: structural completeness of the named artifacts
//  3. checks: sandboxed commands and static scans
//  4. consensus: the reviewer vote, only reached when everything else passed
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/checks"
	"github.com/fyrsmithlabs/quorum/internal/commands"
	"github.com/fyrsmithlabs/quorum/internal/consensus"
	"github.com/fyrsmithlabs/quorum/internal/constitution"
	"github.com/fyrsmithlabs/quorum/internal/phase"
	"github.com/fyrsmithlabs/quorum/internal/validate"
)

const instrumentationName = "github.com/fyrsmithlabs/quorum/internal/gate"

var (
	// ErrGovernance is returned by Outcome.Err when the constitution no
	// longer matches its recorded hash.
	ErrGovernance = errors.New("governance verification failed")

	// ErrNoConsensusRunner is returned when a gate needs a vote but the
	// engine has no runner.
	ErrNoConsensusRunner = errors.New("no consensus runner configured")
)

// Stage names the step an evaluation stopped at.
type Stage string

const (
	StageGovernance Stage = "governance"
	StageNoOp       Stage = "noop"
	StageValidation Stage = "validation"
	StageChecks     Stage = "checks"
	StageConsensus  Stage = "consensus"
	StageComplete   Stage = "complete"
)

// Kind classifies a failed outcome.
type Kind string

const (
	KindNone       Kind = ""
	KindIntegrity  Kind = "integrity"
	KindStructural Kind = "structural"
	KindCheck      Kind = "check"
	KindConsensus  Kind = "consensus"
)

// CheckRunner executes sandboxed commands.
type CheckRunner interface {
	Run(ctx context.Context, typ checks.Type, command, dir string, timeout time.Duration) *checks.Result
	RunStart(ctx context.Context, command, dir string, timeout time.Duration) *checks.Result
}

// SecretScanner scans a tree for committed credentials.
type SecretScanner interface {
	ScanSecrets(ctx context.Context, root string) *checks.Result
}

// ConsensusRunner runs a reviewer vote.
type ConsensusRunner interface {
	Run(ctx context.Context, packet *consensus.PlanPacket, content string, rules consensus.Rules, revise consensus.Reviser) (*consensus.Packet, error)
}

// Input is everything a gate looks at.
type Input struct {
	// Dir is the project root checks run in.
	Dir          string
	Governance   constitution.Document
	RecordedHash string
	Artifacts    map[artifact.Type][]byte
	Packet       *consensus.PlanPacket
	Commands     commands.Commands
	Revise       consensus.Reviser
}

// Outcome is the result of one gate evaluation.
type Outcome struct {
	Phase      phase.Phase          `json:"phase"`
	Passed     bool                 `json:"passed"`
	Stage      Stage                `json:"stage"`
	Kind       Kind                 `json:"kind,omitempty"`
	Reason     string               `json:"reason"`
	Governance *constitution.Result `json:"governance,omitempty"`
	Validation []validate.Result    `json:"validation,omitempty"`
	Checks     []*checks.Result     `json:"checks,omitempty"`
	Consensus  *consensus.Packet    `json:"consensus,omitempty"`
	Duration   time.Duration        `json:"duration"`

	cause error
}

// Err returns the typed cause of a failed outcome, nil when passed.
func (o *Outcome) Err() error {
	if o.Passed {
		return nil
	}
	if o.cause != nil {
		return o.cause
	}
	return errors.New(o.Reason)
}

// BlockingIssues returns the reviewer objections carried by the vote.
func (o *Outcome) BlockingIssues() []string {
	if o.Consensus == nil {
		return nil
	}
	return o.Consensus.BlockingIssues
}

func (o *Outcome) fail(stage Stage, kind Kind, cause error, format string, args ...any) {
	o.Passed = false
	o.Stage = stage
	o.Kind = kind
	o.Reason = fmt.Sprintf(format, args...)
	o.cause = cause
}

// Engine evaluates gate definitions.
type Engine struct {
	checks       CheckRunner
	secrets      SecretScanner
	consensus    ConsensusRunner
	timeouts     map[checks.Type]time.Duration
	placeholders []string
	allowlist    checks.Allowlist
	envExample   string
	envFile      string
	logger       *zap.Logger
	tracer       trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithCheckRunner sets the command runner.
func WithCheckRunner(r CheckRunner) Option {
	return func(e *Engine) { e.checks = r }
}

// WithSecretScanner enables the secrets check.
func WithSecretScanner(s SecretScanner) Option {
	return func(e *Engine) { e.secrets = s }
}

// WithConsensusRunner sets the reviewer vote runner.
func WithConsensusRunner(c ConsensusRunner) Option {
	return func(e *Engine) { e.consensus = c }
}

// WithCheckTimeout overrides the budget for one check type.
func WithCheckTimeout(t checks.Type, d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeouts[t] = d
		}
	}
}

// WithPlaceholderScan sets the directories and allowlist of the
// placeholder scan.
func WithPlaceholderScan(dirs []string, allow checks.Allowlist) Option {
	return func(e *Engine) {
		e.placeholders = dirs
		e.allowlist = allow
	}
}

// WithEnvFiles sets the example and actual env files, relative to the
// project root.
func WithEnvFiles(example, actual string) Option {
	return func(e *Engine) {
		if example != "" {
			e.envExample = example
		}
		if actual != "" {
			e.envFile = actual
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine. Without a check runner a default
// checks.Runner is used.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timeouts:   make(map[checks.Type]time.Duration),
		envExample: ".env.example",
		envFile:    ".env",
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.checks == nil {
		e.checks = checks.NewRunner(checks.WithLogger(e.logger))
	}
	return e
}

// Evaluate runs def against in. The returned error is reserved for
// cancellation and misconfiguration; a failed gate is an Outcome with
// Passed=false.
func (e *Engine) Evaluate(ctx context.Context, def Definition, in Input) (*Outcome, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "gate.evaluate", trace.WithAttributes(
		attribute.String("gate.phase", string(def.Phase)),
	))
	defer span.End()

	out := &Outcome{Phase: def.Phase}
	err := e.evaluate(ctx, def, in, out)
	out.Duration = time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	result := "passed"
	if !out.Passed {
		result = "failed"
		FailuresTotal.WithLabelValues(string(def.Phase), string(out.Stage)).Inc()
		span.SetStatus(codes.Error, out.Reason)
	}
	EvaluationsTotal.WithLabelValues(string(def.Phase), result).Inc()
	EvaluationDuration.WithLabelValues(string(def.Phase)).Observe(out.Duration.Seconds())
	span.SetAttributes(
		attribute.Bool("gate.passed", out.Passed),
		attribute.String("gate.stage", string(out.Stage)),
	)
	e.logger.Info("gate evaluated",
		zap.String("phase", string(def.Phase)),
		zap.Bool("passed", out.Passed),
		zap.String("stage", string(out.Stage)),
		zap.String("reason", out.Reason),
		zap.Duration("duration", out.Duration))
	return out, nil
}

func (e *Engine) evaluate(ctx context.Context, def Definition, in Input, out *Outcome) error {
	gov := in.Governance.Verify(in.RecordedHash)
	out.Governance = &gov
	if !gov.Valid {
		out.fail(StageGovernance, KindIntegrity, fmt.Errorf("%w: %s", ErrGovernance, gov.Reason), "governance: %s", gov.Reason)
		return nil
	}

	content := in.Artifacts[def.ArtifactType]
	if def.ArtifactType != "" && len(content) == 0 && def.NoOpWithoutArtifact {
		out.Passed = true
		out.Stage = StageNoOp
		out.Reason = fmt.Sprintf("no %s artifact; gate is a no-op", def.ArtifactType)
		return nil
	}

	for _, typ := range def.Validators {
		res := validate.Completeness(typ, in.Artifacts[typ])
		out.Validation = append(out.Validation, res)
		if !res.Valid {
			out.fail(StageValidation, KindStructural, res.Err(), "%s incomplete: %s", typ, strings.Join(res.Errors, "; "))
			return nil
		}
	}

	for _, typ := range def.RequiredChecks {
		res := e.runCheck(ctx, typ, in, true)
		out.Checks = append(out.Checks, res)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("gate %s cancelled: %w", def.Phase, err)
		}
		if !res.Passed() {
			out.fail(StageChecks, KindCheck, res.Err(), "%s check failed: %s", typ, summary(res))
			return nil
		}
	}
	for _, typ := range def.OptionalChecks {
		res := e.runCheck(ctx, typ, in, false)
		out.Checks = append(out.Checks, res)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("gate %s cancelled: %w", def.Phase, err)
		}
		if !res.Passed() {
			out.fail(StageChecks, KindCheck, res.Err(), "%s check failed: %s", typ, summary(res))
			return nil
		}
	}

	if def.Consensus != nil {
		if e.consensus == nil {
			return ErrNoConsensusRunner
		}
		if in.Packet == nil {
			out.fail(StageConsensus, KindStructural, consensus.ErrInvalidPacket, "no plan packet for %s", def.ArtifactType)
			return nil
		}
		pkt, err := e.consensus.Run(ctx, in.Packet, string(content), *def.Consensus, in.Revise)
		if err != nil {
			if errors.Is(err, consensus.ErrInvalidPacket) {
				out.fail(StageConsensus, KindStructural, err, "%s", err.Error())
				return nil
			}
			return fmt.Errorf("consensus for %s: %w", def.Phase, err)
		}
		out.Consensus = pkt
		if !pkt.Approved {
			out.fail(StageConsensus, KindConsensus, pkt.Err(), "consensus: %s", pkt.Score.Reason)
			return nil
		}
	}

	out.Passed = true
	out.Stage = StageComplete
	out.Reason = "all stages passed"
	return nil
}

// runCheck executes one check. Command checks without a resolved command
// fail when required and skip otherwise.
func (e *Engine) runCheck(ctx context.Context, typ checks.Type, in Input, required bool) *checks.Result {
	switch typ {
	case checks.TypeEnv:
		res, _ := checks.CheckEnv(in.Dir, e.envExample, e.envFile)
		return res
	case checks.TypePlaceholder:
		return checks.ScanPlaceholders(ctx, in.Dir, e.placeholders, e.allowlist)
	case checks.TypeSecrets:
		if e.secrets == nil {
			return unavailable(typ, required, "secret scanner not configured")
		}
		return e.secrets.ScanSecrets(ctx, in.Dir)
	}

	command := in.Commands.For(typ)
	if strings.TrimSpace(command) == "" {
		return unavailable(typ, required, fmt.Sprintf("no %s command resolved", typ))
	}
	if typ == checks.TypeStart {
		return e.checks.RunStart(ctx, command, in.Dir, e.timeouts[typ])
	}
	return e.checks.Run(ctx, typ, command, in.Dir, e.timeouts[typ])
}

func unavailable(typ checks.Type, required bool, reason string) *checks.Result {
	res := &checks.Result{
		Type:          typ,
		Status:        checks.StatusSkip,
		ExitCode:      -1,
		StderrSummary: reason,
		Timestamp:     time.Now().UTC(),
	}
	if required {
		res.Status = checks.StatusFail
	}
	return res
}

func summary(r *checks.Result) string {
	s := strings.TrimSpace(r.StderrSummary)
	if s == "" {
		s = fmt.Sprintf("exit code %d", r.ExitCode)
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
