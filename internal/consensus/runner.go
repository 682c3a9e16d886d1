// Package consensus runs multi-reviewer review rounds over a plan packet
// and aggregates the votes into an immutable consensus packet.
//
// In independent mode every reviewer receives the identical prompt and
// votes in isolation; no reviewer sees another's output. All calls are
// awaited before scoring. A reviewer whose call fails is recorded as a
// REJECT carrying a synthetic blocking issue, so one flaky provider cannot
// abort a round (nor can it silently approve one).
package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/fyrsmithlabs/quorum/internal/consensus"

// DefaultReviewerTimeout bounds a single reviewer call.
const DefaultReviewerTimeout = 3 * time.Minute

// Reviser produces a revised proposal from reviewer feedback during
// iterative consensus.
type Reviser func(ctx context.Context, content string, feedback *Review) (string, error)

// Runner executes consensus rounds.
type Runner struct {
	registry *Registry
	rotation []ReviewerConfig
	limiters map[string]*rate.Limiter
	timeout  time.Duration
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithReviewerTimeout bounds each reviewer call.
func WithReviewerTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRateLimit caps calls to provider at rps requests per second.
func WithRateLimit(provider string, rps float64) Option {
	return func(r *Runner) {
		if rps > 0 {
			r.limiters[provider] = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner over registry with the given reviewer rotation.
func NewRunner(registry *Registry, rotation []ReviewerConfig, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		rotation: append([]ReviewerConfig(nil), rotation...),
		limiters: make(map[string]*rate.Limiter),
		timeout:  DefaultReviewerTimeout,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rotation returns the configured reviewer rotation.
func (r *Runner) Rotation() []ReviewerConfig {
	return append([]ReviewerConfig(nil), r.rotation...)
}

// Run dispatches to the mode in rules. Errors are returned only for
// invalid input or cancellation; a rejection is an unapproved packet.
func (r *Runner) Run(ctx context.Context, packet *PlanPacket, content string, rules Rules, revise Reviser) (*Packet, error) {
	if rules.Mode == ModeIterative {
		return r.RunIterative(ctx, packet, content, rules, revise)
	}
	return r.RunIndependent(ctx, packet, content, rules)
}

// reviewers expands the rotation to n = max(MinReviewers, len(rotation))
// slots. Slot i is bound to rotation[i mod len].
func (r *Runner) reviewers(rules Rules) ([]ReviewerConfig, error) {
	if len(r.rotation) == 0 {
		return nil, ErrNoReviewers
	}
	n := len(r.rotation)
	if rules.MinReviewers > n {
		n = rules.MinReviewers
	}
	out := make([]ReviewerConfig, n)
	for i := range out {
		cfg := r.rotation[i%len(r.rotation)]
		if cfg.ID == "" || i >= len(r.rotation) {
			cfg.ID = fmt.Sprintf("%s-%d", cfg.Provider, i+1)
		}
		if _, err := r.registry.Get(cfg.Provider); err != nil {
			return nil, err
		}
		out[i] = cfg
	}
	return out, nil
}

// RunIndependent runs every reviewer in parallel on the identical prompt.
func (r *Runner) RunIndependent(ctx context.Context, packet *PlanPacket, content string, rules Rules) (*Packet, error) {
	if err := packet.Validate(); err != nil {
		return nil, err
	}
	slots, err := r.reviewers(rules)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "consensus.independent", trace.WithAttributes(
		attribute.String("packet.id", packet.Meta.ID),
		attribute.String("packet.phase", packet.Meta.Phase),
		attribute.Int("reviewers", len(slots)),
	))
	defer span.End()

	prompt := BuildPrompt(packet, content)
	hash := PromptHash(prompt)
	votes := make([]Vote, len(slots))

	var g errgroup.Group
	g.SetLimit(len(slots))
	for i, cfg := range slots {
		g.Go(func() error {
			votes[i] = r.vote(ctx, cfg, prompt, hash)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return nil, fmt.Errorf("consensus round cancelled: %w", err)
	}

	for i := range votes {
		votes[i].Evidence = packet.Evidence
	}
	p := r.packet(packet, votes, rules, 1)
	r.record(span, p)
	return p, nil
}

// vote performs one reviewer call, converting failures into a REJECT.
func (r *Runner) vote(ctx context.Context, cfg ReviewerConfig, prompt, hash string) Vote {
	start := time.Now()
	review, err := r.call(ctx, cfg, prompt)
	elapsed := time.Since(start)
	ReviewerLatency.WithLabelValues(cfg.Provider).Observe(elapsed.Seconds())

	if err != nil {
		ReviewerCalls.WithLabelValues(cfg.Provider, "error").Inc()
		failure := &ReviewerFailure{ReviewerID: cfg.ID, Provider: cfg.Provider, Err: err}
		r.logger.Warn("reviewer call failed", zap.String("reviewer", cfg.ID), zap.Error(failure))
		v := failedVote(cfg, hash, err)
		v.Duration = elapsed
		return v
	}
	ReviewerCalls.WithLabelValues(cfg.Provider, "ok").Inc()
	v := voteFromReview(cfg, hash, review)
	v.Duration = elapsed
	r.logger.Debug("reviewer voted",
		zap.String("reviewer", cfg.ID),
		zap.String("decision", string(v.Decision)),
		zap.Float64("confidence", v.Confidence),
		zap.Int("blocking", len(v.BlockingIssues)))
	return v
}

func (r *Runner) call(ctx context.Context, cfg ReviewerConfig, prompt string) (*Review, error) {
	rev, err := r.registry.Get(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if lim, ok := r.limiters[cfg.Provider]; ok {
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	review, err := rev.Review(callCtx, prompt, cfg)
	if err != nil {
		return nil, err
	}
	if review == nil {
		return nil, fmt.Errorf("provider %s returned no review", cfg.Provider)
	}
	return review, nil
}

// RunIterative runs a single reviewer in a refine-and-resubmit loop of at
// most rules.MaxIterations rounds. When revise is set, the proposal is
// revised from each round's feedback; otherwise the reviewer re-evaluates
// with its previous blocking issues appended. The terminal review becomes
// one vote, scored with a quorum of one.
func (r *Runner) RunIterative(ctx context.Context, packet *PlanPacket, content string, rules Rules, revise Reviser) (*Packet, error) {
	if err := packet.Validate(); err != nil {
		return nil, err
	}
	if len(r.rotation) == 0 {
		return nil, ErrNoReviewers
	}
	cfg := r.rotation[0]
	if cfg.ID == "" {
		cfg.ID = cfg.Provider + "-1"
	}
	if _, err := r.registry.Get(cfg.Provider); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "consensus.iterative", trace.WithAttributes(
		attribute.String("packet.id", packet.Meta.ID),
		attribute.Int("max_iterations", rules.MaxIterations),
	))
	defer span.End()

	maxIter := rules.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}

	var (
		last      Vote
		previous  *Review
		iteration int
	)
	for iteration = 1; iteration <= maxIter; iteration++ {
		prompt := refinePrompt(BuildPrompt(packet, content), iteration, previous)
		hash := PromptHash(prompt)

		start := time.Now()
		review, err := r.call(ctx, cfg, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("consensus round cancelled: %w", ctx.Err())
			}
			ReviewerCalls.WithLabelValues(cfg.Provider, "error").Inc()
			last = failedVote(cfg, hash, err)
			last.Duration = time.Since(start)
			break
		}
		ReviewerCalls.WithLabelValues(cfg.Provider, "ok").Inc()
		last = voteFromReview(cfg, hash, review)
		last.Duration = time.Since(start)

		if last.Decision == Approve && len(last.BlockingIssues) == 0 {
			break
		}
		if iteration == maxIter {
			break
		}
		previous = review
		if revise != nil {
			revised, err := revise(ctx, content, review)
			if err != nil {
				r.logger.Warn("revision failed; stopping iteration", zap.Int("iteration", iteration), zap.Error(err))
				break
			}
			content = revised
		}
	}
	if iteration > maxIter {
		iteration = maxIter
	}

	last.Evidence = packet.Evidence
	single := rules
	single.Quorum = 1
	single.MinReviewers = 1
	p := r.packet(packet, []Vote{last}, single, iteration)
	r.record(span, p)
	return p, nil
}

func (r *Runner) packet(plan *PlanPacket, votes []Vote, rules Rules, iteration int) *Packet {
	score := ComputeScore(votes, rules)
	return &Packet{
		ID:             uuid.New().String(),
		PlanPacket:     plan.Meta,
		PlanPacketRef:  plan.Artifact,
		Votes:          votes,
		Rules:          rules,
		Score:          score,
		Approved:       score.Passed,
		BlockingIssues: score.Blocking,
		Iteration:      iteration,
		CreatedAt:      r.now().UTC(),
	}
}

func (r *Runner) record(span trace.Span, p *Packet) {
	result := "rejected"
	if p.Approved {
		result = "approved"
	}
	mode := string(p.Rules.Mode)
	if mode == "" {
		mode = string(ModeIndependent)
	}
	RoundsTotal.WithLabelValues(mode, result).Inc()
	ScoreHistogram.Observe(p.Score.Value)

	span.SetAttributes(
		attribute.Float64("consensus.score", p.Score.Value),
		attribute.Bool("consensus.approved", p.Approved),
		attribute.Int("consensus.blocking", len(p.BlockingIssues)),
	)
	if !p.Approved {
		span.SetStatus(codes.Error, p.Score.Reason)
	}
	r.logger.Info("consensus round complete",
		zap.String("packet", p.ID),
		zap.String("phase", p.PlanPacket.Phase),
		zap.Bool("approved", p.Approved),
		zap.Float64("score", p.Score.Value),
		zap.Int("votes", len(p.Votes)),
		zap.String("reason", p.Score.Reason))
}

// Err returns a *RejectedError when the packet was not approved.
func (p *Packet) Err() error {
	if p.Approved {
		return nil
	}
	return &RejectedError{Packet: p}
}
