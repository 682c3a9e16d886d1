package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/checks"
	"github.com/fyrsmithlabs/quorum/internal/commands"
	"github.com/fyrsmithlabs/quorum/internal/config"
	"github.com/fyrsmithlabs/quorum/internal/consensus"
	"github.com/fyrsmithlabs/quorum/internal/constitution"
	"github.com/fyrsmithlabs/quorum/internal/events"
	"github.com/fyrsmithlabs/quorum/internal/gate"
	"github.com/fyrsmithlabs/quorum/internal/logging"
	"github.com/fyrsmithlabs/quorum/internal/orchestrator"
	"github.com/fyrsmithlabs/quorum/internal/skills"
	"github.com/fyrsmithlabs/quorum/internal/snapshot"
	"github.com/fyrsmithlabs/quorum/internal/telemetry"
)

const tracerName = "github.com/fyrsmithlabs/quorum/cmd/quorum"

// app holds the components shared by every command for one project.
type app struct {
	dir        string
	cfg        *config.Config
	logger     *logging.Logger
	tel        *telemetry.Telemetry
	stateDir   string
	store      *artifact.Store
	states     *orchestrator.StateStore
	governance constitution.Document
	publisher  events.Publisher
}

func newApp(ctx context.Context) (*app, error) {
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}

	cfg, err := config.Load(dir, configPath)
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromSection(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	if degraded, reason := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}

	a := &app{
		dir:        dir,
		cfg:        cfg,
		logger:     logger,
		tel:        tel,
		governance: constitution.New(dir, cfg.Pipeline.ConstitutionFile),
		publisher:  events.Nop{},
	}
	a.stateDir = a.path(cfg.Pipeline.StateDir)
	a.states = orchestrator.NewStateStore(a.stateDir)

	a.store, err = artifact.Open(filepath.Join(a.stateDir, "artifacts"), artifact.WithLogger(logger.Underlying()))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// path resolves p against the project root unless it is absolute.
func (a *app) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.dir, p)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn(ctx, "failed to close event publisher", zap.Error(err))
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "failed to shut down telemetry", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// connectEvents swaps the no-op publisher for NATS when events are
// enabled. A broker that cannot be reached is logged, not fatal.
func (a *app) connectEvents(ctx context.Context) {
	if !a.cfg.Events.Enabled {
		return
	}
	p, err := events.Connect(a.cfg.Events, a.logger.Underlying())
	if err != nil {
		a.logger.Warn(ctx, "event publishing disabled", zap.String("url", a.cfg.Events.URL), zap.Error(err))
		return
	}
	a.publisher = p
}

func (a *app) rules() consensus.Rules {
	rules := consensus.DefaultRules()
	rules.Threshold = a.cfg.Consensus.Threshold
	rules.Quorum = a.cfg.Consensus.Quorum
	rules.MinReviewers = a.cfg.Consensus.MinReviewers
	rules.MaxIterations = a.cfg.Consensus.MaxIterations
	return rules
}

func (a *app) snapshots() *snapshot.Generator {
	return snapshot.NewGenerator(
		snapshot.WithMaxDepth(a.cfg.Pipeline.SnapshotDepth),
		snapshot.WithLogger(a.logger.Underlying()),
	)
}

func (a *app) checkRunner(scrubber checks.Scrubber) *checks.Runner {
	opts := []checks.Option{checks.WithLogger(a.logger.Underlying())}
	if scrubber != nil {
		opts = append(opts, checks.WithScrubber(scrubber))
	}
	for typ, d := range a.cfg.Checks.Timeouts {
		opts = append(opts, checks.WithTimeout(checks.Type(typ), d.Duration()))
	}
	return checks.NewRunner(opts...)
}

// engine wires the gate engine. Without configured providers consensus
// gates report a misconfiguration when reached.
func (a *app) engine() (*gate.Engine, error) {
	z := a.logger.Underlying()

	scanner, err := checks.NewSecretScanner()
	if err != nil {
		return nil, err
	}

	opts := []gate.Option{
		gate.WithLogger(z),
		gate.WithCheckRunner(a.checkRunner(scanner)),
		gate.WithPlaceholderScan(a.cfg.Checks.PlaceholderDirs, checks.Allowlist(a.cfg.Checks.Allowlist)),
		gate.WithEnvFiles(a.cfg.Checks.EnvExample, a.cfg.Checks.EnvFile),
	}
	if a.cfg.Checks.Secrets {
		opts = append(opts, gate.WithSecretScanner(scanner))
	}

	if len(a.cfg.Consensus.Providers) > 0 {
		reg, rotation, runnerOpts, err := consensus.RegistryFromConfig(a.cfg.Consensus.Providers)
		if err != nil {
			return nil, fmt.Errorf("consensus providers: %w", err)
		}
		runnerOpts = append(runnerOpts,
			consensus.WithLogger(z),
			consensus.WithReviewerTimeout(a.cfg.Consensus.ReviewerTimeout.Duration()),
		)
		opts = append(opts, gate.WithConsensusRunner(consensus.NewRunner(reg, rotation, runnerOpts...)))
	}
	return gate.NewEngine(opts...), nil
}

func (a *app) executor(roles []skills.Role) (*orchestrator.Executor, error) {
	engine, err := a.engine()
	if err != nil {
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithStateDir(a.stateDir),
		orchestrator.WithDefinitions(gate.Defaults(a.rules())),
		orchestrator.WithGovernance(a.governance),
		orchestrator.WithSnapshotGenerator(a.snapshots()),
		orchestrator.WithSkillsLoader(skills.NewLoader(a.path(a.cfg.Pipeline.SkillsDir), a.logger.Underlying())),
		orchestrator.WithCommandOverrides(commands.FromConfig(a.cfg.Checks)),
		orchestrator.WithMaxRetries(a.cfg.Pipeline.MaxRetries),
		orchestrator.WithPublisher(a.publisher),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithTracer(a.tel.Tracer(tracerName)),
	}
	if len(roles) > 0 {
		opts = append(opts, orchestrator.WithRoles(roles...))
	}

	exec := orchestrator.NewExecutor(a.dir, a.store, engine, opts...)
	for _, h := range orchestrator.DirHandlers(a.path(a.cfg.Pipeline.DeliverablesDir)) {
		exec.RegisterHandler(h)
	}
	return exec, nil
}

// watchGovernance reports edits to the governance document while a run
// is active. Gates still enforce the hash; this only surfaces tampering
// sooner. The returned func stops the watcher.
func (a *app) watchGovernance(ctx context.Context, expected string, notify func(constitution.TamperEvent)) func() {
	if !a.cfg.Pipeline.WatchConstitution || expected == "" {
		return func() {}
	}
	w, err := constitution.NewWatcher(a.governance, expected, a.logger.Underlying())
	if err != nil {
		a.logger.Warn(ctx, "governance watcher unavailable", zap.Error(err))
		return func() {}
	}
	if err := w.Start(ctx); err != nil {
		a.logger.Warn(ctx, "governance watcher unavailable", zap.Error(err))
		w.Stop()
		return func() {}
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-w.Events():
				notify(ev)
			}
		}
	}()
	return w.Stop
}
