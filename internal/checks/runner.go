// Package checks runs project build/test/lint/typecheck/migration commands
// as sandboxed child processes, plus the static scans (placeholders, env
// files, secrets) that gates require.
//
// Run never returns an error: rejected commands, timeouts and non-zero
// exits all come back as a fail Result with a populated stderr summary.
package checks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/quorum/internal/checks"

// DefaultKillGrace is how long after the soft timeout the backup SIGKILL fires.
const DefaultKillGrace = 5 * time.Second

// Scrubber masks secrets in text before it is persisted.
type Scrubber interface {
	Scrub(text string) string
}

// Runner executes checks. It is safe for concurrent use.
type Runner struct {
	logger    *zap.Logger
	tracer    trace.Tracer
	timeouts  map[Type]time.Duration
	killGrace time.Duration
	maxOutput int
	scrubber  Scrubber
	shell     string
	now       func() time.Time
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

// WithTimeout overrides the default timeout of one check type.
func WithTimeout(t Type, d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeouts[t] = d
		}
	}
}

// WithKillGrace sets the delay between the soft timeout and the backup kill.
func WithKillGrace(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.killGrace = d
		}
	}
}

// WithScrubber masks secrets in summaries.
func WithScrubber(s Scrubber) Option {
	return func(r *Runner) { r.scrubber = s }
}

// WithMaxOutput sets the per-stream capture cap.
func WithMaxOutput(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// NewRunner creates a Runner with the default per-type timeouts.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
		timeouts:  make(map[Type]time.Duration, len(DefaultTimeouts)),
		killGrace: DefaultKillGrace,
		maxOutput: MaxOutputBytes,
		shell:     "/bin/sh",
		now:       time.Now,
	}
	for k, v := range DefaultTimeouts {
		r.timeouts[k] = v
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TimeoutFor returns the effective timeout for typ given an override.
func (r *Runner) TimeoutFor(typ Type, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if d, ok := r.timeouts[typ]; ok {
		return d
	}
	return fallbackTimeout
}

// Run executes command in dir under the check type's timeout. An empty
// command is a skip.
func (r *Runner) Run(ctx context.Context, typ Type, command, dir string, timeout time.Duration) *Result {
	ctx, span := r.tracer.Start(ctx, "checks.run", trace.WithAttributes(
		attribute.String("check.type", string(typ)),
	))
	defer span.End()

	res := r.newResult(typ, command)
	defer r.finish(ctx, span, res)

	if strings.TrimSpace(command) == "" {
		res.Status = StatusSkip
		res.StderrSummary = "no command configured"
		return res
	}
	if r.reject(res) {
		return res
	}

	timeout = r.TimeoutFor(typ, timeout)
	ex := r.execute(ctx, command, dir, timeout)
	r.apply(res, ex)

	switch {
	case ex.startErr != nil:
		res.Status = StatusFail
		res.ExitCode = -1
		res.StderrSummary = "failed to start: " + ex.startErr.Error()
		res.err = fmt.Errorf("start %s check: %w", typ, ex.startErr)
	case ex.timedOut:
		res.Status = StatusFail
		res.TimedOut = true
		res.err = &TimeoutError{Type: typ, Timeout: timeout}
		res.StderrSummary = strings.TrimSpace(fmt.Sprintf("timed out after %s\n%s", timeout, res.StderrSummary))
		TimeoutsTotal.WithLabelValues(string(typ)).Inc()
	case ex.cancelled:
		res.Status = StatusFail
		res.err = fmt.Errorf("%s check cancelled: %w", typ, ctx.Err())
		res.StderrSummary = strings.TrimSpace("cancelled: " + ctx.Err().Error() + "\n" + res.StderrSummary)
	case ex.exitCode != 0:
		res.Status = StatusFail
		if res.StderrSummary == "" {
			res.StderrSummary = res.StdoutSummary
		}
		res.err = fmt.Errorf("%s check exited with code %d", typ, ex.exitCode)
	default:
		res.Status = StatusPass
	}
	return res
}

// RunStart launches a long-running start command. Surviving past timeout
// is a pass (the process group is then killed); exiting before it, with
// any code, is a fail.
func (r *Runner) RunStart(ctx context.Context, command, dir string, timeout time.Duration) *Result {
	ctx, span := r.tracer.Start(ctx, "checks.run_start")
	defer span.End()

	res := r.newResult(TypeStart, command)
	defer r.finish(ctx, span, res)

	if strings.TrimSpace(command) == "" {
		res.Status = StatusSkip
		res.StderrSummary = "no start command configured"
		return res
	}
	if r.reject(res) {
		return res
	}

	timeout = r.TimeoutFor(TypeStart, timeout)
	ex := r.execute(ctx, command, dir, timeout)
	r.apply(res, ex)

	switch {
	case ex.startErr != nil:
		res.Status = StatusFail
		res.ExitCode = -1
		res.StderrSummary = "failed to start: " + ex.startErr.Error()
		res.err = ex.startErr
	case ex.timedOut:
		res.Status = StatusPass
		res.TimedOut = true
	case ex.cancelled:
		res.Status = StatusFail
		res.err = fmt.Errorf("start check cancelled: %w", ctx.Err())
	default:
		res.Status = StatusFail
		res.err = fmt.Errorf("process exited early with code %d after %s", ex.exitCode, ex.duration.Round(time.Millisecond))
		res.StderrSummary = strings.TrimSpace(res.err.Error() + "\n" + res.StderrSummary)
	}
	return res
}

func (r *Runner) newResult(typ Type, command string) *Result {
	return &Result{
		Type:      typ,
		Command:   command,
		Timestamp: r.now().UTC(),
	}
}

// reject fails res without spawning anything when the command is denylisted.
func (r *Runner) reject(res *Result) bool {
	rule := Denied(res.Command)
	if rule == "" {
		return false
	}
	res.Status = StatusFail
	res.ExitCode = -1
	res.Rejected = true
	res.err = &SandboxRejection{Command: res.Command, Rule: rule}
	res.StderrSummary = res.err.Error()
	RejectedTotal.WithLabelValues(rule).Inc()
	return true
}

func (r *Runner) apply(res *Result, ex *execution) {
	res.ExitCode = ex.exitCode
	res.Duration = ex.duration
	res.Truncated = ex.stdout.Truncated() || ex.stderr.Truncated()
	res.StdoutSummary = r.scrub(tail(ex.stdout.Bytes(), summaryBytes))
	res.StderrSummary = r.scrub(tail(ex.stderr.Bytes(), summaryBytes))
}

func (r *Runner) scrub(s string) string {
	s = strings.TrimSpace(s)
	if r.scrubber == nil || s == "" {
		return s
	}
	return r.scrubber.Scrub(s)
}

func (r *Runner) finish(ctx context.Context, span trace.Span, res *Result) {
	if res.Duration == 0 {
		res.Duration = r.now().Sub(res.Timestamp)
	}
	span.SetAttributes(
		attribute.String("check.status", string(res.Status)),
		attribute.Int("check.exit_code", res.ExitCode),
	)
	if res.Status == StatusFail {
		span.SetStatus(codes.Error, string(res.Type)+" check failed")
	}
	ChecksTotal.WithLabelValues(string(res.Type), string(res.Status)).Inc()
	CheckDuration.WithLabelValues(string(res.Type)).Observe(res.Duration.Seconds())

	fields := []zap.Field{
		zap.String("type", string(res.Type)),
		zap.String("status", string(res.Status)),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
	}
	if ctx.Err() != nil {
		fields = append(fields, zap.Bool("cancelled", true))
	}
	if res.Status == StatusFail {
		r.logger.Warn("check failed", append(fields, zap.Error(res.Err()))...)
		return
	}
	r.logger.Info("check finished", fields...)
}

type execution struct {
	exitCode  int
	timedOut  bool
	cancelled bool
	startErr  error
	duration  time.Duration
	stdout    *cappedBuffer
	stderr    *cappedBuffer
}

// execute runs command under two independent kill paths: the soft
// timeout (or ctx) sends SIGTERM to the process group, and a backup timer
// sends SIGKILL killGrace later if the group is still alive. No member of
// the group survives execute, whichever path the shell exits by.
func (r *Runner) execute(ctx context.Context, command, dir string, timeout time.Duration) *execution {
	ex := &execution{
		stdout: newCappedBuffer(r.maxOutput),
		stderr: newCappedBuffer(r.maxOutput),
	}

	cmd := exec.Command(r.shell, "-c", command)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.Stdout = ex.stdout
	cmd.Stderr = ex.stderr
	// Bounds Wait when an orphaned grandchild keeps the pipes open.
	cmd.WaitDelay = r.killGrace
	isolate(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		ex.startErr = err
		ex.exitCode = -1
		return ex
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	soft := time.NewTimer(timeout)
	defer soft.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
		// Background jobs left behind by a finished shell.
		if groupAlive(cmd) {
			terminate(cmd)
			r.reapGroup(cmd, time.Now().Add(r.killGrace))
		}
	case <-soft.C:
		ex.timedOut = true
		waitErr = r.stop(cmd, done)
	case <-ctx.Done():
		ex.cancelled = true
		waitErr = r.stop(cmd, done)
	}
	ex.duration = time.Since(start)
	ex.exitCode = exitCode(cmd, waitErr)
	return ex
}

func (r *Runner) stop(cmd *exec.Cmd, done <-chan error) error {
	terminate(cmd)
	backup := time.AfterFunc(r.killGrace, func() {
		r.logger.Warn("child ignored SIGTERM, sending SIGKILL", zap.Int("pid", cmd.Process.Pid))
		forceKill(cmd)
	})
	deadline := time.Now().Add(r.killGrace)
	err := <-done
	backup.Stop()
	// The shell is gone, but members that ignored SIGTERM may still hold
	// the group.
	r.reapGroup(cmd, deadline)
	return err
}

// groupPollInterval is how often reapGroup checks for surviving members.
const groupPollInterval = 20 * time.Millisecond

// reapGroup waits until deadline for the process group to empty, then
// sends SIGKILL to whatever is left.
func (r *Runner) reapGroup(cmd *exec.Cmd, deadline time.Time) {
	for groupAlive(cmd) {
		if !time.Now().Before(deadline) {
			r.logger.Warn("process group outlived the check, sending SIGKILL", zap.Int("pgid", cmd.Process.Pid))
			forceKill(cmd)
			return
		}
		time.Sleep(groupPollInterval)
	}
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}
