package checks

import (
	"errors"
	"fmt"
	"time"
)

// Type names a gate check.
type Type string

const (
	TypeBuild       Type = "build"
	TypeTest        Type = "test"
	TypeLint        Type = "lint"
	TypeTypecheck   Type = "typecheck"
	TypeMigration   Type = "migration"
	TypeStart       Type = "start"
	TypeEnv         Type = "env"
	TypePlaceholder Type = "placeholder"
	TypeSecrets     Type = "secrets"
)

// Status is the outcome of one check.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// DefaultTimeouts per check type. Overrides passed to Run win when > 0.
var DefaultTimeouts = map[Type]time.Duration{
	TypeBuild:     20 * time.Minute,
	TypeTest:      10 * time.Minute,
	TypeLint:      5 * time.Minute,
	TypeTypecheck: 5 * time.Minute,
	TypeMigration: 5 * time.Minute,
	TypeStart:     30 * time.Second,
	TypeSecrets:   2 * time.Minute,
}

// fallbackTimeout applies to types missing from DefaultTimeouts.
const fallbackTimeout = 5 * time.Minute

// Result is the outcome of one sandboxed command or static scan.
type Result struct {
	Type          Type          `json:"type"`
	Status        Status        `json:"status"`
	Command       string        `json:"command"`
	ExitCode      int           `json:"exit_code"`
	StderrSummary string        `json:"stderr_summary,omitempty"`
	StdoutSummary string        `json:"stdout_summary,omitempty"`
	Duration      time.Duration `json:"duration"`
	Timestamp     time.Time     `json:"timestamp"`
	TimedOut      bool          `json:"timed_out,omitempty"`
	Rejected      bool          `json:"rejected,omitempty"`
	Truncated     bool          `json:"truncated,omitempty"`
	Findings      []Finding     `json:"findings,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`

	err error
}

// Finding is one hit from a static scan.
type Finding struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Pattern string `json:"pattern"`
	Text    string `json:"text"`
}

// Passed reports whether the check passed or was skipped.
func (r *Result) Passed() bool {
	return r.Status != StatusFail
}

// Err returns the typed cause of a failure: *SandboxRejection,
// *TimeoutError, or a plain error describing the exit. Nil unless failed.
func (r *Result) Err() error {
	if r.Status != StatusFail {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return fmt.Errorf("%s check failed: %s", r.Type, r.StderrSummary)
}

var (
	// ErrSandboxRejected matches *SandboxRejection.
	ErrSandboxRejected = errors.New("command rejected by sandbox")
	// ErrTimeout matches *TimeoutError.
	ErrTimeout = errors.New("check timed out")
)

// SandboxRejection is returned for commands matching the denylist. The
// command is never executed.
type SandboxRejection struct {
	Command string
	Rule    string
}

func (e *SandboxRejection) Error() string {
	return fmt.Sprintf("command rejected (%s): %q", e.Rule, e.Command)
}

func (e *SandboxRejection) Is(target error) bool { return target == ErrSandboxRejected }

// TimeoutError records a check that exceeded its budget.
type TimeoutError struct {
	Type    Type
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s check exceeded %s", e.Type, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
