package consensus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
)

// Decision is one reviewer's verdict.
type Decision string

const (
	Approve     Decision = "APPROVE"
	Reject      Decision = "REJECT"
	Conditional Decision = "CONDITIONAL"
)

// Mode selects how a round is run.
type Mode string

const (
	ModeIndependent Mode = "independent"
	ModeIterative   Mode = "iterative"
)

// Constraint is a typed restriction on a plan, e.g. {security, "no PII in logs"}.
type Constraint struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// PacketMeta identifies a plan packet.
type PacketMeta struct {
	ID      string `json:"id"`
	Phase   string `json:"phase"`
	Role    string `json:"role"`
	Version int    `json:"version"`
}

// PlanPacket is the machine-checkable proposal reviewers vote on.
type PlanPacket struct {
	Meta               PacketMeta     `json:"meta"`
	Summary            string         `json:"summary,omitempty"`
	AcceptanceCriteria []string       `json:"acceptance_criteria"`
	Constraints        []Constraint   `json:"constraints,omitempty"`
	OpenQuestions      []string       `json:"open_questions,omitempty"`
	Evidence           []artifact.Ref `json:"evidence,omitempty"`
	Artifact           *artifact.Ref  `json:"artifact,omitempty"`
}

// ErrInvalidPacket is returned for packets that cannot be reviewed.
var ErrInvalidPacket = errors.New("invalid plan packet")

// Validate checks the packet has what a reviewer needs.
func (p *PlanPacket) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil packet", ErrInvalidPacket)
	}
	if p.Meta.Phase == "" {
		return fmt.Errorf("%w: phase is required", ErrInvalidPacket)
	}
	if len(p.AcceptanceCriteria) == 0 {
		return fmt.Errorf("%w: at least one acceptance criterion is required", ErrInvalidPacket)
	}
	return nil
}

// ReviewerConfig binds a reviewer slot to one provider, model and temperature.
type ReviewerConfig struct {
	ID          string  `json:"id"`
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	// SystemPrompt comes from the reviewer role definition.
	SystemPrompt string `json:"-"`
}

// Review is the normalised reply every provider adapter returns.
type Review struct {
	Approved       bool     `json:"approved"`
	Conditional    bool     `json:"conditional,omitempty"`
	Score          float64  `json:"score"` // 0-100
	BlockingIssues []string `json:"blocking_issues"`
	Suggestions    []string `json:"suggestions"`
	Summary        string   `json:"summary,omitempty"`
}

// Vote is one reviewer's independent judgement.
type Vote struct {
	ReviewerID     string         `json:"reviewer_id"`
	Provider       string         `json:"provider"`
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	PromptHash     string         `json:"prompt_hash"`
	Decision       Decision       `json:"decision"`
	Confidence     float64        `json:"confidence"`
	BlockingIssues []string       `json:"blocking_issues"`
	Suggestions    []string       `json:"suggestions"`
	Evidence       []artifact.Ref `json:"evidence,omitempty"`
	// Failed marks a vote synthesised from a reviewer call that errored.
	Failed   bool          `json:"failed,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Rules are the consensus parameters applied to a round.
type Rules struct {
	Threshold     float64 `json:"threshold"`
	Quorum        int     `json:"quorum"`
	MinReviewers  int     `json:"min_reviewers"`
	MaxIterations int     `json:"max_iterations"`
	Mode          Mode    `json:"mode"`
}

// DefaultRules returns threshold 0.7, quorum 2, two reviewers, three
// iterations, independent mode.
func DefaultRules() Rules {
	return Rules{Threshold: 0.7, Quorum: 2, MinReviewers: 2, MaxIterations: 3, Mode: ModeIndependent}
}

// Score is the outcome of ComputeScore.
type Score struct {
	Value    float64  `json:"value"`
	Passed   bool     `json:"passed"`
	Votes    int      `json:"votes"`
	Quorum   bool     `json:"quorum_met"`
	Blocking []string `json:"blocking_issues,omitempty"`
	Reason   string   `json:"reason"`
}

// Packet is the immutable result of one consensus attempt. A retry builds
// a new Packet; nothing edits an existing one.
type Packet struct {
	ID             string        `json:"id"`
	PlanPacket     PacketMeta    `json:"plan_packet"`
	PlanPacketRef  *artifact.Ref `json:"plan_packet_ref,omitempty"`
	Votes          []Vote        `json:"votes"`
	Rules          Rules         `json:"rules"`
	Score          Score         `json:"score"`
	Approved       bool          `json:"approved"`
	BlockingIssues []string      `json:"blocking_issues,omitempty"`
	Iteration      int           `json:"iteration"`
	CreatedAt      time.Time     `json:"created_at"`
}

var (
	// ErrReviewerFailure matches *ReviewerFailure.
	ErrReviewerFailure = errors.New("reviewer failure")
	// ErrConsensusRejected matches *RejectedError.
	ErrConsensusRejected = errors.New("consensus rejected")
	// ErrUnknownProvider is returned when a rotation names an unregistered provider.
	ErrUnknownProvider = errors.New("unknown reviewer provider")
	// ErrNoReviewers is returned when a round has nobody to ask.
	ErrNoReviewers = errors.New("no reviewers configured")
)

// ReviewerFailure wraps a transport-level error from one reviewer call.
type ReviewerFailure struct {
	ReviewerID string
	Provider   string
	Err        error
}

func (e *ReviewerFailure) Error() string {
	return fmt.Sprintf("reviewer %s (%s) failed: %v", e.ReviewerID, e.Provider, e.Err)
}

func (e *ReviewerFailure) Unwrap() error { return e.Err }

func (e *ReviewerFailure) Is(target error) bool { return target == ErrReviewerFailure }

// RejectedError reports a packet that did not pass.
type RejectedError struct {
	Packet *Packet
}

func (e *RejectedError) Error() string {
	msg := "consensus rejected: " + e.Packet.Score.Reason
	if len(e.Packet.BlockingIssues) > 0 {
		msg += " [" + strings.Join(e.Packet.BlockingIssues, "; ") + "]"
	}
	return msg
}

func (e *RejectedError) Is(target error) bool { return target == ErrConsensusRejected }
