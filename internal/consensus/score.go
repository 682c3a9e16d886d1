package consensus

import (
	"fmt"
	"math"
	"strings"
)

// Vote weights. Each is multiplied by the vote's confidence.
const (
	weightApprove     = 1.0
	weightConditional = 0.5
	weightReject      = -1.0
)

// ComputeScore aggregates votes under rules. The value is the mean of
// weight*confidence, clamped to [0,1]. The round passes only when the
// value meets the threshold, enough votes arrived for both quorum and the
// reviewer minimum, and no vote carries a blocking issue. A single
// blocking issue vetoes approval whatever the aggregate.
func ComputeScore(votes []Vote, rules Rules) Score {
	s := Score{Votes: len(votes)}

	var total float64
	for _, v := range votes {
		total += weight(v.Decision) * clamp01(v.Confidence)
		for _, issue := range v.BlockingIssues {
			if issue = strings.TrimSpace(issue); issue != "" {
				s.Blocking = append(s.Blocking, issue)
			}
		}
	}
	if len(votes) > 0 {
		s.Value = clamp01(total / float64(len(votes)))
	}
	// Avoid 0.7 != 0.69999 surprises at the threshold boundary.
	s.Value = math.Round(s.Value*1e9) / 1e9

	minVotes := rules.Quorum
	if rules.MinReviewers > minVotes {
		minVotes = rules.MinReviewers
	}
	s.Quorum = len(votes) >= rules.Quorum

	switch {
	case len(votes) == 0:
		s.Reason = "no votes"
	case len(votes) < minVotes:
		s.Reason = fmt.Sprintf("only %d of %d required votes", len(votes), minVotes)
	case len(s.Blocking) > 0:
		s.Reason = fmt.Sprintf("%d blocking issue(s) raised", len(s.Blocking))
	case s.Value < rules.Threshold:
		s.Reason = fmt.Sprintf("score %.2f below threshold %.2f", s.Value, rules.Threshold)
	default:
		s.Passed = true
		s.Reason = fmt.Sprintf("score %.2f meets threshold %.2f with %d votes", s.Value, rules.Threshold, len(votes))
	}
	return s
}

func weight(d Decision) float64 {
	switch d {
	case Approve:
		return weightApprove
	case Conditional:
		return weightConditional
	case Reject:
		return weightReject
	}
	return 0
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// voteFromReview normalises a provider reply. Confidence is score/100.
// The decision is taken as reported; blocking issues veto in ComputeScore.
func voteFromReview(cfg ReviewerConfig, promptHash string, r *Review) Vote {
	v := Vote{
		ReviewerID:     cfg.ID,
		Provider:       cfg.Provider,
		Model:          cfg.Model,
		Temperature:    cfg.Temperature,
		PromptHash:     promptHash,
		Confidence:     clamp01(r.Score / 100),
		BlockingIssues: nonEmpty(r.BlockingIssues),
		Suggestions:    nonEmpty(r.Suggestions),
	}
	switch {
	case r.Approved && r.Conditional:
		v.Decision = Conditional
	case r.Approved:
		v.Decision = Approve
	case r.Conditional:
		v.Decision = Conditional
	default:
		v.Decision = Reject
	}
	return v
}

// failedVote converts a reviewer transport failure into a REJECT with a
// synthetic blocking issue so the round still completes.
func failedVote(cfg ReviewerConfig, promptHash string, err error) Vote {
	return Vote{
		ReviewerID:     cfg.ID,
		Provider:       cfg.Provider,
		Model:          cfg.Model,
		Temperature:    cfg.Temperature,
		PromptHash:     promptHash,
		Decision:       Reject,
		Confidence:     0,
		BlockingIssues: []string{fmt.Sprintf("reviewer %s unavailable: %v", cfg.ID, err)},
		Suggestions:    []string{},
		Failed:         true,
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
