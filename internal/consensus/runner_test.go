package consensus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPacket() *PlanPacket {
	return &PlanPacket{
		Meta:               PacketMeta{ID: "pp-1", Phase: "planning", Role: "architect", Version: 1},
		Summary:            "Split the ingest service into reader and writer.",
		AcceptanceCriteria: []string{"writer is idempotent", "reader has no write path"},
		Constraints: []Constraint{
			{Type: "security", Description: "no plaintext credentials"},
			{Type: "performance", Description: "p99 under 200ms"},
			{Type: "compat", Description: "v1 API unchanged"},
		},
	}
}

func fixed(r *Review) ReviewerFunc {
	return func(context.Context, string, ReviewerConfig) (*Review, error) {
		return r, nil
	}
}

func newTestRunner(t *testing.T, reviewers map[string]Reviewer, rotation []ReviewerConfig, opts ...Option) *Runner {
	t.Helper()
	reg := NewRegistry()
	for name, rev := range reviewers {
		require.NoError(t, reg.Register(name, rev))
	}
	return NewRunner(reg, rotation, opts...)
}

func TestRunIndependent_BlockingIssueRejects(t *testing.T) {
	r := newTestRunner(t,
		map[string]Reviewer{
			"a": fixed(&Review{Approved: true, Score: 95}),
			"b": fixed(&Review{Approved: false, Score: 40, BlockingIssues: []string{"missing rollback plan"}}),
		},
		[]ReviewerConfig{{Provider: "a"}, {Provider: "b"}},
	)

	rules := Rules{Threshold: 0.9, Quorum: 2, MinReviewers: 2, MaxIterations: 1}
	p, err := r.RunIndependent(context.Background(), testPacket(), "proposal", rules)
	require.NoError(t, err)

	assert.False(t, p.Approved)
	assert.Equal(t, []string{"missing rollback plan"}, p.BlockingIssues)
	require.Len(t, p.Votes, 2)
	assert.Equal(t, Approve, p.Votes[0].Decision)
	assert.Equal(t, Reject, p.Votes[1].Decision)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "pp-1", p.PlanPacket.ID)

	err = p.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConsensusRejected)
	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Same(t, p, rej.Packet)
}

func TestRunIndependent_Approves(t *testing.T) {
	r := newTestRunner(t,
		map[string]Reviewer{
			"a": fixed(&Review{Approved: true, Score: 90}),
			"b": fixed(&Review{Approved: true, Score: 80, Suggestions: []string{"add a metric"}}),
		},
		[]ReviewerConfig{{Provider: "a"}, {Provider: "b"}},
	)

	p, err := r.RunIndependent(context.Background(), testPacket(), "proposal", DefaultRules())
	require.NoError(t, err)
	assert.True(t, p.Approved)
	assert.InDelta(t, 0.85, p.Score.Value, 1e-9)
	assert.Empty(t, p.BlockingIssues)
	assert.NoError(t, p.Err())
	assert.Equal(t, []string{"add a metric"}, p.Votes[1].Suggestions)
}

func TestRunIndependent_IdenticalPromptForAllReviewers(t *testing.T) {
	var (
		mu      sync.Mutex
		prompts []string
	)
	capture := ReviewerFunc(func(_ context.Context, prompt string, _ ReviewerConfig) (*Review, error) {
		mu.Lock()
		prompts = append(prompts, prompt)
		mu.Unlock()
		return &Review{Approved: true, Score: 100}, nil
	})
	r := newTestRunner(t,
		map[string]Reviewer{"a": capture, "b": capture, "c": capture},
		[]ReviewerConfig{{Provider: "a", Temperature: 0.1}, {Provider: "b", Temperature: 0.5}, {Provider: "c", Temperature: 0.9}},
	)

	p, err := r.RunIndependent(context.Background(), testPacket(), "proposal", DefaultRules())
	require.NoError(t, err)

	require.Len(t, prompts, 3)
	for _, pr := range prompts[1:] {
		assert.Equal(t, prompts[0], pr)
	}
	hash := PromptHash(prompts[0])
	for _, v := range p.Votes {
		assert.Equal(t, hash, v.PromptHash)
	}
	assert.Contains(t, prompts[0], "no plaintext credentials")
	assert.Contains(t, prompts[0], "writer is idempotent")
}

func TestRunIndependent_ReviewerCountIsMaxOfMinAndRotation(t *testing.T) {
	var calls atomic.Int32
	counting := ReviewerFunc(func(context.Context, string, ReviewerConfig) (*Review, error) {
		calls.Add(1)
		return &Review{Approved: true, Score: 100}, nil
	})
	r := newTestRunner(t, map[string]Reviewer{"a": counting}, []ReviewerConfig{{Provider: "a"}})

	rules := DefaultRules()
	rules.MinReviewers = 3
	rules.Quorum = 2
	p, err := r.RunIndependent(context.Background(), testPacket(), "", rules)
	require.NoError(t, err)

	assert.EqualValues(t, 3, calls.Load())
	require.Len(t, p.Votes, 3)
	ids := map[string]bool{}
	for _, v := range p.Votes {
		ids[v.ReviewerID] = true
	}
	assert.Len(t, ids, 3, "repeated provider slots get distinct ids")
	assert.True(t, p.Approved)
}

func TestRunIndependent_FailureBecomesReject(t *testing.T) {
	r := newTestRunner(t,
		map[string]Reviewer{
			"a": fixed(&Review{Approved: true, Score: 100}),
			"b": ReviewerFunc(func(context.Context, string, ReviewerConfig) (*Review, error) {
				return nil, errors.New("connection refused")
			}),
		},
		[]ReviewerConfig{{ID: "alpha", Provider: "a"}, {ID: "beta", Provider: "b"}},
	)

	p, err := r.RunIndependent(context.Background(), testPacket(), "", DefaultRules())
	require.NoError(t, err)

	assert.False(t, p.Approved)
	require.Len(t, p.Votes, 2)
	failed := p.Votes[1]
	assert.True(t, failed.Failed)
	assert.Equal(t, Reject, failed.Decision)
	assert.Zero(t, failed.Confidence)
	require.Len(t, failed.BlockingIssues, 1)
	assert.Contains(t, failed.BlockingIssues[0], "beta")
	assert.Contains(t, failed.BlockingIssues[0], "connection refused")
}

func TestRunIndependent_NilReviewIsFailure(t *testing.T) {
	r := newTestRunner(t,
		map[string]Reviewer{"a": fixed(nil)},
		[]ReviewerConfig{{Provider: "a"}},
	)
	rules := DefaultRules()
	rules.MinReviewers = 1
	rules.Quorum = 1
	p, err := r.RunIndependent(context.Background(), testPacket(), "", rules)
	require.NoError(t, err)
	assert.True(t, p.Votes[0].Failed)
	assert.False(t, p.Approved)
}

func TestRunIndependent_ReviewerTimeout(t *testing.T) {
	slow := ReviewerFunc(func(ctx context.Context, _ string, _ ReviewerConfig) (*Review, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := newTestRunner(t,
		map[string]Reviewer{"slow": slow, "a": fixed(&Review{Approved: true, Score: 100})},
		[]ReviewerConfig{{Provider: "a"}, {Provider: "slow"}},
		WithReviewerTimeout(50*time.Millisecond),
	)

	p, err := r.RunIndependent(context.Background(), testPacket(), "", DefaultRules())
	require.NoError(t, err)
	assert.True(t, p.Votes[1].Failed)
	assert.False(t, p.Approved)
}

func TestRunIndependent_Cancelled(t *testing.T) {
	block := ReviewerFunc(func(ctx context.Context, _ string, _ ReviewerConfig) (*Review, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := newTestRunner(t, map[string]Reviewer{"a": block}, []ReviewerConfig{{Provider: "a"}})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := r.RunIndependent(ctx, testPacket(), "", DefaultRules())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunIndependent_InvalidInput(t *testing.T) {
	r := newTestRunner(t, map[string]Reviewer{"a": fixed(&Review{Approved: true})}, []ReviewerConfig{{Provider: "a"}})

	_, err := r.RunIndependent(context.Background(), &PlanPacket{Meta: PacketMeta{Phase: "planning"}}, "", DefaultRules())
	assert.ErrorIs(t, err, ErrInvalidPacket)

	empty := newTestRunner(t, nil, nil)
	_, err = empty.RunIndependent(context.Background(), testPacket(), "", DefaultRules())
	assert.ErrorIs(t, err, ErrNoReviewers)

	unknown := newTestRunner(t, nil, []ReviewerConfig{{Provider: "ghost"}})
	_, err = unknown.RunIndependent(context.Background(), testPacket(), "", DefaultRules())
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRunIterative_RevisesUntilApproved(t *testing.T) {
	var round atomic.Int32
	reviewer := ReviewerFunc(func(_ context.Context, prompt string, _ ReviewerConfig) (*Review, error) {
		if round.Add(1) == 1 {
			return &Review{Approved: false, Score: 30, BlockingIssues: []string{"no tests"}}, nil
		}
		if !strings.Contains(prompt, "now with tests") {
			return nil, errors.New("revision not applied")
		}
		return &Review{Approved: true, Score: 90}, nil
	})
	r := newTestRunner(t, map[string]Reviewer{"a": reviewer}, []ReviewerConfig{{Provider: "a"}})

	revise := func(_ context.Context, content string, fb *Review) (string, error) {
		assert.Equal(t, []string{"no tests"}, fb.BlockingIssues)
		return content + " now with tests", nil
	}
	rules := Rules{Threshold: 0.7, Quorum: 2, MinReviewers: 2, MaxIterations: 3, Mode: ModeIterative}
	p, err := r.Run(context.Background(), testPacket(), "proposal", rules, revise)
	require.NoError(t, err)

	assert.True(t, p.Approved, p.Score.Reason)
	assert.Equal(t, 2, p.Iteration)
	require.Len(t, p.Votes, 1)
	assert.Equal(t, 1, p.Rules.Quorum)
}

func TestRunIterative_StopsAtMaxIterations(t *testing.T) {
	var (
		calls   atomic.Int32
		prompts []string
	)
	reviewer := ReviewerFunc(func(_ context.Context, prompt string, _ ReviewerConfig) (*Review, error) {
		calls.Add(1)
		prompts = append(prompts, prompt)
		return &Review{Approved: false, Score: 20, BlockingIssues: []string{"still broken"}}, nil
	})
	r := newTestRunner(t, map[string]Reviewer{"a": reviewer}, []ReviewerConfig{{Provider: "a"}})

	rules := Rules{Threshold: 0.7, MaxIterations: 2, Mode: ModeIterative}
	p, err := r.Run(context.Background(), testPacket(), "proposal", rules, nil)
	require.NoError(t, err)

	assert.False(t, p.Approved)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 2, p.Iteration)
	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0], "Iteration")
	assert.Contains(t, prompts[1], "still broken")
	assert.Equal(t, []string{"still broken"}, p.BlockingIssues)
}

func TestRunner_RateLimit(t *testing.T) {
	var calls atomic.Int32
	counting := ReviewerFunc(func(context.Context, string, ReviewerConfig) (*Review, error) {
		calls.Add(1)
		return &Review{Approved: true, Score: 100}, nil
	})
	r := newTestRunner(t, map[string]Reviewer{"a": counting},
		[]ReviewerConfig{{Provider: "a"}, {Provider: "a"}},
		WithRateLimit("a", 1000),
	)
	p, err := r.RunIndependent(context.Background(), testPacket(), "", DefaultRules())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.True(t, p.Approved)
}

func TestRunner_UsesClock(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRunner(t,
		map[string]Reviewer{"a": fixed(&Review{Approved: true, Score: 100})},
		[]ReviewerConfig{{Provider: "a"}},
		WithClock(func() time.Time { return at }),
	)
	rules := DefaultRules()
	rules.Quorum, rules.MinReviewers = 1, 1
	p, err := r.RunIndependent(context.Background(), testPacket(), "", rules)
	require.NoError(t, err)
	assert.Equal(t, at, p.CreatedAt)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("b", fixed(nil)))
	require.NoError(t, reg.Register("a", fixed(nil)))
	assert.Error(t, reg.Register("a", fixed(nil)))
	assert.Error(t, reg.Register("", fixed(nil)))
	assert.Error(t, reg.Register("c", nil))
	assert.Equal(t, []string{"a", "b"}, reg.Names())

	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
