package consensus

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Reviewer performs one review call against a provider. Implementations
// return an error only for transport-level failures; a negative judgement
// is a Review with Approved=false.
type Reviewer interface {
	Review(ctx context.Context, prompt string, cfg ReviewerConfig) (*Review, error)
}

// ReviewerFunc adapts a function to Reviewer.
type ReviewerFunc func(ctx context.Context, prompt string, cfg ReviewerConfig) (*Review, error)

// Review calls f.
func (f ReviewerFunc) Review(ctx context.Context, prompt string, cfg ReviewerConfig) (*Review, error) {
	return f(ctx, prompt, cfg)
}

// Registry maps provider names to reviewers. It is populated at startup
// and read concurrently during rounds.
type Registry struct {
	mu        sync.RWMutex
	reviewers map[string]Reviewer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{reviewers: make(map[string]Reviewer)}
}

// Register adds r under provider name. Names are unique.
func (r *Registry) Register(name string, rev Reviewer) error {
	if name == "" {
		return fmt.Errorf("register reviewer: empty provider name")
	}
	if rev == nil {
		return fmt.Errorf("register reviewer %s: nil reviewer", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reviewers[name]; ok {
		return fmt.Errorf("register reviewer %s: already registered", name)
	}
	r.reviewers[name] = rev
	return nil
}

// Get returns the reviewer for provider name.
func (r *Registry) Get(name string) (Reviewer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rev, ok := r.reviewers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return rev, nil
}

// Names lists registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.reviewers))
	for n := range r.reviewers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
