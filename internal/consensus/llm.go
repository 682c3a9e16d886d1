package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/quorum/internal/config"
)

// ErrUnparseableReview is returned when a model reply holds no review JSON.
var ErrUnparseableReview = errors.New("unparseable review reply")

const defaultReviewerSystemPrompt = "You are an independent software reviewer. Reply with JSON only."

// LLMReviewer reviews through a langchaingo model. Any OpenAI-compatible
// endpoint works through the openai client.
type LLMReviewer struct {
	llm llms.Model
}

// NewLLMReviewer wraps an existing model.
func NewLLMReviewer(llm llms.Model) *LLMReviewer {
	return &LLMReviewer{llm: llm}
}

// NewOpenAIReviewer builds a reviewer for one configured provider.
func NewOpenAIReviewer(p config.ProviderConfig) (*LLMReviewer, error) {
	token := p.APIKey.Value()
	if token == "" {
		// langchaingo requires a token even for local endpoints
		token = "unused"
	}
	opts := []openai.Option{
		openai.WithToken(token),
	}
	if p.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(p.BaseURL))
	}
	if p.Model != "" {
		opts = append(opts, openai.WithModel(p.Model))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", p.Name, err)
	}
	return &LLMReviewer{llm: llm}, nil
}

// Review implements Reviewer.
func (r *LLMReviewer) Review(ctx context.Context, prompt string, cfg ReviewerConfig) (*Review, error) {
	system := cfg.SystemPrompt
	if system == "" {
		system = defaultReviewerSystemPrompt
	}
	msgs := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextContent{Text: system}}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextContent{Text: prompt}}},
	}
	opts := []llms.CallOption{llms.WithTemperature(cfg.Temperature)}
	if cfg.Model != "" {
		opts = append(opts, llms.WithModel(cfg.Model))
	}

	resp, err := r.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("generate: empty response")
	}
	return ParseReview(resp.Choices[0].Content)
}

// RegistryFromConfig builds a registry with one LLM reviewer per provider
// and returns the matching rotation and runner options.
func RegistryFromConfig(providers []config.ProviderConfig) (*Registry, []ReviewerConfig, []Option, error) {
	reg := NewRegistry()
	rotation := make([]ReviewerConfig, 0, len(providers))
	var opts []Option
	for i, p := range providers {
		if _, err := reg.Get(p.Name); err != nil {
			rev, err := NewOpenAIReviewer(p)
			if err != nil {
				return nil, nil, nil, err
			}
			if err := reg.Register(p.Name, rev); err != nil {
				return nil, nil, nil, err
			}
			if p.RateLimit > 0 {
				opts = append(opts, WithRateLimit(p.Name, p.RateLimit))
			}
		}
		rotation = append(rotation, ReviewerConfig{
			ID:          fmt.Sprintf("%s-%d", p.Name, i+1),
			Provider:    p.Name,
			Model:       p.Model,
			Temperature: p.Temperature,
		})
	}
	return reg, rotation, opts, nil
}

// rawReview accepts the field spellings models commonly produce.
type rawReview struct {
	Approved       *bool    `json:"approved"`
	Conditional    bool     `json:"conditional"`
	Decision       string   `json:"decision"`
	Vote           string   `json:"vote"`
	Score          *float64 `json:"score"`
	Confidence     *float64 `json:"confidence"`
	BlockingIssues []string `json:"blocking_issues"`
	Blocking       []string `json:"blocking"`
	Suggestions    []string `json:"suggestions"`
	Summary        string   `json:"summary"`
}

// ParseReview extracts the review object from a model reply. The reply
// may wrap the JSON in prose or a code fence. score is on the 0-100 scale
// and wins over confidence, which is a 0-1 fraction.
func ParseReview(text string) (*Review, error) {
	obj := jsonObject(text)
	if obj == "" {
		return nil, fmt.Errorf("%w: no JSON object", ErrUnparseableReview)
	}
	var raw rawReview
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableReview, err)
	}

	r := &Review{
		Conditional:    raw.Conditional,
		BlockingIssues: append(raw.BlockingIssues, raw.Blocking...),
		Suggestions:    raw.Suggestions,
		Summary:        raw.Summary,
	}
	if r.BlockingIssues == nil {
		r.BlockingIssues = []string{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}

	decision := strings.ToUpper(strings.TrimSpace(firstNonEmpty(raw.Decision, raw.Vote)))
	switch {
	case raw.Approved != nil:
		r.Approved = *raw.Approved
	case decision == string(Approve):
		r.Approved = true
	case decision == string(Conditional):
		r.Approved = true
		r.Conditional = true
	case decision == string(Reject):
		r.Approved = false
	default:
		return nil, fmt.Errorf("%w: no approved or decision field", ErrUnparseableReview)
	}

	switch {
	case raw.Score != nil:
		r.Score = clamp01(*raw.Score/100) * 100
	case raw.Confidence != nil:
		r.Score = clamp01(*raw.Confidence) * 100
	}
	return r, nil
}

// jsonObject returns the outermost {...} span of text.
func jsonObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
