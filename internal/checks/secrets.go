package checks

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zricethezav/gitleaks/v8/detect"
	"github.com/zricethezav/gitleaks/v8/report"

	"github.com/fyrsmithlabs/quorum/internal/ignore"
)

// maxScanFileSize skips files larger than this in the secrets scan.
const maxScanFileSize = 1 << 20

// SecretScanner detects secrets with the gitleaks default ruleset.
// Building the detector compiles several hundred rules, so one scanner
// should be shared for the lifetime of a run.
type SecretScanner struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewSecretScanner builds a scanner with the gitleaks default config.
func NewSecretScanner() (*SecretScanner, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}
	return &SecretScanner{detector: d}, nil
}

func (s *SecretScanner) detect(content string) []report.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detector.DetectString(content)
}

// Scrub replaces each detected secret with [REDACTED:<rule>].
func (s *SecretScanner) Scrub(text string) string {
	if text == "" {
		return text
	}
	findings := s.detect(text)
	if len(findings) == 0 {
		return text
	}
	// Longest first so a secret containing another is replaced whole.
	sort.Slice(findings, func(i, j int) bool {
		return len(findings[i].Secret) > len(findings[j].Secret)
	})
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, f.Secret, "[REDACTED:"+f.RuleID+"]")
	}
	return text
}

// ScanSecrets walks root (respecting .gitignore and the default skip set)
// and fails when any file contains a detected secret. Finding text never
// carries the secret itself.
func (s *SecretScanner) ScanSecrets(ctx context.Context, root string) *Result {
	start := time.Now()
	res := &Result{
		Type:      TypeSecrets,
		Command:   "gitleaks:" + root,
		Timestamp: start.UTC(),
	}
	defer func() {
		res.Duration = time.Since(start)
		ChecksTotal.WithLabelValues(string(res.Type), string(res.Status)).Inc()
		CheckDuration.WithLabelValues(string(res.Type)).Observe(res.Duration.Seconds())
	}()

	matcher, err := ignore.Load(root)
	if err != nil {
		matcher = ignore.New()
	}

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if skipScanDirs[d.Name()] || matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Match(rel, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxScanFileSize {
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil || isBinary(content) {
			return nil
		}
		for _, f := range s.detect(string(content)) {
			res.Findings = append(res.Findings, Finding{
				Path:    rel,
				Line:    f.StartLine,
				Pattern: f.RuleID,
				Text:    f.Description,
			})
		}
		return nil
	})

	switch {
	case walkErr != nil:
		res.Status = StatusFail
		res.ExitCode = -1
		res.err = fmt.Errorf("secrets scan: %w", walkErr)
		res.StderrSummary = res.err.Error()
	case len(res.Findings) > 0:
		res.Status = StatusFail
		res.ExitCode = 1
		res.StderrSummary = summarizeFindings(res.Findings)
	default:
		res.Status = StatusPass
	}
	return res
}
