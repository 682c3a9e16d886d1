package checks

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// placeholderPatterns are the markers a finished deliverable must not
// contain. Names are what allowlists refer to.
var placeholderPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"TODO", regexp.MustCompile(`\bTODO\b`)},
	{"FIXME", regexp.MustCompile(`\bFIXME\b`)},
	{"XXX", regexp.MustCompile(`\bXXX\b`)},
	{"HACK", regexp.MustCompile(`\bHACK\b`)},
	{"lorem", regexp.MustCompile(`(?i)\blorem ipsum\b`)},
	{"mock", regexp.MustCompile(`(?i)\b(mock|fake|dummy)[ _-]?data\b`)},
	{"not-implemented", regexp.MustCompile(`(?i)\bnot (yet )?implemented\b`)},
}

var sourceExts = map[string]bool{
	".go": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".mjs": true, ".cjs": true, ".py": true, ".rs": true, ".java": true,
	".kt": true, ".rb": true, ".php": true, ".cs": true, ".swift": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".vue": true,
	".svelte": true, ".sql": true, ".sh": true,
}

// skipScanDirs are never descended into by the static scans.
var skipScanDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "dist": true,
	"build": true, "target": true, ".venv": true, "venv": true,
	"__pycache__": true, ".next": true, ".quorum": true, "coverage": true,
}

// maxFindingsInSummary bounds the stderr summary of a static scan.
const maxFindingsInSummary = 20

// Allowlist maps a slash-separated glob (matched against the path relative
// to the project root, or its base name) to pattern names tolerated there.
// The pattern name "*" tolerates everything.
type Allowlist map[string][]string

func (a Allowlist) allows(rel, pattern string) bool {
	base := path.Base(rel)
	for glob, names := range a {
		ok, _ := path.Match(glob, rel)
		if !ok {
			ok, _ = path.Match(glob, base)
		}
		if !ok && strings.HasSuffix(glob, "/**") {
			ok = strings.HasPrefix(rel, strings.TrimSuffix(glob, "**"))
		}
		if !ok {
			continue
		}
		for _, n := range names {
			if n == "*" || strings.EqualFold(n, pattern) {
				return true
			}
		}
	}
	return false
}

// ScanPlaceholders walks dirs (relative to root; root itself when empty)
// for placeholder markers in source files and reports one aggregated
// result. Test files and testdata are not scanned.
func ScanPlaceholders(ctx context.Context, root string, dirs []string, allow Allowlist) *Result {
	start := time.Now()
	res := &Result{
		Type:      TypePlaceholder,
		Command:   "placeholder-scan:" + strings.Join(dirs, ","),
		Timestamp: start.UTC(),
	}
	defer func() {
		res.Duration = time.Since(start)
		ChecksTotal.WithLabelValues(string(res.Type), string(res.Status)).Inc()
	}()

	if len(dirs) == 0 {
		dirs = []string{"."}
	}

	for _, dir := range dirs {
		base := filepath.Join(root, dir)
		if _, err := os.Stat(base); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("scan directory %s not found", dir))
			continue
		}
		err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() {
				if p != base && (skipScanDirs[d.Name()] || d.Name() == "testdata") {
					return filepath.SkipDir
				}
				return nil
			}
			if !sourceExts[strings.ToLower(filepath.Ext(p))] || isTestFile(d.Name()) {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			found, skipped, err := scanFile(p, rel, allow)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s not scanned: %v", rel, err))
				return nil
			}
			if skipped > 0 {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %d line(s) over %d bytes not scanned", rel, skipped, maxScanLine))
			}
			res.Findings = append(res.Findings, found...)
			return nil
		})
		if err != nil {
			res.Status = StatusFail
			res.ExitCode = -1
			res.err = fmt.Errorf("placeholder scan: %w", err)
			res.StderrSummary = res.err.Error()
			return res
		}
	}

	if len(res.Findings) > 0 {
		res.Status = StatusFail
		res.ExitCode = 1
		res.StderrSummary = summarizeFindings(res.Findings)
		return res
	}
	res.Status = StatusPass
	return res
}

// maxScanLine bounds the lines scanFile inspects. Longer lines (minified
// bundles, embedded data) are skipped and counted.
const maxScanLine = 1024 * 1024

func scanFile(abs, rel string, allow Allowlist) (found []Finding, skipped int, err error) {
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, 0, err
	}
	if isBinary(content) {
		return nil, 0, nil
	}
	line := 0
	for len(content) > 0 {
		line++
		var text []byte
		if i := bytes.IndexByte(content, '\n'); i >= 0 {
			text, content = content[:i], content[i+1:]
		} else {
			text, content = content, nil
		}
		if len(text) > maxScanLine {
			skipped++
			continue
		}
		text = bytes.TrimSuffix(text, []byte{'\r'})
		for _, p := range placeholderPatterns {
			if !p.re.Match(text) || allow.allows(rel, p.name) {
				continue
			}
			found = append(found, Finding{
				Path:    rel,
				Line:    line,
				Pattern: p.name,
				Text:    truncate(strings.TrimSpace(string(text)), 160),
			})
			break
		}
	}
	return found, skipped, nil
}

func isTestFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "_test.go") ||
		strings.Contains(lower, ".test.") ||
		strings.Contains(lower, ".spec.") ||
		strings.HasPrefix(lower, "test_")
}

func isBinary(content []byte) bool {
	n := len(content)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}

func summarizeFindings(findings []Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d finding(s)", len(findings))
	for i, f := range findings {
		if i == maxFindingsInSummary {
			fmt.Fprintf(&b, "\n... %d more", len(findings)-i)
			break
		}
		fmt.Fprintf(&b, "\n%s:%d [%s] %s", f.Path, f.Line, f.Pattern, f.Text)
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
