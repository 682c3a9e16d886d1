package sanitize

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// dangerousPatternChars could cause shell injection or pathological
// matching in patterns.
var dangerousPatternChars = regexp.MustCompile(`[;\|\$\x60\\<>&\(\)\{\}]|\.{3,}|\*{3,}`)

// ValidatePath cleans p and returns its absolute form. A relative p is
// resolved against root. When root is non-empty the result must stay
// inside it.
func ValidatePath(p, root string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}
	if hasDotDot(p) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, p)
	}

	abs := filepath.Clean(p)
	if !filepath.IsAbs(abs) {
		base := root
		if base == "" {
			base = "."
		}
		var err error
		abs, err = filepath.Abs(filepath.Join(base, abs))
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
	}

	if root != "" {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return "", fmt.Errorf("failed to resolve root: %w", err)
		}
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %q escapes %s", ErrPathTraversal, p, absRoot)
		}
	}
	return abs, nil
}

// ValidateRelative checks that p is a relative path that stays below
// whatever directory it is later joined onto.
func ValidateRelative(p string) error {
	if p == "" {
		return ErrEmptyPath
	}
	if filepath.IsAbs(p) || path.IsAbs(filepath.ToSlash(p)) {
		return fmt.Errorf("%w: %q", ErrAbsolutePath, p)
	}
	if hasDotDot(p) {
		return fmt.Errorf("%w: %q", ErrPathTraversal, p)
	}
	return nil
}

// ValidateGlobPattern checks a slash-separated glob for dangerous
// constructs and syntax errors. "**" is accepted.
func ValidateGlobPattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	if dangerousPatternChars.MatchString(pattern) {
		return fmt.Errorf("%w: %q contains dangerous characters", ErrInvalidPattern, pattern)
	}
	if hasDotDot(pattern) {
		return fmt.Errorf("%w: %q contains path traversal", ErrInvalidPattern, pattern)
	}
	if _, err := path.Match(pattern, "probe"); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
	}
	return nil
}

// ValidateGlobPatterns validates each pattern and reports the first failure.
func ValidateGlobPatterns(patterns []string) error {
	for i, p := range patterns {
		if err := ValidateGlobPattern(p); err != nil {
			return fmt.Errorf("pattern[%d]: %w", i, err)
		}
	}
	return nil
}

// hasDotDot reports whether any segment of p is "..".
func hasDotDot(p string) bool {
	for _, seg := range strings.FieldsFunc(filepath.ToSlash(p), func(r rune) bool { return r == '/' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
