// Package ignore matches project paths against .gitignore-style rules so
// snapshots and placeholder scans skip what the project itself ignores.
package ignore

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// rule is one parsed ignore line.
type rule struct {
	pattern  string
	dirOnly  bool
	anchored bool // contains a slash, so it matches from the root
	negate   bool
}

// Matcher holds the rules from a project's ignore files.
type Matcher struct {
	rules []rule
}

// Load reads ignoreFiles (default: .gitignore) from root. Missing files are
// skipped; an empty Matcher ignores nothing.
func Load(root string, ignoreFiles ...string) (*Matcher, error) {
	if len(ignoreFiles) == 0 {
		ignoreFiles = []string{".gitignore"}
	}
	m := &Matcher{}
	for _, name := range ignoreFiles {
		f, err := os.Open(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if r, ok := parseLine(scanner.Text()); ok {
				m.rules = append(m.rules, r)
			}
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// New builds a Matcher from in-memory lines.
func New(lines ...string) *Matcher {
	m := &Matcher{}
	for _, l := range lines {
		if r, ok := parseLine(l); ok {
			m.rules = append(m.rules, r)
		}
	}
	return m
}

func parseLine(line string) (rule, bool) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}
	var r rule
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.Contains(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	line = strings.TrimPrefix(line, "**/")
	if line == "" {
		return rule{}, false
	}
	r.pattern = line
	return r, true
}

// Match reports whether rel (slash separated, relative to root) is ignored.
// Later rules override earlier ones, and "!" rules re-include.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.matches(rel) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r rule) matches(rel string) bool {
	if r.anchored {
		ok, _ := path.Match(r.pattern, rel)
		return ok
	}
	ok, _ := path.Match(r.pattern, path.Base(rel))
	return ok
}

// Len returns the number of parsed rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}
