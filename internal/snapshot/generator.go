// Package snapshot captures deterministic, hashed summaries of a project
// tree. Reviewers are grounded in these facts, and two snapshots taken at
// different phases are compared to detect undocumented drift.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/quorum/internal/ignore"
	"go.uber.org/zap"
)

// DefaultMaxDepth bounds how deep Generate walks.
const DefaultMaxDepth = 6

// maxConfigBytes caps how much of a config file is hashed and parsed.
const maxConfigBytes = 1 << 20

// defaultSkipDirs are never walked: VCS metadata, dependency caches and
// build output.
var defaultSkipDirs = map[string]bool{
	".git":          true,
	".svn":          true,
	".hg":           true,
	".quorum":       true,
	"node_modules":  true,
	"vendor":        true,
	".venv":         true,
	"venv":          true,
	"__pycache__":   true,
	".pytest_cache": true,
	".mypy_cache":   true,
	".idea":         true,
	".vscode":       true,
	".cache":        true,
	"dist":          true,
	"build":         true,
	".next":         true,
	"target":        true,
	"coverage":      true,
}

var languageByExt = map[string]string{
	".go":     "go",
	".ts":     "typescript",
	".tsx":    "typescript",
	".js":     "javascript",
	".jsx":    "javascript",
	".mjs":    "javascript",
	".cjs":    "javascript",
	".py":     "python",
	".rs":     "rust",
	".java":   "java",
	".kt":     "kotlin",
	".rb":     "ruby",
	".php":    "php",
	".cs":     "csharp",
	".swift":  "swift",
	".c":      "c",
	".h":      "c",
	".cpp":    "cpp",
	".cc":     "cpp",
	".hpp":    "cpp",
	".sql":    "sql",
	".sh":     "shell",
	".vue":    "vue",
	".svelte": "svelte",
}

// Generator walks project trees. Its line-count cache lives as long as the
// Generator, so reuse one instance across the snapshots of a run.
type Generator struct {
	maxDepth  int
	gitStatus bool
	skipDirs  map[string]bool
	lines     *lineCache
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxDepth sets the walk depth bound.
func WithMaxDepth(depth int) Option {
	return func(g *Generator) {
		if depth > 0 {
			g.maxDepth = depth
		}
	}
}

// WithLogger sets the generator logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithGitStatus enables the (slower) dirty-worktree check.
func WithGitStatus(enabled bool) Option {
	return func(g *Generator) { g.gitStatus = enabled }
}

// WithSkipDirs adds directory names that are never walked.
func WithSkipDirs(names ...string) Option {
	return func(g *Generator) {
		for _, n := range names {
			g.skipDirs[n] = true
		}
	}
}

// NewGenerator creates a Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		maxDepth:  DefaultMaxDepth,
		gitStatus: true,
		skipDirs:  make(map[string]bool, len(defaultSkipDirs)),
		lines:     newLineCache(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for k := range defaultSkipDirs {
		g.skipDirs[k] = true
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CacheStats returns line-count cache hits and misses.
func (g *Generator) CacheStats() (hits, misses int) {
	return g.lines.stats()
}

// Generate walks root and returns its snapshot.
func (g *Generator) Generate(ctx context.Context, root string) (*Snapshot, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot root %s is not a directory", abs)
	}

	matcher, err := ignore.Load(abs)
	if err != nil {
		g.logger.Warn("failed to read ignore file", zap.Error(err))
	}

	s := &Snapshot{
		GeneratedAt: g.now().UTC(),
		Root:        abs,
		Languages:   map[string]int{},
	}
	var configs []ConfigFile
	lockSeen := map[string]bool{}

	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries are skipped rather than failing the snapshot.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == abs {
			return nil
		}

		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/") + 1

		if d.IsDir() {
			if g.skipDirs[d.Name()] || matcher.Match(rel, true) {
				return fs.SkipDir
			}
			if depth > g.maxDepth {
				s.Tree.Truncated = true
				return fs.SkipDir
			}
			s.Tree.Dirs++
			if depth == 1 {
				s.Tree.TopLevel = append(s.Tree.TopLevel, d.Name()+"/")
			}
			if depth > s.Tree.MaxDepth {
				s.Tree.MaxDepth = depth
			}
			if isMigrationDir(rel) {
				s.HasMigrations = true
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Match(rel, false) {
			return nil
		}

		name := d.Name()
		if depth == 1 {
			s.Tree.TopLevel = append(s.Tree.TopLevel, name)
			for _, lf := range lockFiles {
				if lf.name == name {
					lockSeen[lf.manager] = true
				}
			}
			if strings.HasPrefix(name, ".env") && name != ".env.example" {
				s.EnvFiles = append(s.EnvFiles, name)
			}
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		s.TotalFiles++
		if lang, ok := languageByExt[strings.ToLower(path.Ext(name))]; ok {
			s.Languages[lang]++
		}
		if lines, text := g.lines.count(p, fi); text {
			s.TotalLines += lines
		}

		if kind, ok := configKinds[name]; ok {
			cf, err := g.readConfig(p, rel, kind, depth == 1, s)
			if err != nil {
				g.logger.Debug("config file unreadable", zap.String("path", rel), zap.Error(err))
			}
			configs = append(configs, cf)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", abs, err)
	}

	for _, lf := range lockFiles {
		if lockSeen[lf.manager] {
			s.PackageManager = lf.manager
			break
		}
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].Path < configs[j].Path })
	s.ConfigFiles = configs
	sort.Strings(s.Tree.TopLevel)
	sort.Strings(s.EnvFiles)
	s.Ports = uniqueSortedInts(s.Ports)
	s.Git = readGitState(abs, g.gitStatus)
	s.Hash = s.computeHash()

	hits, misses := g.lines.stats()
	g.logger.Debug("snapshot generated",
		zap.String("root", abs),
		zap.Int("files", s.TotalFiles),
		zap.Int("lines", s.TotalLines),
		zap.Int("configs", len(configs)),
		zap.Int("cache_hits", hits),
		zap.Int("cache_misses", misses))
	return s, nil
}

// readConfig hashes a config file and runs its extractor. The returned
// ConfigFile is valid (with hash) even when extraction fails.
func (g *Generator) readConfig(abs, rel, kind string, root bool, s *Snapshot) (ConfigFile, error) {
	cf := ConfigFile{Path: rel, Kind: kind}
	content, err := readLimited(abs, maxConfigBytes)
	if err != nil {
		return cf, err
	}
	sum := sha256.Sum256(content)
	cf.Hash = hex.EncodeToString(sum[:])

	if ex, ok := extractors[kind]; ok {
		fields, err := ex(content, root, s)
		if err != nil {
			return cf, fmt.Errorf("extract %s: %w", kind, err)
		}
		cf.Fields = dropEmpty(fields)
	}
	return cf, nil
}

func readLimited(p string, limit int64) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}

func dropEmpty(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func uniqueSortedInts(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if v > 0 && v < 65536 && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
