package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Snapshot is a deterministic capture of project structure.
type Snapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	Root        string    `json:"root"`
	// Hash covers every field except GeneratedAt, Root and Hash itself.
	Hash string `json:"hash"`

	Tree           TreeSummary       `json:"tree"`
	ConfigFiles    []ConfigFile      `json:"config_files"`
	Languages      map[string]int    `json:"languages"`
	PackageManager string            `json:"package_manager,omitempty"`
	Scripts        map[string]string `json:"scripts,omitempty"`
	TestTool       string            `json:"test_tool,omitempty"`
	BuildTool      string            `json:"build_tool,omitempty"`
	LintTool       string            `json:"lint_tool,omitempty"`
	Typecheck      bool              `json:"typecheck,omitempty"`
	MakeTargets    []string          `json:"make_targets,omitempty"`
	EnvFiles       []string          `json:"env_files,omitempty"`
	EnvExampleVars []string          `json:"env_example_vars,omitempty"`
	HasMigrations  bool              `json:"has_migrations"`
	Ports          []int             `json:"ports,omitempty"`
	TotalFiles     int               `json:"total_files"`
	TotalLines     int               `json:"total_lines"`
	Git            *GitState         `json:"git,omitempty"`
}

// TreeSummary describes the shape of the walked tree.
type TreeSummary struct {
	TopLevel  []string `json:"top_level"`
	Dirs      int      `json:"dirs"`
	MaxDepth  int      `json:"max_depth"`
	Truncated bool     `json:"truncated"`
}

// ConfigFile is a recognised project config with its own content hash.
type ConfigFile struct {
	Path   string            `json:"path"`
	Kind   string            `json:"kind"`
	Hash   string            `json:"hash"`
	Fields map[string]string `json:"fields,omitempty"`
}

// GitState is the repository position when the snapshot was taken.
type GitState struct {
	Branch string `json:"branch,omitempty"`
	Head   string `json:"head,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// ConfigByPath returns the config file at path, if recorded.
func (s *Snapshot) ConfigByPath(path string) (ConfigFile, bool) {
	for _, c := range s.ConfigFiles {
		if c.Path == path {
			return c, true
		}
	}
	return ConfigFile{}, false
}

// HasConfig reports whether a config of kind exists at the project root.
func (s *Snapshot) HasConfig(kind string) bool {
	for _, c := range s.ConfigFiles {
		if c.Kind == kind && !strings.Contains(c.Path, "/") {
			return true
		}
	}
	return false
}

func (s *Snapshot) computeHash() string {
	c := *s
	c.GeneratedAt = time.Time{}
	c.Root = ""
	c.Hash = ""
	// encoding/json sorts map keys, so the encoding is canonical.
	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
