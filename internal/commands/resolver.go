// Package commands infers a project's build, test, lint, typecheck,
// migration and start commands from a repo snapshot.
package commands

import (
	"slices"
	"strings"

	"github.com/fyrsmithlabs/quorum/internal/checks"
	"github.com/fyrsmithlabs/quorum/internal/config"
	"github.com/fyrsmithlabs/quorum/internal/snapshot"
)

// Commands is the resolved command set. An empty field means the check
// is skipped when absent.
type Commands struct {
	Build      string `json:"build,omitempty"`
	Test       string `json:"test,omitempty"`
	Lint       string `json:"lint,omitempty"`
	Typecheck  string `json:"typecheck,omitempty"`
	Migration  string `json:"migration,omitempty"`
	Start      string `json:"start,omitempty"`
	EnvExample string `json:"env_example,omitempty"`
}

// FromConfig turns the checks config section into overrides.
func FromConfig(c config.ChecksConfig) Commands {
	return Commands{
		Build:     c.Build,
		Test:      c.Test,
		Lint:      c.Lint,
		Typecheck: c.Typecheck,
		Migration: c.Migration,
		Start:     c.Start,
	}
}

// For returns the command for a check type.
func (c Commands) For(t checks.Type) string {
	switch t {
	case checks.TypeBuild:
		return c.Build
	case checks.TypeTest:
		return c.Test
	case checks.TypeLint:
		return c.Lint
	case checks.TypeTypecheck:
		return c.Typecheck
	case checks.TypeMigration:
		return c.Migration
	case checks.TypeStart:
		return c.Start
	}
	return ""
}

// fill sets every empty field of c from other.
func (c *Commands) fill(other Commands) {
	set := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	set(&c.Build, other.Build)
	set(&c.Test, other.Test)
	set(&c.Lint, other.Lint)
	set(&c.Typecheck, other.Typecheck)
	set(&c.Migration, other.Migration)
	set(&c.Start, other.Start)
	set(&c.EnvExample, other.EnvExample)
}

// source infers commands from one aspect of a snapshot.
type source func(s *snapshot.Snapshot) Commands

// sources in precedence order: explicit package scripts, then Makefile
// targets, then toolchain defaults.
var sources = []source{
	fromScripts,
	fromMakefile,
	fromGo,
	fromCargo,
	fromPython,
	fromTypeScript,
	fromEnv,
}

// Resolve returns the commands for s. Any non-empty override field wins;
// the rest are inferred. A nil snapshot yields just the overrides.
func Resolve(s *snapshot.Snapshot, overrides Commands) Commands {
	out := overrides
	if s == nil {
		return out
	}
	for _, src := range sources {
		out.fill(src(s))
	}
	return out
}

// npmDefaultTest is what `npm init` writes; it always fails.
const npmDefaultTest = `echo "Error: no test specified" && exit 1`

func fromScripts(s *snapshot.Snapshot) Commands {
	if len(s.Scripts) == 0 {
		return Commands{}
	}
	run := scriptRunner(s.PackageManager)
	pick := func(names ...string) string {
		for _, n := range names {
			if body, ok := s.Scripts[n]; ok && strings.TrimSpace(body) != "" {
				if n == "test" && strings.TrimSpace(body) == npmDefaultTest {
					continue
				}
				return run + " " + n
			}
		}
		return ""
	}
	return Commands{
		Build:     pick("build"),
		Test:      pick("test", "test:unit"),
		Lint:      pick("lint"),
		Typecheck: pick("typecheck", "type-check", "tsc", "check-types"),
		Migration: pick("migrate", "db:migrate", "migrate:deploy", "migration:run"),
		Start:     pick("start", "serve", "preview"),
	}
}

func scriptRunner(pm string) string {
	switch pm {
	case "pnpm":
		return "pnpm run"
	case "yarn":
		return "yarn run"
	case "bun":
		return "bun run"
	}
	return "npm run"
}

func fromMakefile(s *snapshot.Snapshot) Commands {
	if len(s.MakeTargets) == 0 {
		return Commands{}
	}
	pick := func(names ...string) string {
		for _, n := range names {
			if slices.Contains(s.MakeTargets, n) {
				return "make " + n
			}
		}
		return ""
	}
	return Commands{
		Build:     pick("build"),
		Test:      pick("test", "check"),
		Lint:      pick("lint"),
		Typecheck: pick("typecheck", "vet"),
		Migration: pick("migrate", "db-migrate"),
		Start:     pick("run", "start", "serve"),
	}
}

func fromGo(s *snapshot.Snapshot) Commands {
	if !s.HasConfig("go.mod") {
		return Commands{}
	}
	c := Commands{
		Build:     "go build ./...",
		Test:      "go test ./...",
		Lint:      "go vet ./...",
		Typecheck: "go vet ./...",
	}
	if s.LintTool == "golangci-lint" {
		c.Lint = "golangci-lint run"
	}
	return c
}

func fromCargo(s *snapshot.Snapshot) Commands {
	if !s.HasConfig("cargo") {
		return Commands{}
	}
	return Commands{
		Build:     "cargo build",
		Test:      "cargo test",
		Lint:      "cargo clippy -- -D warnings",
		Typecheck: "cargo check",
		Start:     "cargo run",
	}
}

func fromPython(s *snapshot.Snapshot) Commands {
	if !s.HasConfig("pyproject") && !s.HasConfig("requirements") {
		return Commands{}
	}
	prefix := ""
	switch s.PackageManager {
	case "poetry":
		prefix = "poetry run "
	case "uv":
		prefix = "uv run "
	}
	var tools []string
	if cf, ok := s.ConfigByPath("pyproject.toml"); ok && cf.Fields["tools"] != "" {
		tools = strings.Split(cf.Fields["tools"], ",")
	}

	var c Commands
	if s.TestTool == "pytest" {
		c.Test = prefix + "pytest"
	}
	if s.LintTool == "ruff" || slices.Contains(tools, "ruff") {
		c.Lint = prefix + "ruff check ."
	}
	if slices.Contains(tools, "mypy") {
		c.Typecheck = prefix + "mypy ."
	}
	if s.HasConfig("alembic") {
		c.Migration = prefix + "alembic check"
	}
	return c
}

func fromTypeScript(s *snapshot.Snapshot) Commands {
	var c Commands
	if s.HasConfig("tsconfig") {
		c.Typecheck = "npx tsc --noEmit"
	}
	if s.HasConfig("prisma") || hasPrismaSchema(s) {
		c.Migration = "npx prisma migrate status"
	}
	if s.LintTool == "eslint" {
		c.Lint = "npx eslint ."
	}
	return c
}

func hasPrismaSchema(s *snapshot.Snapshot) bool {
	for _, cf := range s.ConfigFiles {
		if cf.Kind == "prisma" {
			return true
		}
	}
	return false
}

func fromEnv(s *snapshot.Snapshot) Commands {
	if s.HasConfig("env-example") {
		return Commands{EnvExample: ".env.example"}
	}
	return Commands{}
}
