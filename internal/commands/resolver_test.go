package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/quorum/internal/checks"
	"github.com/fyrsmithlabs/quorum/internal/config"
	"github.com/fyrsmithlabs/quorum/internal/snapshot"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		snap      *snapshot.Snapshot
		overrides Commands
		want      Commands
	}{
		{
			name: "pnpm scripts",
			snap: &snapshot.Snapshot{
				PackageManager: "pnpm",
				Scripts: map[string]string{
					"build":     "next build",
					"test":      "vitest run",
					"lint":      "next lint",
					"typecheck": "tsc --noEmit",
					"start":     "next start",
				},
				ConfigFiles: []snapshot.ConfigFile{
					{Path: "package.json", Kind: "package.json"},
					{Path: "tsconfig.json", Kind: "tsconfig"},
					{Path: ".env.example", Kind: "env-example"},
				},
			},
			want: Commands{
				Build:      "pnpm run build",
				Test:       "pnpm run test",
				Lint:       "pnpm run lint",
				Typecheck:  "pnpm run typecheck",
				Start:      "pnpm run start",
				EnvExample: ".env.example",
			},
		},
		{
			name: "npm default test script is ignored",
			snap: &snapshot.Snapshot{
				Scripts: map[string]string{"test": npmDefaultTest, "build": "tsc"},
				ConfigFiles: []snapshot.ConfigFile{
					{Path: "tsconfig.json", Kind: "tsconfig"},
					{Path: "prisma/schema.prisma", Kind: "prisma"},
				},
			},
			want: Commands{
				Build:     "npm run build",
				Typecheck: "npx tsc --noEmit",
				Migration: "npx prisma migrate status",
			},
		},
		{
			name: "go module with golangci",
			snap: &snapshot.Snapshot{
				LintTool:    "golangci-lint",
				ConfigFiles: []snapshot.ConfigFile{{Path: "go.mod", Kind: "go.mod"}},
			},
			want: Commands{
				Build:     "go build ./...",
				Test:      "go test ./...",
				Lint:      "golangci-lint run",
				Typecheck: "go vet ./...",
			},
		},
		{
			name: "makefile wins over toolchain defaults",
			snap: &snapshot.Snapshot{
				MakeTargets: []string{"build", "test", "run"},
				ConfigFiles: []snapshot.ConfigFile{
					{Path: "go.mod", Kind: "go.mod"},
					{Path: "Makefile", Kind: "makefile"},
				},
			},
			want: Commands{
				Build:     "make build",
				Test:      "make test",
				Lint:      "go vet ./...",
				Typecheck: "go vet ./...",
				Start:     "make run",
			},
		},
		{
			name: "cargo",
			snap: &snapshot.Snapshot{ConfigFiles: []snapshot.ConfigFile{{Path: "Cargo.toml", Kind: "cargo"}}},
			want: Commands{
				Build:     "cargo build",
				Test:      "cargo test",
				Lint:      "cargo clippy -- -D warnings",
				Typecheck: "cargo check",
				Start:     "cargo run",
			},
		},
		{
			name: "poetry project",
			snap: &snapshot.Snapshot{
				PackageManager: "poetry",
				TestTool:       "pytest",
				LintTool:       "ruff",
				ConfigFiles: []snapshot.ConfigFile{
					{Path: "pyproject.toml", Kind: "pyproject", Fields: map[string]string{"tools": "mypy,poetry,ruff"}},
					{Path: "alembic.ini", Kind: "alembic"},
				},
			},
			want: Commands{
				Test:      "poetry run pytest",
				Lint:      "poetry run ruff check .",
				Typecheck: "poetry run mypy .",
				Migration: "poetry run alembic check",
			},
		},
		{
			name: "override wins",
			snap: &snapshot.Snapshot{ConfigFiles: []snapshot.ConfigFile{{Path: "go.mod", Kind: "go.mod"}}},
			overrides: Commands{
				Test: "go test -race ./...",
			},
			want: Commands{
				Build:     "go build ./...",
				Test:      "go test -race ./...",
				Lint:      "go vet ./...",
				Typecheck: "go vet ./...",
			},
		},
		{
			name:      "nil snapshot returns overrides",
			overrides: Commands{Build: "make"},
			want:      Commands{Build: "make"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.snap, tt.overrides))
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	s := &snapshot.Snapshot{
		Scripts:     map[string]string{"test": "jest", "test:unit": "jest unit"},
		MakeTargets: []string{"lint"},
	}
	first := Resolve(s, Commands{})
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(s, Commands{}))
	}
	assert.Equal(t, "npm run test", first.Test)
	assert.Equal(t, "make lint", first.Lint)
}

func TestFromConfigAndFor(t *testing.T) {
	c := FromConfig(config.ChecksConfig{Build: "b", Test: "t", Start: "s"})
	assert.Equal(t, "b", c.For(checks.TypeBuild))
	assert.Equal(t, "t", c.For(checks.TypeTest))
	assert.Equal(t, "s", c.For(checks.TypeStart))
	assert.Equal(t, "", c.For(checks.TypeEnv))
}
