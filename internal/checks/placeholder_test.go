package checks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestScanPlaceholders(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/app.ts":             "export const x = 1;\n// TODO wire auth\n",
		"src/data.py":            "users = load()  # mock data for now\n",
		"src/lorem.js":           "const text = 'Lorem ipsum dolor';\n",
		"src/clean.go":           "package main\n",
		"src/app.test.ts":        "// TODO test edge cases\n",
		"src/node_modules/m.js":  "// FIXME upstream\n",
		"src/fixtures/seed.sql":  "-- TODO real seed\n",
		"README.md":              "TODO docs\n",
		"src/handlers/user.go":   "func f() { panic(\"not implemented\") }\n",
		"src/handlers/legacy.go": "// HACK keep until v2\n",
	})

	allow := Allowlist{
		"src/fixtures/*": {"TODO"},
		"legacy.go":      {"*"},
	}
	res := ScanPlaceholders(context.Background(), root, []string{"src"}, allow)

	require.Equal(t, StatusFail, res.Status)
	byPath := map[string]string{}
	for _, f := range res.Findings {
		byPath[f.Path] = f.Pattern
	}
	assert.Equal(t, map[string]string{
		"src/app.ts":           "TODO",
		"src/data.py":          "mock",
		"src/lorem.js":         "lorem",
		"src/handlers/user.go": "not-implemented",
	}, byPath)
	assert.Contains(t, res.StderrSummary, "4 finding(s)")
}

func TestScanPlaceholders_CleanTreePasses(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.go": "package main\n\nfunc main() {}\n"})

	res := ScanPlaceholders(context.Background(), root, nil, nil)
	assert.Equal(t, StatusPass, res.Status)
	assert.Empty(t, res.Findings)
}

func TestScanPlaceholders_MissingDirWarns(t *testing.T) {
	res := ScanPlaceholders(context.Background(), t.TempDir(), []string{"nope"}, nil)
	assert.Equal(t, StatusPass, res.Status)
	assert.Len(t, res.Warnings, 1)
}

func TestScanPlaceholders_LongLineKeepsFindings(t *testing.T) {
	root := t.TempDir()
	minified := strings.Repeat("a", maxScanLine+1)
	writeTree(t, root, map[string]string{
		"bundle.js": "// TODO split bundle\n" + minified + "\n// FIXME source maps\n",
	})

	res := ScanPlaceholders(context.Background(), root, nil, nil)

	require.Equal(t, StatusFail, res.Status)
	require.Len(t, res.Findings, 2)
	assert.Equal(t, 1, res.Findings[0].Line)
	assert.Equal(t, "TODO", res.Findings[0].Pattern)
	assert.Equal(t, 3, res.Findings[1].Line)
	assert.Equal(t, "FIXME", res.Findings[1].Pattern)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "bundle.js: 1 line(s)")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))

	got := truncate("abécd", 3)
	assert.Equal(t, "ab...", got)
	assert.True(t, utf8.ValidString(got))
}

func TestAllowlist_Allows(t *testing.T) {
	a := Allowlist{"docs/**": {"todo"}, "*.sql": {"FIXME"}}
	assert.True(t, a.allows("docs/a/b.go", "TODO"))
	assert.True(t, a.allows("db/schema.sql", "FIXME"))
	assert.False(t, a.allows("db/schema.sql", "TODO"))
	assert.False(t, Allowlist(nil).allows("x.go", "TODO"))
}
