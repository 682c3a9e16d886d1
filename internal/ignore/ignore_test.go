package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher(t *testing.T) {
	m := New(
		"# comment",
		"",
		"*.log",
		"coverage/",
		"/docs/generated",
		"!keep.log",
	)
	assert.Equal(t, 4, m.Len())

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"app.log", false, true},
		{"src/server.log", false, true},
		{"keep.log", false, false},
		{"coverage", true, true},
		{"coverage", false, false},
		{"pkg/coverage", true, true},
		{"docs/generated", true, true},
		{"src/docs/generated", true, false},
		{"main.go", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.rel, tt.isDir))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("tmp/\n*.bak\n"), 0o644))

	m, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, m.Match("tmp", true))
	assert.True(t, m.Match("a/b.bak", false))

	empty, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.False(t, empty.Match("anything", false))
}

func TestNilMatcher(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Match("x", false))
	assert.Equal(t, 0, m.Len())
}
