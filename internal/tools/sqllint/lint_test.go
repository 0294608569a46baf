package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGo(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("package q\n\n"+body), 0o644))
	return path
}

func TestLintFlagsUnmarkedSQL(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "q.go", "const QOk = `--sql 11111111-2222-4333-8444-555555555555\nselect 1;\n`\n\n"+
		"const QBad = `select id from projects;`\n\n"+
		"const Greeting = \"hello\"\n")

	violations, err := lintPaths([]string{dir})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "QBad", violations[0].name)
	assert.Contains(t, violations[0].message, "missing or invalid")
}

func TestLintFlagsReusedMarkers(t *testing.T) {
	dir := t.TempDir()
	marker := "--sql 11111111-2222-4333-8444-555555555555\\n"
	writeGo(t, dir, "a.go", "const QA = \""+marker+"select 1;\"\n")
	writeGo(t, dir, "b.go", "const QB = \""+marker+"select 2;\"\n")

	violations, err := lintPaths([]string{dir})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0].message, "already used by")
}

func TestLintSkipsTestFilesAndHiddenDirs(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "x_test.go", "const QBad = `select 1`\n")
	hidden := filepath.Join(dir, "_fixtures")
	require.NoError(t, os.Mkdir(hidden, 0o755))
	writeGo(t, hidden, "y.go", "const QBad = `delete from projects`\n")

	violations, err := lintPaths([]string{dir})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestLedgerStatementsAreMarked(t *testing.T) {
	violations, err := lintPaths([]string{filepath.Join("..", "..", "sqlinline")})
	require.NoError(t, err)
	assert.Empty(t, violations)
}
