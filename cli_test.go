package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitebridge/discovery"
	"vitebridge/session"
	"vitebridge/tree"
)

func TestPrintSummaryCounts(t *testing.T) {
	file := tree.NewFile("/src/a.test.ts", "/src/a.test.ts")
	pass := tree.NewCase("p", "p", file)
	fail := tree.NewCase("f", "f", file)
	errored := tree.NewCase("e", "e", file)

	rec := session.NewRecorder()
	rec.Passed(pass, time.Millisecond)
	rec.Failed(fail, "expected 2")
	rec.Errored(errored, "no result")

	assert.Equal(t, 2, printSummary(rec))
}

func TestRunOnceExitsNonZeroOnFailure(t *testing.T) {
	dir := t.TempDir()
	testFile := filepath.Join(dir, "a.test.ts")
	require.NoError(t, os.WriteFile(testFile, []byte("x"), 0644))

	writeScript := func(stdout string) {
		script := "#!/bin/sh\ncat <<'EOF'\n" + stdout + "\nEOF\nexit 0\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "fake-runner.sh"), []byte(script), 0755))
	}

	prevRoot := flagRoot
	flagRoot = dir
	defer func() { flagRoot = prevRoot }()
	t.Setenv("VITEBRIDGE_EXECUTABLE", filepath.Join(dir, "fake-runner.sh"))

	t.Run("failing result", func(t *testing.T) {
		writeScript(`{"testResults":[{"testFilePath":"` + testFile + `","displayName":"adds","status":"fail","failureMessage":"expected 2"}]}`)
		err := runOnce(context.Background(), []string{testFile}, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed")
	})

	t.Run("passing result", func(t *testing.T) {
		writeScript(`{"testResults":[{"testFilePath":"` + testFile + `","displayName":"adds","status":"pass","perfStats":{"runtime":3}}]}`)
		assert.NoError(t, runOnce(context.Background(), []string{testFile}, false))
	})
}

func TestResolveSelection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.test.ts")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	walker := discovery.NewWalker(dir, nil)

	t.Run("explicit files", func(t *testing.T) {
		sel, err := resolveSelection(context.Background(), walker, []string{path})
		require.NoError(t, err)
		require.Len(t, sel, 1)
		assert.Equal(t, path, sel[0].Path)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := resolveSelection(context.Background(), walker, []string{filepath.Join(dir, "nope.test.ts")})
		assert.Error(t, err)
	})

	t.Run("empty args discover workspace", func(t *testing.T) {
		sel, err := resolveSelection(context.Background(), walker, nil)
		require.NoError(t, err)
		require.Len(t, sel, 1)
		assert.Equal(t, path, sel[0].Path)
	})
}
