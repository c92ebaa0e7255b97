package runner

import (
	"context"
	"errors"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitebridge/config"
	"vitebridge/session"
	"vitebridge/tree"
)

// fakeDebugger stands in for a debug client; it optionally writes the
// reporter output file before "detaching".
type fakeDebugger struct {
	output    string
	launchErr error
	lastLC    LaunchConfig
}

func (d *fakeDebugger) Launch(_ context.Context, lc LaunchConfig) error {
	d.lastLC = lc
	if d.launchErr != nil {
		return d.launchErr
	}
	if d.output != "" {
		return os.WriteFile(lc.OutputFile, []byte(d.output), 0644)
	}
	return nil
}

func TestRunDebugAppliesResults(t *testing.T) {
	file, cases := loadedFile("/src/a.test.ts", "adds")
	dbg := &fakeDebugger{
		output: `{"testResults":[{"testFilePath":"/src/a.test.ts","displayName":"adds","status":"pass","perfStats":{"runtime":3}}]}`,
	}
	o := &Orchestrator{Config: config.Config{Executable: "npx vitest"}, Debug: dbg}
	rec := session.NewRecorder()

	err := o.RunDebug(context.Background(), []*tree.Node{file}, rec)
	require.NoError(t, err)

	st, _ := rec.State(cases[0])
	assert.Equal(t, session.StatusPassed, st.Status)
	assert.Equal(t, 3*time.Millisecond, st.Duration)
	assert.True(t, rec.Ended())

	// The debug invocation carries the JSON reporter and output file.
	assert.Contains(t, dbg.lastLC.Args, "--outputFile")
	assert.Contains(t, dbg.lastLC.Args, dbg.lastLC.OutputFile)
}

func TestRunDebugMissingOutputFile(t *testing.T) {
	old := outputFileWait
	outputFileWait = 300 * time.Millisecond
	defer func() { outputFileWait = old }()

	file, cases := loadedFile("/src/a.test.ts", "adds")
	o := &Orchestrator{
		Config: config.Config{Executable: "npx vitest"},
		Dir:    "/workspace",
		Debug:  &fakeDebugger{},
	}
	rec := session.NewRecorder()

	err := o.RunDebug(context.Background(), []*tree.Node{file}, rec)
	require.Error(t, err)

	// The diagnostic names the command, working directory and runtime.
	assert.Contains(t, err.Error(), "npx")
	assert.Contains(t, err.Error(), "/workspace")
	assert.Contains(t, err.Error(), runtime.Version())

	st, _ := rec.State(cases[0])
	assert.Equal(t, session.StatusErrored, st.Status)
	assert.True(t, rec.Ended())
}

// slowFlushDebugger detaches while the reporter is mid-flush, leaving a
// truncated file behind and completing it shortly after.
type slowFlushDebugger struct {
	partial  string
	complete string
}

func (d *slowFlushDebugger) Launch(_ context.Context, lc LaunchConfig) error {
	if err := os.WriteFile(lc.OutputFile, []byte(d.partial), 0644); err != nil {
		return err
	}
	go func() {
		time.Sleep(150 * time.Millisecond)
		os.WriteFile(lc.OutputFile, []byte(d.complete), 0644)
	}()
	return nil
}

func TestRunDebugWaitsForCompleteOutputFile(t *testing.T) {
	full := `{"testResults":[{"testFilePath":"/src/a.test.ts","displayName":"adds","status":"pass","perfStats":{"runtime":3}}]}`
	file, cases := loadedFile("/src/a.test.ts", "adds")
	o := &Orchestrator{
		Config: config.Config{Executable: "npx vitest"},
		Debug:  &slowFlushDebugger{partial: full[:40], complete: full},
	}
	rec := session.NewRecorder()

	err := o.RunDebug(context.Background(), []*tree.Node{file}, rec)
	require.NoError(t, err)

	st, _ := rec.State(cases[0])
	assert.Equal(t, session.StatusPassed, st.Status)
}

func TestRunDebugLaunchFailure(t *testing.T) {
	file, cases := loadedFile("/src/a.test.ts", "adds")
	o := &Orchestrator{
		Config: config.Config{Executable: "npx vitest"},
		Debug:  &fakeDebugger{launchErr: errors.New("attach refused")},
	}
	rec := session.NewRecorder()

	err := o.RunDebug(context.Background(), []*tree.Node{file}, rec)
	require.ErrorContains(t, err, "attach refused")

	st, _ := rec.State(cases[0])
	assert.Equal(t, session.StatusErrored, st.Status)
	assert.Contains(t, st.Message, "Debug session failed")
	assert.True(t, rec.Ended())
}
