package watch

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitebridge/api"
	"vitebridge/session"
	"vitebridge/tree"
)

func mirroredFile() (*tree.Node, []*tree.Node) {
	f := tree.NewFile("/src/math.test.ts", "/src/math.test.ts")
	f.Loaded = true
	g := tree.NewGroup("g", "math", f)
	adds := tree.NewCase("adds", "adds", g)
	subs := tree.NewCase("subtracts", "subtracts", g)
	return f, []*tree.Node{adds, subs}
}

func suiteWith(results ...api.Task) []api.Task {
	return []api.Task{{Type: api.TaskSuite, Name: "math", Tasks: results}}
}

func TestReconcileAppliesOutcomes(t *testing.T) {
	file, cases := mirroredFile()
	rec := session.NewRecorder()

	tasks := suiteWith(
		api.Task{Type: api.TaskTest, Name: "adds", Result: &api.TaskResult{State: api.StatePass, Duration: 4}},
		api.Task{Type: api.TaskTest, Name: "subtracts", Result: &api.TaskResult{
			State: api.StateFail, Error: &api.TaskError{Message: "expected 0"},
		}},
	)
	snap := reconcileFile(file, tasks, nil, rec, slog.Default())

	st, _ := rec.State(cases[0])
	assert.Equal(t, session.StatusPassed, st.Status)
	assert.Equal(t, 4*time.Millisecond, st.Duration)

	st, _ = rec.State(cases[1])
	assert.Equal(t, session.StatusFailed, st.Status)
	assert.Equal(t, "expected 0", st.Message)

	assert.Len(t, snap, 2)
}

func TestReconcilePendingAndRunning(t *testing.T) {
	file, cases := mirroredFile()
	rec := session.NewRecorder()

	tasks := suiteWith(
		api.Task{Type: api.TaskTest, Name: "adds"},
		api.Task{Type: api.TaskTest, Name: "subtracts", Result: &api.TaskResult{State: api.StateRun}},
	)
	reconcileFile(file, tasks, nil, rec, slog.Default())

	st, _ := rec.State(cases[0])
	assert.Equal(t, session.StatusEnqueued, st.Status)
	st, _ = rec.State(cases[1])
	assert.Equal(t, session.StatusStarted, st.Status)
}

func TestReconcileUnknownStateMapsToSkipped(t *testing.T) {
	file, cases := mirroredFile()
	rec := session.NewRecorder()

	tasks := suiteWith(
		api.Task{Type: api.TaskTest, Name: "adds", Result: &api.TaskResult{State: "todo"}},
		api.Task{Type: api.TaskTest, Name: "subtracts", Result: &api.TaskResult{State: api.StateSkip}},
	)
	reconcileFile(file, tasks, nil, rec, slog.Default())

	for _, c := range cases {
		st, _ := rec.State(c)
		assert.Equal(t, session.StatusSkipped, st.Status)
	}
}

func TestReconcileDiffSkipsUnchanged(t *testing.T) {
	file, cases := mirroredFile()

	tasks := suiteWith(
		api.Task{Type: api.TaskTest, Name: "adds", Result: &api.TaskResult{State: api.StatePass, Duration: 4}},
		api.Task{Type: api.TaskTest, Name: "subtracts"},
	)

	first := session.NewRecorder()
	snap := reconcileFile(file, tasks, nil, first, slog.Default())

	// Second pass with identical outcomes must not touch the session.
	second := session.NewRecorder()
	snap2 := reconcileFile(file, tasks, snap, second, slog.Default())
	assert.Empty(t, second.Nodes())
	assert.Equal(t, snap, snap2)

	// Flipping one leaf re-applies just that leaf.
	tasks[0].Tasks[1].Result = &api.TaskResult{State: api.StatePass, Duration: 2}
	third := session.NewRecorder()
	reconcileFile(file, tasks, snap, third, slog.Default())
	require.Len(t, third.Nodes(), 1)
	assert.Same(t, cases[1], third.Nodes()[0])
}

func TestReconcileUnmatchedSuiteSkipsSubtreeOnly(t *testing.T) {
	file, cases := mirroredFile()
	rec := session.NewRecorder()

	tasks := []api.Task{
		{Type: api.TaskSuite, Name: "renamed", Tasks: []api.Task{
			{Type: api.TaskTest, Name: "adds", Result: &api.TaskResult{State: api.StatePass}},
		}},
		{Type: api.TaskSuite, Name: "math", Tasks: []api.Task{
			{Type: api.TaskTest, Name: "subtracts", Result: &api.TaskResult{State: api.StatePass}},
		}},
	}
	reconcileFile(file, tasks, nil, rec, slog.Default())

	// The unmatched suite is reported, not fatal: its sibling still
	// reconciles.
	_, touched := rec.State(cases[0])
	assert.False(t, touched)
	st, _ := rec.State(cases[1])
	assert.Equal(t, session.StatusPassed, st.Status)
	assert.Contains(t, rec.Output(), "renamed")
}

func TestReconcileKindCollision(t *testing.T) {
	// A suite named like a case must not resolve to the case node.
	f := tree.NewFile("/src/a.test.ts", "/src/a.test.ts")
	leaf := tree.NewCase("shared", "shared", f)
	rec := session.NewRecorder()

	tasks := []api.Task{{Type: api.TaskSuite, Name: "shared", Tasks: nil}}
	reconcileFile(f, tasks, nil, rec, slog.Default())

	_, touched := rec.State(leaf)
	assert.False(t, touched)
	assert.Contains(t, rec.Output(), "no local group node")
}
