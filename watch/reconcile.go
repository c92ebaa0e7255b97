package watch

import (
	"fmt"
	"log/slog"
	"time"

	"vitebridge/api"
	"vitebridge/session"
	"vitebridge/tree"
)

// fileSnapshot records the outcome signature of every leaf task in a
// mirrored file, keyed by the task's path within the tree. Diffing two
// snapshots tells us which leaves actually changed, so reconciliation
// applies each outcome once instead of re-firing on every mirrored
// mutation.
type fileSnapshot map[string]string

func taskKey(prefix, name string) string {
	return prefix + "\x1f" + name
}

func outcomeSignature(res *api.TaskResult) string {
	if res == nil {
		return "pending"
	}
	msg := ""
	if res.Error != nil {
		msg = res.Error.Message
	}
	return fmt.Sprintf("%s|%v|%s", res.State, res.Duration, msg)
}

// materializeTree mirrors a collected task tree onto a file node that
// discovery found but never populated. The runner's collection is the
// only structure available for such a file, so its groups and cases
// become the local counterparts future updates reconcile against. Names
// repeated within one parent get numeric suffixes to keep their
// identities distinct.
func materializeTree(file *tree.Node, tasks []api.Task) {
	buildChildren(file, tasks)
	file.Loaded = true
}

func buildChildren(parent *tree.Node, tasks []api.Task) {
	counts := make(map[string]int)
	for _, task := range tasks {
		counts[task.Name]++
		id := task.Name
		if counts[task.Name] > 1 {
			id = fmt.Sprintf("%s@%d", task.Name, counts[task.Name])
		}
		switch task.Type {
		case api.TaskSuite:
			buildChildren(tree.NewGroup(id, task.Name, parent), task.Tasks)
		case api.TaskTest:
			tree.NewCase(id, task.Name, parent)
		}
	}
}

// reconcileFile walks a mirrored task tree and the local file node in
// lockstep, applying changed leaf outcomes to the open run session and
// returning the new snapshot. An external task with no local counterpart
// is a match failure: the diagnostic goes into the session transcript and
// the walk continues with its siblings, so one renamed suite cannot sink
// the whole run.
func reconcileFile(local *tree.Node, tasks []api.Task, prev fileSnapshot, rs session.RunSession, log *slog.Logger) fileSnapshot {
	next := make(fileSnapshot, len(prev))
	walkTasks(tasks, local.Children, "", prev, next, rs, log)
	return next
}

func walkTasks(tasks []api.Task, candidates []*tree.Node, prefix string, prev, next fileSnapshot, rs session.RunSession, log *slog.Logger) {
	for _, task := range tasks {
		key := taskKey(prefix, task.Name)
		switch task.Type {
		case api.TaskSuite:
			node, err := tree.Match(task.Name, candidates, tree.KindGroup)
			if err != nil {
				reportMatchFailure(rs, log, err)
				continue
			}
			walkTasks(task.Tasks, node.Children, key, prev, next, rs, log)

		case api.TaskTest:
			node, err := tree.Match(task.Name, candidates, tree.KindCase)
			if err != nil {
				reportMatchFailure(rs, log, err)
				continue
			}
			sig := outcomeSignature(task.Result)
			next[key] = sig
			if prev[key] == sig {
				continue
			}
			applyOutcome(node, task.Result, rs)
		}
	}
}

func reportMatchFailure(rs session.RunSession, log *slog.Logger, err error) {
	log.Error("match failure", "err", err)
	if rs != nil {
		rs.AppendOutput(err.Error() + "\n")
	}
}

// applyOutcome translates a leaf task's reported state into a session
// transition. A still-running task maps to started rather than any
// terminal state so a later pass or fail can land; states this component
// does not model map to skipped.
func applyOutcome(node *tree.Node, res *api.TaskResult, rs session.RunSession) {
	switch {
	case res == nil:
		rs.Enqueued(node)
	case res.State == api.StateRun:
		rs.Started(node)
	case res.State == api.StatePass:
		rs.Passed(node, time.Duration(res.Duration*float64(time.Millisecond)))
	case res.State == api.StateFail:
		msg := ""
		if res.Error != nil {
			msg = res.Error.Message
		}
		rs.Failed(node, msg)
	default:
		rs.Skipped(node)
	}
}

// snapshotOnly records outcome signatures without issuing transitions,
// for events that arrive while no run session is open.
func snapshotOnly(tasks []api.Task, prefix string, into fileSnapshot) {
	for _, task := range tasks {
		key := taskKey(prefix, task.Name)
		switch task.Type {
		case api.TaskSuite:
			snapshotOnly(task.Tasks, key, into)
		case api.TaskTest:
			into[key] = outcomeSignature(task.Result)
		}
	}
}
