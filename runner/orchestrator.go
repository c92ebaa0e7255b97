// Package runner drives one-shot execution of the external test process,
// batch or under a debugger, and feeds the reported results into the
// session applier.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"vitebridge/config"
	"vitebridge/session"
	"vitebridge/tree"
)

// ErrNoTestData means a selected node is not backed by test data.
// Selection errors are fatal: the run aborts before anything is spawned.
var ErrNoTestData = errors.New("selected node has no test data")

// FileLoader materializes the children of an unloaded file node. Provided
// by the discovery collaborator; may be nil when selections are always
// whole files.
type FileLoader interface {
	LoadFile(ctx context.Context, file *tree.Node) error
}

// Orchestrator resolves a selection, invokes the external process and
// applies its results. It holds no per-run state; one value serves any
// number of runs.
type Orchestrator struct {
	Config config.Config
	Dir    string
	Loader FileLoader
	Debug  Debugger
	Log    *slog.Logger
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

type resolved struct {
	files     []string
	fileNodes []*tree.Node
	expected  []*tree.Node
	pattern   string
}

// resolve expands the selection into its file set, expected cases and,
// for a single-node selection, the full-pattern filter.
func (o *Orchestrator) resolve(ctx context.Context, selection []*tree.Node) (resolved, error) {
	var r resolved
	seen := make(map[string]bool)
	for _, n := range selection {
		if n == nil || n.File == nil {
			return resolved{}, ErrNoTestData
		}
		if !n.File.Loaded && o.Loader != nil {
			if err := o.Loader.LoadFile(ctx, n.File); err != nil {
				return resolved{}, fmt.Errorf("load %s: %w", n.File.Path, err)
			}
		}
		if !seen[n.File.Path] {
			seen[n.File.Path] = true
			r.files = append(r.files, n.File.Path)
			r.fileNodes = append(r.fileNodes, n.File)
		}
		r.expected = append(r.expected, n.Cases()...)
	}
	if len(selection) == 1 {
		r.pattern = selection[0].FullPattern()
	}
	return r, nil
}

// Run executes the selection in batch mode. Output text streams into the
// session as it arrives; the final JSON result object is reconciled
// through session.Apply. The session always ends, whatever happens. The
// context cancels the spawned process, though a cancellation arriving
// mid-run may still let the external process finish its current file.
func (o *Orchestrator) Run(ctx context.Context, selection []*tree.Node, rs session.RunSession) error {
	r, err := o.resolve(ctx, selection)
	if err != nil {
		return err
	}
	defer rs.End()

	bin, base := o.Config.Command()
	args := append(base, BatchArgs(o.Config, r.files, r.pattern)...)
	o.logger().Debug("spawning batch run", "bin", bin, "args", args, "pattern", r.pattern)

	stdout, runErr := runStreaming(ctx, bin, args, o.Dir, o.Config.Environ(), func(line string) {
		rs.AppendOutput(line + "\n")
	})
	if runErr != nil {
		// A non-zero exit is how the runner reports failing tests;
		// anything else means the process itself broke.
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			o.failAll(rs, r.expected, fmt.Sprintf("Test runner failed to start: %v", runErr))
			return fmt.Errorf("spawn %s: %w", bin, runErr)
		}
	}

	result, err := ExtractBatchResult(stdout)
	if err != nil {
		o.failAll(rs, r.expected, fmt.Sprintf("Internal error: %v", err))
		return err
	}

	records := result.Records()
	expected := append(r.expected, materializeCases(r.fileNodes, records)...)
	session.Apply(expected, records, rs)
	return nil
}

// materializeCases builds case nodes on unloaded file nodes from the
// runner's own report, one per record in report order. Without a loader
// the local tree carries no structure of its own, and what the external
// process reports is the only structure there is. Duplicate display
// names within a file get the usual numeric disambiguation suffix.
func materializeCases(files []*tree.Node, records []session.ResultRecord) []*tree.Node {
	byPath := make(map[string]*tree.Node)
	for _, f := range files {
		if !f.Loaded {
			byPath[f.Path] = f
		}
	}
	if len(byPath) == 0 {
		return nil
	}
	counts := make(map[string]int)
	var added []*tree.Node
	for _, rec := range records {
		f := byPath[rec.FilePath]
		if f == nil {
			continue
		}
		key := rec.FilePath + "\x1f" + rec.DisplayName
		counts[key]++
		id := rec.DisplayName
		if counts[key] > 1 {
			id = fmt.Sprintf("%s@%d", rec.DisplayName, counts[key])
		}
		added = append(added, tree.NewCase(id, rec.DisplayName, f))
	}
	for _, f := range byPath {
		f.Loaded = true
	}
	return added
}

// failAll marks every expected node errored with the same message. Used
// on whole-run failures, in place of Apply, so the unresolved sweep never
// double-reports.
func (o *Orchestrator) failAll(rs session.RunSession, expected []*tree.Node, msg string) {
	for _, n := range expected {
		rs.Started(n)
		rs.Errored(n, msg)
	}
}
