package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"vitebridge/session"
	"vitebridge/tree"
)

// LaunchConfig describes one debug invocation of the external runner.
type LaunchConfig struct {
	Program    string
	Args       []string
	Dir        string
	Env        []string
	OutputFile string
}

// Debugger launches the external runner under a debugger and returns
// once the debuggee has detached. Implementations must tolerate the
// debug client attaching and detaching on its own schedule.
type Debugger interface {
	Launch(ctx context.Context, lc LaunchConfig) error
}

// outputFileWait bounds the poll for the debug output file. Variable so
// tests do not sit through the full window.
var outputFileWait = 10 * time.Second

const outputFilePollInterval = 200 * time.Millisecond

// RunDebug executes the selection under the debugger. The debugger owns
// the process's standard streams, so results travel through a private
// temp file written by the JSON reporter and read back after detach.
func (o *Orchestrator) RunDebug(ctx context.Context, selection []*tree.Node, rs session.RunSession) error {
	r, err := o.resolve(ctx, selection)
	if err != nil {
		return err
	}
	defer rs.End()

	if o.Debug == nil {
		o.failAll(rs, r.expected, "Internal error: no debugger configured")
		return fmt.Errorf("no debugger configured")
	}

	outFile := filepath.Join(os.TempDir(), "vitebridge-debug-"+uuid.NewString()+".json")
	defer os.Remove(outFile)

	bin, base := o.Config.Command()
	lc := LaunchConfig{
		Program:    bin,
		Args:       append(base, DebugArgs(r.files, r.pattern, outFile)...),
		Dir:        o.Dir,
		Env:        o.Config.Environ(),
		OutputFile: outFile,
	}
	o.logger().Debug("launching debug session", "program", lc.Program, "args", lc.Args)

	if err := o.Debug.Launch(ctx, lc); err != nil {
		o.failAll(rs, r.expected, fmt.Sprintf("Debug session failed: %v", err))
		return fmt.Errorf("debug launch: %w", err)
	}

	result, err := awaitResult(ctx, outFile)
	if err != nil {
		msg := fmt.Sprintf(
			"Debug run produced no output file.\ncommand: %s %s\ncwd: %s\nruntime: %s",
			lc.Program, strings.Join(lc.Args, " "), lc.Dir, runtime.Version())
		o.failAll(rs, r.expected, msg)
		return fmt.Errorf("%s: %w", msg, err)
	}

	records := result.Records()
	expected := append(r.expected, materializeCases(r.fileNodes, records)...)
	session.Apply(expected, records, rs)
	return nil
}

// awaitResult polls for the reporter's output file after the debug
// session has detached. The reporter may still be flushing when the
// debugger disconnects, so a file that exists but does not yet parse
// as a complete report is treated as not ready and polled again.
func awaitResult(ctx context.Context, path string) (*BatchResult, error) {
	deadline := time.Now().Add(outputFileWait)
	var lastErr error
	for {
		if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
			result, perr := ParseBatchResult(data)
			if perr == nil {
				return result, nil
			}
			lastErr = perr
		}
		if time.Now().After(deadline) {
			if lastErr != nil {
				return nil, fmt.Errorf("output file %s never completed: %w", path, lastErr)
			}
			return nil, fmt.Errorf("output file %s never appeared", path)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(outputFilePollInterval):
		}
	}
}
