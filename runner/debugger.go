package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
)

// InspectorDebugger is the default Debugger: it spawns the runner with a
// Node inspector port open via NODE_OPTIONS and treats process exit as
// the debuggee detaching. An external debug client is free to attach and
// detach while the process runs; its streams are logged, never captured
// as results.
type InspectorDebugger struct {
	Port int
	Log  *slog.Logger
}

func (d *InspectorDebugger) Launch(ctx context.Context, lc LaunchConfig) error {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	env := slices.Clone(lc.Env)
	env = append(env, fmt.Sprintf("NODE_OPTIONS=--inspect=%d", d.Port))

	log.Info("debuggee starting", "program", lc.Program, "inspectPort", d.Port)
	_, err := runStreaming(ctx, lc.Program, lc.Args, lc.Dir, env, func(line string) {
		log.Debug("debuggee", "line", line)
	})
	// A failing test suite exits non-zero; the output file still holds
	// the results, so only spawn-level errors propagate.
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return err
	}
	log.Info("debuggee detached", "program", lc.Program)
	return nil
}
