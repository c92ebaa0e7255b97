package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vitebridge/config"
	"vitebridge/discovery"
	"vitebridge/runner"
	"vitebridge/session"
	"vitebridge/tree"
	"vitebridge/watch"
)

var (
	flagRoot    string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "vitebridge",
	Short:         "Run, debug and watch an external test runner and reconcile its results",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func registerCommands() {
	rootCmd.PersistentFlags().StringVarP(&flagRoot, "root", "r", ".", "workspace root")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	runCmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Execute test files once and report results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), args, false)
		},
	}

	debugCmd := &cobra.Command{
		Use:   "debug [files...]",
		Short: "Execute test files under a debugger, results via output file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), args, true)
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a watch process alive and reconcile results as files change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context())
		},
	}

	rootCmd.AddCommand(runCmd, debugCmd, watchCmd)
}

// resolveSelection maps CLI file arguments onto file nodes, or the whole
// discovered workspace when no arguments are given.
func resolveSelection(ctx context.Context, walker *discovery.Walker, args []string) ([]*tree.Node, error) {
	if len(args) == 0 {
		files, err := walker.Rediscover(ctx)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no test files found under %s", flagRoot)
		}
		return files, nil
	}
	var selection []*tree.Node
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		node, err := walker.EnsureFile(abs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		selection = append(selection, node)
	}
	return selection, nil
}

func runOnce(ctx context.Context, args []string, debug bool) error {
	cfg := config.Load(flagRoot)
	log := slog.Default()
	walker := discovery.NewWalker(flagRoot, log)

	selection, err := resolveSelection(ctx, walker, args)
	if err != nil {
		return err
	}

	orch := &runner.Orchestrator{
		Config: cfg,
		Dir:    flagRoot,
		Log:    log,
		Debug:  &runner.InspectorDebugger{Port: cfg.DebugPort, Log: log},
	}

	rec := session.NewRecorder()
	if debug {
		err = orch.RunDebug(ctx, selection, rec)
	} else {
		err = orch.Run(ctx, selection, rec)
	}

	fmt.Print(rec.Output())
	failures := printSummary(rec)
	if err != nil {
		return err
	}
	if failures > 0 {
		return fmt.Errorf("%d test(s) failed", failures)
	}
	return nil
}

func runWatch(ctx context.Context) error {
	cfg := config.Load(flagRoot)
	log := slog.Default()
	walker := discovery.NewWalker(flagRoot, log)
	if _, err := walker.Rediscover(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := watch.NewRegistry()
	ws := registry.GetOrCreate("cli", func() *watch.Session {
		return watch.New(cfg, flagRoot, walker, func() session.RunSession {
			return &printingSession{Recorder: session.NewRecorder()}
		}, log)
	})
	if err := ws.Watch(ctx); err != nil {
		return err
	}
	defer registry.Remove("cli")

	// File events outside the runner's own watch scope (new or deleted
	// test files) nudge it to re-run.
	watcher, err := discovery.NewWatcher(walker, log)
	if err != nil {
		return err
	}
	defer watcher.Close()

	log.Info("watching for changes, Ctrl-C to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-watcher.Events:
			log.Debug("file event", "path", ev.Path, "removed", ev.Removed)
			if err := ws.RunTests(nil); err != nil {
				log.Error("rerun request failed", "err", err)
			}
		}
	}
}

// printingSession prints a run summary the moment the watch session
// closes it.
type printingSession struct {
	*session.Recorder
}

func (p *printingSession) End() {
	p.Recorder.End()
	printSummary(p.Recorder)
}

// printSummary renders per-status counts and failure details, returning
// the number of failed or errored cases.
func printSummary(rec *session.Recorder) int {
	var passed, failed, skipped, errored int
	for _, n := range rec.Nodes() {
		st, _ := rec.State(n)
		switch st.Status {
		case session.StatusPassed:
			passed++
		case session.StatusFailed:
			failed++
			color.Red("FAIL %s (%s)", n.FullPattern(), n.File.Path)
			if st.Message != "" {
				fmt.Println("  " + st.Message)
			}
		case session.StatusSkipped:
			skipped++
		case session.StatusErrored:
			errored++
			color.Yellow("ERROR %s (%s)", n.FullPattern(), n.File.Path)
			if st.Message != "" {
				fmt.Println("  " + st.Message)
			}
		}
	}
	summary := fmt.Sprintf("%d passed, %d failed, %d skipped, %d errored", passed, failed, skipped, errored)
	if failed+errored > 0 {
		color.Red(summary)
	} else {
		color.Green(summary)
	}
	return failed + errored
}
