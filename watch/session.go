// Package watch owns the long-lived watch process: it spawns the
// external runner with its reporting channel enabled, mirrors the
// runner-side task tree, and reconciles reported outcomes into run
// sessions as files re-execute.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"vitebridge/api"
	"vitebridge/config"
	"vitebridge/discovery"
	"vitebridge/runner"
	"vitebridge/session"
	"vitebridge/tree"
)

// State is the session lifecycle: idle until Watch, watching until
// Dispose.
type State int

const (
	StateIdle State = iota
	StateWatching
)

func (s State) String() string {
	if s == StateWatching {
		return "watching"
	}
	return "idle"
}

// SessionFactory opens a new run session. The watch session opens one on
// the first task update after a quiet period and closes it on finished.
type SessionFactory func() session.RunSession

// Session drives one watch process. Construct with New, start with
// Watch, stop with Dispose; a disposed session can be watched again.
// Callers wanting at most one per controller go through Registry.
type Session struct {
	cfg     config.Config
	dir     string
	disc    discovery.Discoverer
	factory SessionFactory
	log     *slog.Logger

	// dialChannel is swappable for tests.
	dialChannel func(ctx context.Context, url string, h api.Handlers) (channel, error)

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	cmd       *exec.Cmd
	client    channel
	open      session.RunSession
	snapshots map[string]fileSnapshot
	known     map[string]*tree.Node
}

// channel is the slice of api.Client the session uses.
type channel interface {
	Rerun(paths []string) error
	Close()
}

// New creates an idle watch session.
func New(cfg config.Config, dir string, disc discovery.Discoverer, factory SessionFactory, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		cfg:       cfg,
		dir:       dir,
		disc:      disc,
		factory:   factory,
		log:       log.With("component", "watch"),
		snapshots: make(map[string]fileSnapshot),
		known:     make(map[string]*tree.Node),
	}
	s.dialChannel = func(ctx context.Context, url string, h api.Handlers) (channel, error) {
		return api.Dial(ctx, url, h, s.log)
	}
	return s
}

// Watch spawns the watch process and connects to its reporting channel.
// Calling Watch on an already-watching session is a no-op.
func (s *Session) Watch(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateWatching {
		s.mu.Unlock()
		return nil
	}
	s.state = StateWatching
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)

	bin, base := s.cfg.Command()
	args := append(base, runner.WatchArgs(s.cfg.APIPort)...)
	logLine := func(line string) { s.log.Debug("runner", "line", line) }
	cmd, wait, err := runner.StartStreaming(ctx, bin, args, s.dir, s.cfg.Environ(), logLine, logLine)
	if err != nil {
		cancel()
		s.reset()
		return fmt.Errorf("spawn watch process: %w", err)
	}
	go func() {
		if werr := wait(); werr != nil {
			s.log.Debug("watch process exited", "err", werr)
		}
	}()

	url := fmt.Sprintf("ws://127.0.0.1:%d/__vitest_api__", s.cfg.APIPort)
	client, err := s.dialChannel(ctx, url, api.Handlers{
		OnCollected:  s.onCollected,
		OnTaskUpdate: s.onTaskUpdate,
		OnFinished:   s.onFinished,
	})
	if err != nil {
		cancel()
		s.reset()
		return fmt.Errorf("connect reporting channel: %w", err)
	}

	s.mu.Lock()
	if s.state != StateWatching {
		// Disposed while we were still starting up. Nothing ever got
		// handed to Dispose, so tear down what we built here.
		s.mu.Unlock()
		client.Close()
		cancel()
		return nil
	}
	s.cancel = cancel
	s.cmd = cmd
	s.client = client
	s.mu.Unlock()
	s.log.Info("watch session started", "bin", bin, "apiPort", s.cfg.APIPort)
	return nil
}

// onCollected mirrors the reported file set. Files we have not seen are
// materialized through the discovery collaborator; an empty file set
// means the runner noticed something we cannot attribute, so the whole
// workspace is rediscovered instead.
func (s *Session) onCollected(files []api.File) {
	if len(files) == 0 {
		if _, err := s.disc.Rediscover(context.Background()); err != nil {
			s.log.Error("rediscovery failed", "err", err)
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		node, err := s.disc.EnsureFile(f.Filepath)
		if err != nil {
			s.log.Error("cannot materialize file node", "path", f.Filepath, "err", err)
			continue
		}
		s.known[f.Filepath] = node
		if !node.Loaded {
			materializeTree(node, f.Tasks)
		}

		// Collection resets the mirrored tree; baseline the snapshot
		// so the next update only reports genuine changes. With a run
		// session open the collected outcomes reconcile immediately.
		if s.open != nil {
			s.snapshots[f.Filepath] = reconcileFile(node, f.Tasks, s.snapshots[f.Filepath], s.open, s.log)
		} else {
			snap := make(fileSnapshot)
			snapshotOnly(f.Tasks, "", snap)
			s.snapshots[f.Filepath] = snap
		}
	}
}

// onTaskUpdate opens a run session if none is open and applies the
// changed leaf outcomes.
func (s *Session) onTaskUpdate(files []api.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateWatching {
		return
	}
	if s.open == nil {
		s.open = s.factory()
	}
	for _, f := range files {
		node, ok := s.known[f.Filepath]
		if !ok {
			var err error
			node, err = s.disc.EnsureFile(f.Filepath)
			if err != nil {
				s.log.Error("task update for unknown file", "path", f.Filepath, "err", err)
				continue
			}
			s.known[f.Filepath] = node
		}
		if !node.Loaded {
			materializeTree(node, f.Tasks)
		}
		s.snapshots[f.Filepath] = reconcileFile(node, f.Tasks, s.snapshots[f.Filepath], s.open, s.log)
	}
}

// onFinished closes the open run session, if any. Only the watch session
// itself may close it; reconciliation merely writes into it while open.
func (s *Session) onFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open != nil {
		s.open.End()
		s.open = nil
	}
}

// RunTests clears cached outcomes and asks the runner to re-execute.
// A non-empty selection narrows the rerun request to those paths; the
// cache is cleared wholesale either way, which is the generic fallback
// the one-shot path does not need to improve on.
func (s *Session) RunTests(paths []string) error {
	s.mu.Lock()
	if s.state != StateWatching || s.client == nil {
		s.mu.Unlock()
		return fmt.Errorf("watch session is not running")
	}
	client := s.client
	s.snapshots = make(map[string]fileSnapshot)
	if len(paths) == 0 {
		for p := range s.known {
			paths = append(paths, p)
		}
	}
	s.mu.Unlock()
	return client.Rerun(paths)
}

// Dispose stops the watch process and releases everything. Idempotent.
// An open run session is ended first so no run outlives the watcher.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	cancel := s.cancel
	client := s.client
	open := s.open
	s.cancel = nil
	s.cmd = nil
	s.client = nil
	s.open = nil
	s.snapshots = make(map[string]fileSnapshot)
	s.known = make(map[string]*tree.Node)
	s.mu.Unlock()

	if open != nil {
		open.End()
	}
	if client != nil {
		client.Close()
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("watch session disposed")
}

// CurrentState reports the session lifecycle state.
func (s *Session) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) reset() {
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
}
