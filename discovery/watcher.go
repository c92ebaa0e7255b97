package discovery

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is one debounced file-system change affecting a test file.
type Event struct {
	Path    string
	Removed bool
}

// Watcher tails the workspace for test-file changes. Creations feed the
// Walker's cache, removals evict from it, and every event is forwarded
// for callers that want to trigger a re-run.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	walker    *Walker
	log       *slog.Logger
	Events    chan Event
	done      chan struct{}
}

var debounceInterval = 100 * time.Millisecond

// NewWatcher starts watching the walker's workspace recursively.
func NewWatcher(walker *Walker, log *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		walker:    walker,
		log:       log.With("component", "watcher"),
		Events:    make(chan Event, 16),
		done:      make(chan struct{}),
	}

	// fsnotify is not recursive; add every non-ignored directory.
	err = filepath.Walk(walker.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if ignoredDir(info.Name()) {
				return filepath.SkipDir
			}
			return w.fsWatcher.Add(path)
		}
		return nil
	})
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

func ignoredDir(name string) bool {
	switch name {
	case "node_modules", ".git", "dist", "build", "coverage":
		return true
	}
	return false
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if ignoredDir(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}

			// New directories need explicit registration.
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.fsWatcher.Add(event.Name)
					continue
				}
			}

			if !IsTestFile(filepath.Base(event.Name)) {
				continue
			}

			removed := event.Op&(fsnotify.Remove|fsnotify.Rename) != 0
			if timer != nil {
				timer.Stop()
			}
			name := event.Name
			timer = time.AfterFunc(debounceInterval, func() {
				w.deliver(Event{Path: name, Removed: removed})
			})

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "err", err)
		}
	}
}

func (w *Watcher) deliver(ev Event) {
	if ev.Removed {
		w.walker.Forget(ev.Path)
	} else if _, err := w.walker.EnsureFile(ev.Path); err != nil {
		w.log.Debug("ignoring event for unreadable file", "path", ev.Path, "err", err)
		return
	}
	select {
	case w.Events <- ev:
	case <-w.done:
	}
}

// Close stops the watcher. Idempotent enough for deferred use.
func (w *Watcher) Close() {
	close(w.done)
	w.fsWatcher.Close()
}
