// Package discovery materializes local file nodes for the test files in
// a workspace. It finds files; it never parses them. Populating a file
// node's groups and cases is the caller-provided loader's job.
package discovery

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/boyter/gocodewalker"

	"vitebridge/tree"
)

// IsTestFile reports whether a file name looks like a test file.
func IsTestFile(name string) bool {
	for _, suffix := range []string{
		".test.ts", ".test.js", ".test.tsx", ".test.jsx", ".test.mts", ".test.mjs",
		".spec.ts", ".spec.js", ".spec.tsx", ".spec.jsx", ".spec.mts", ".spec.mjs",
	} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Discoverer is the file-discovery collaborator the watch session leans
// on: fetch-or-create a file node, or re-scan the whole workspace.
type Discoverer interface {
	EnsureFile(path string) (*tree.Node, error)
	Rediscover(ctx context.Context) ([]*tree.Node, error)
}

// Walker is a Discoverer backed by a gitignore-aware workspace walk.
// File nodes are cached by path so the same path always yields the same
// node, which is what keeps identity stable across runs.
type Walker struct {
	root string
	log  *slog.Logger

	mu    sync.Mutex
	files map[string]*tree.Node
}

// NewWalker creates a Walker rooted at the workspace directory.
func NewWalker(root string, log *slog.Logger) *Walker {
	if log == nil {
		log = slog.Default()
	}
	return &Walker{
		root:  root,
		log:   log.With("component", "discovery"),
		files: make(map[string]*tree.Node),
	}
}

// EnsureFile returns the cached node for the path, creating an unloaded
// one if the path names an existing test file we have not seen yet.
func (w *Walker) EnsureFile(path string) (*tree.Node, error) {
	w.mu.Lock()
	if n, ok := w.files[path]; ok {
		w.mu.Unlock()
		return n, nil
	}
	w.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if n, ok := w.files[path]; ok {
		return n, nil
	}
	n := tree.NewFile(path, path)
	w.files[path] = n
	w.log.Debug("discovered test file", "path", path)
	return n, nil
}

// Rediscover walks the workspace for test files, honoring .gitignore,
// and returns the refreshed file set. Cached nodes survive the walk;
// nodes whose file vanished are dropped.
func (w *Walker) Rediscover(ctx context.Context) ([]*tree.Node, error) {
	queue := make(chan *gocodewalker.File, 100)
	walker := gocodewalker.NewFileWalker(w.root, queue)
	go func() {
		_ = walker.Start()
	}()

	found := make(map[string]bool)
	for f := range queue {
		select {
		case <-ctx.Done():
			walker.Terminate()
			return nil, ctx.Err()
		default:
		}
		if IsTestFile(f.Filename) {
			found[f.Location] = true
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for path := range w.files {
		if !found[path] {
			delete(w.files, path)
		}
	}
	for path := range found {
		if _, ok := w.files[path]; !ok {
			n := tree.NewFile(path, path)
			w.files[path] = n
		}
	}
	return w.sortedLocked(), nil
}

// Forget drops a cached file node, typically after the file is deleted.
func (w *Walker) Forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.files, path)
}

// Files returns the known file nodes sorted by path.
func (w *Walker) Files() []*tree.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sortedLocked()
}

func (w *Walker) sortedLocked() []*tree.Node {
	out := make([]*tree.Node, 0, len(w.files))
	for _, n := range w.files {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
