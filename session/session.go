// Package session holds the run-session abstraction and the result
// applier that turns external test results into per-node state
// transitions. The applier is the only place transitions are issued.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vitebridge/tree"
)

// Status is the reported state of a case within one run.
type Status int

const (
	// StatusEnqueued means the case is scheduled but has not produced
	// a result yet.
	StatusEnqueued Status = iota
	// StatusStarted means the run containing the case has begun.
	StatusStarted
	// StatusPassed is terminal.
	StatusPassed
	// StatusFailed is terminal.
	StatusFailed
	// StatusSkipped is terminal.
	StatusSkipped
	// StatusErrored is terminal: the case never received a usable result.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusEnqueued:
		return "enqueued"
	case StatusStarted:
		return "started"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusErrored:
		return "errored"
	}
	return "unknown"
}

// Terminal reports whether the status ends a case's run.
func (s Status) Terminal() bool {
	return s >= StatusPassed
}

// RunSession receives state transitions for one "execute these tests now"
// transaction. Implementations are provided by the surrounding
// application (an editor surface, the CLI recorder, a test double).
type RunSession interface {
	Enqueued(n *tree.Node)
	Started(n *tree.Node)
	Passed(n *tree.Node, duration time.Duration)
	Failed(n *tree.Node, message string)
	Skipped(n *tree.Node)
	Errored(n *tree.Node, message string)

	// AppendOutput adds raw runner output to the session transcript.
	AppendOutput(text string)

	// End closes the session. Idempotent.
	End()
}

// Transition is one recorded state change.
type Transition struct {
	Status   Status
	Message  string
	Duration time.Duration
}

// Recorder is a RunSession that keeps every transition in memory. A case
// that has reached a terminal status stays there: later transitions for
// the same node are dropped, which makes result application idempotent at
// the session boundary as well.
type Recorder struct {
	ID string

	mu     sync.Mutex
	states map[*tree.Node]Transition
	order  []*tree.Node
	output strings.Builder
	ended  bool
}

// NewRecorder creates an empty recorder with a fresh session ID.
func NewRecorder() *Recorder {
	return &Recorder{
		ID:     uuid.NewString(),
		states: make(map[*tree.Node]Transition),
	}
}

func (r *Recorder) set(n *tree.Node, tr Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return
	}
	if prev, ok := r.states[n]; ok && prev.Status.Terminal() {
		return
	}
	if _, ok := r.states[n]; !ok {
		r.order = append(r.order, n)
	}
	r.states[n] = tr
}

func (r *Recorder) Enqueued(n *tree.Node) { r.set(n, Transition{Status: StatusEnqueued}) }
func (r *Recorder) Started(n *tree.Node)  { r.set(n, Transition{Status: StatusStarted}) }

func (r *Recorder) Passed(n *tree.Node, d time.Duration) {
	r.set(n, Transition{Status: StatusPassed, Duration: d})
}

func (r *Recorder) Failed(n *tree.Node, msg string) {
	r.set(n, Transition{Status: StatusFailed, Message: msg})
}

func (r *Recorder) Skipped(n *tree.Node) { r.set(n, Transition{Status: StatusSkipped}) }

func (r *Recorder) Errored(n *tree.Node, msg string) {
	r.set(n, Transition{Status: StatusErrored, Message: msg})
}

func (r *Recorder) AppendOutput(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output.WriteString(text)
}

func (r *Recorder) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = true
}

// Ended reports whether End has been called.
func (r *Recorder) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// State returns the recorded transition for a node.
func (r *Recorder) State(n *tree.Node) (Transition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.states[n]
	return tr, ok
}

// Nodes returns every node the session touched, in first-transition order.
func (r *Recorder) Nodes() []*tree.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*tree.Node, len(r.order))
	copy(out, r.order)
	return out
}

// Output returns the accumulated transcript.
func (r *Recorder) Output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output.String()
}
