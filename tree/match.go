package tree

import "fmt"

// UnmatchedError reports an external task that has no corresponding node
// among the local candidates. This is surfaced rather than skipped:
// silently dropping a structural node would leave its tests pending
// forever.
type UnmatchedError struct {
	Name string
	Kind Kind
}

func (e *UnmatchedError) Error() string {
	return fmt.Sprintf("no local %s node matches task %q", e.Kind, e.Name)
}

// Match finds the candidate representing an external task with the given
// name. Kind discrimination comes first: a suite task may only match a
// group node, a test task only a case node, even when names collide
// across kinds. Among same-kind candidates the first whose own pattern
// equals the name wins; candidates are scanned in declaration order so
// the tie-break is deterministic.
func Match(name string, candidates []*Node, kind Kind) (*Node, error) {
	for _, c := range candidates {
		if c.Kind == kind && c.Pattern == name {
			return c, nil
		}
	}
	return nil, &UnmatchedError{Name: name, Kind: kind}
}
