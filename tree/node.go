package tree

import "strings"

// Kind discriminates the structural variants of a test tree node.
type Kind int

const (
	// KindFile is a test file containing groups and cases.
	KindFile Kind = iota
	// KindGroup is a describe-like container inside a file.
	KindGroup
	// KindCase is a leaf test.
	KindCase
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindGroup:
		return "group"
	case KindCase:
		return "case"
	}
	return "unknown"
}

// Node is one node of the editor-side test tree. Files own groups and
// cases; groups own groups and cases; cases are leaves.
type Node struct {
	ID      string
	Pattern string // the node's own display name
	Kind    Kind

	Children []*Node // declaration order; nil for cases
	Parent   *Node
	File     *Node // owning file; the file itself for KindFile

	// Path is set on file nodes only.
	Path string

	// Loaded reports whether a file node's children have been
	// materialized by the discovery collaborator.
	Loaded bool
}

// NewFile creates an unloaded file node for the given path.
func NewFile(id, path string) *Node {
	n := &Node{ID: id, Pattern: "", Kind: KindFile, Path: path}
	n.File = n
	return n
}

// NewGroup creates a group node and attaches it to parent.
func NewGroup(id, pattern string, parent *Node) *Node {
	n := &Node{ID: id, Pattern: pattern, Kind: KindGroup, Parent: parent, File: parent.File}
	parent.Children = append(parent.Children, n)
	return n
}

// NewCase creates a case node and attaches it to parent.
func NewCase(id, pattern string, parent *Node) *Node {
	n := &Node{ID: id, Pattern: pattern, Kind: KindCase, Parent: parent, File: parent.File}
	parent.Children = append(parent.Children, n)
	return n
}

// FullPattern concatenates the patterns of the node's ancestors (file
// excluded) down to the node itself. It is derived on demand so it can
// never go stale when the tree is reshaped. Used as the name filter that
// scopes execution to exactly this node; empty for file nodes.
func (n *Node) FullPattern() string {
	var parts []string
	for cur := n; cur != nil && cur.Kind != KindFile; cur = cur.Parent {
		parts = append(parts, cur.Pattern)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " ")
}

// Cases returns every case node in the subtree rooted at n, in
// declaration order.
func (n *Node) Cases() []*Node {
	var out []*Node
	n.walk(func(c *Node) {
		if c.Kind == KindCase {
			out = append(out, c)
		}
	})
	return out
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}
