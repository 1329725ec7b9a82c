// Package include plans the eager loading of JSON:API include paths.
//
// Each dotted path (e.g. "comments.author") becomes a chain of nodes, one
// per relationship hop. Paths sharing a prefix share nodes, so
// include=comments,comments.author loads comments once.
//
// Loading strategy per hop:
//   - to-one: Joined, a LEFT JOIN in the query that loads the parent
//   - to-many: Batched, one secondary query per level with an IN list of parent keys
package include

import (
	"slices"

	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/model"
	"github.com/roach88/jsonapi/internal/querysql"
)

// Strategy is how a relationship hop is loaded.
type Strategy int

const (
	// Joined loads a to-one target with a LEFT JOIN.
	Joined Strategy = iota

	// Batched loads to-many targets with a separate IN query.
	Batched
)

func (s Strategy) String() string {
	if s == Batched {
		return "batched"
	}
	return "joined"
}

// Node is one relationship hop of the plan.
type Node struct {
	// Name is the relationship name on the parent type.
	Name string

	// Path is the dotted path from the root.
	Path string

	// ParentType is the resource type owning the relationship.
	ParentType string

	Relationship model.Relationship
	Strategy     Strategy

	// Columns are the target columns to load, in schema order. They always
	// include the primary key, the relationship foreign key and the local
	// keys of child hops.
	Columns []string

	Children []*Node
}

// TargetType returns the resource type the hop loads.
func (n *Node) TargetType() string {
	return n.Relationship.Target
}

func (n *Node) child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Tree is the include plan for one request.
type Tree struct {
	RootType string
	Roots    []*Node

	// RootKeys are root columns the plan needs loaded (local keys of the root hops).
	RootKeys []string
}

// Options tune column selection.
type Options struct {
	// Fields is the request's sparse fieldsets by type.
	Fields map[string][]string

	// LinkageOnly loads only the keys of every hop.
	LinkageOnly bool
}

// Plan builds the include tree for rootType.
//
// A path naming an unknown relationship at any hop is discarded as a whole;
// other paths are unaffected. Empty segments are ignored. Plan never fails.
func Plan(models model.Provider, rootType string, paths []string, opts Options) *Tree {
	tree := &Tree{RootType: rootType}
	root := &Node{Relationship: model.Relationship{Target: rootType}}

	for _, path := range paths {
		segments := cleanSegments(path)
		if len(segments) == 0 || !resolves(models, rootType, segments) {
			continue
		}
		insert(models, root, rootType, segments)
	}

	tree.Roots = root.Children
	tree.RootKeys = localKeys(root)
	for _, n := range tree.Roots {
		finalize(models, n, opts)
	}
	return tree
}

func cleanSegments(path string) []string {
	var out []string
	for _, seg := range ir.SplitPath(path) {
		if seg = ir.CanonicalName(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func resolves(models model.Provider, typ string, segments []string) bool {
	for _, seg := range segments {
		rel, ok := models.Relationship(typ, seg)
		if !ok {
			return false
		}
		typ = rel.Target
	}
	return true
}

func insert(models model.Provider, parent *Node, parentType string, segments []string) {
	for _, seg := range segments {
		n := parent.child(seg)
		if n == nil {
			rel, _ := models.Relationship(parentType, seg)
			n = &Node{
				Name:         seg,
				Path:         joinPath(parent.Path, seg),
				ParentType:   parentType,
				Relationship: rel,
				Strategy:     Joined,
			}
			if rel.ToMany {
				n.Strategy = Batched
			}
			parent.Children = append(parent.Children, n)
		}
		parent, parentType = n, n.TargetType()
	}
}

func finalize(models model.Provider, n *Node, opts Options) {
	target := n.TargetType()
	pk := models.PrimaryKey(target)

	var base []string
	if opts.LinkageOnly {
		base = []string{pk}
	} else {
		base = querysql.Projection(models.Columns(target), pk, opts.Fields[target])
	}

	need := append(base, n.Relationship.ForeignKey)
	need = append(need, localKeys(n)...)
	n.Columns = inSchemaOrder(models.Columns(target), need)

	for _, c := range n.Children {
		finalize(models, c, opts)
	}
}

func localKeys(n *Node) []string {
	var keys []string
	for _, c := range n.Children {
		if !slices.Contains(keys, c.Relationship.LocalKey) {
			keys = append(keys, c.Relationship.LocalKey)
		}
	}
	return keys
}

func inSchemaOrder(columns, want []string) []string {
	out := make([]string, 0, len(want))
	for _, col := range columns {
		if slices.Contains(want, col) {
			out = append(out, col)
		}
	}
	return out
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Walk visits every node depth-first in plan order.
func (t *Tree) Walk(fn func(*Node)) {
	if t == nil {
		return
	}
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			fn(n)
			walk(n.Children)
		}
	}
	walk(t.Roots)
}

// Paths returns the dotted path of every node depth-first.
func (t *Tree) Paths() []string {
	var paths []string
	t.Walk(func(n *Node) { paths = append(paths, n.Path) })
	return paths
}

// Empty reports whether the plan loads nothing.
func (t *Tree) Empty() bool {
	return t == nil || len(t.Roots) == 0
}
