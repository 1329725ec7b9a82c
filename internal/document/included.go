package document

import (
	"slices"

	"github.com/roach88/jsonapi/internal/ir"
)

// includeTree is the set of include paths as a tree of relationship names.
type includeTree struct {
	names    []string
	children map[string]*includeTree
}

func newIncludeTree(paths []string) *includeTree {
	root := &includeTree{children: map[string]*includeTree{}}
	for _, path := range paths {
		node := root
		for _, seg := range ir.SplitPath(path) {
			if seg = ir.CanonicalName(seg); seg == "" {
				continue
			}
			next, ok := node.children[seg]
			if !ok {
				next = &includeTree{children: map[string]*includeTree{}}
				node.children[seg] = next
				node.names = append(node.names, seg)
			}
			node = next
		}
	}
	return root
}

// Included collects the included resources of one response.
//
// Resources are keyed by (type, id): a resource reached through several
// include paths or from several primary resources is rendered once, with
// the union of the relationships the paths traverse through it.
type Included struct {
	serializer *Serializer
	fields     map[string][]string

	primary map[ir.Identifier]bool
	index   map[ir.Identifier]int
	entries []includedEntry
}

type includedEntry struct {
	record *ir.Record
	forced []string
}

// NewIncluded creates a collector rendering with the given sparse fieldsets.
func (s *Serializer) NewIncluded(fields map[string][]string) *Included {
	return &Included{
		serializer: s,
		fields:     fields,
		primary:    make(map[ir.Identifier]bool),
		index:      make(map[ir.Identifier]int),
	}
}

// Exclude marks primary resources, which are never repeated in included.
func (c *Included) Exclude(records ...*ir.Record) {
	for _, r := range records {
		c.primary[r.Identifier()] = true
	}
}

// Add collects a resource. forced names relationships to render regardless
// of the sparse fieldset.
func (c *Included) Add(r *ir.Record, forced ...string) {
	key := r.Identifier()
	if c.primary[key] {
		return
	}
	if i, ok := c.index[key]; ok {
		for _, name := range forced {
			if !slices.Contains(c.entries[i].forced, name) {
				c.entries[i].forced = append(c.entries[i].forced, name)
			}
		}
		return
	}
	c.index[key] = len(c.entries)
	c.entries = append(c.entries, includedEntry{record: r, forced: slices.Clone(forced)})
}

// AddPaths follows include paths over the relations loaded on r and
// collects every target.
func (c *Included) AddPaths(r *ir.Record, paths []string) {
	c.walk(r, newIncludeTree(paths))
}

func (c *Included) walk(r *ir.Record, tree *includeTree) {
	for _, name := range tree.names {
		rel, ok := r.Relation(name)
		if !ok {
			continue
		}
		sub := tree.children[name]
		for _, target := range rel.Targets() {
			c.Add(target, sub.names...)
			c.walk(target, sub)
		}
	}
}

// Len returns the number of collected resources.
func (c *Included) Len() int {
	return len(c.entries)
}

// Objects renders the collected resources in first-reached order.
// Returns nil when nothing was collected.
func (c *Included) Objects() []*ResourceObject {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]*ResourceObject, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, c.serializer.Resource(e.record, c.fields, e.forced))
	}
	return out
}
