package queryir

import (
	"slices"
	"strconv"
	"strings"
)

// SortDirection is the direction of a sort key.
type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// SortSpec is one sort key. Field may be a dotted path.
type SortSpec struct {
	Field     string
	Direction SortDirection
}

// PageValue is a page parameter: an int when the raw value parses as one.
type PageValue struct {
	Raw   string
	Int   int
	IsInt bool
}

// NewPageValue coerces a raw page parameter.
func NewPageValue(raw string) PageValue {
	if n, err := strconv.Atoi(raw); err == nil {
		return PageValue{Raw: raw, Int: n, IsInt: true}
	}
	return PageValue{Raw: raw}
}

// Request is the normalized form of a JSON:API read request.
type Request struct {
	// Include lists dotted relationship paths in request order.
	Include []string

	// Fields maps a resource type to its sparse fieldset, in request order.
	Fields map[string][]string

	// Sort lists sort keys in priority order.
	Sort []SortSpec

	// Page holds the page[...] parameters.
	Page map[string]PageValue

	// Filter is the filter tree; nil means no constraint.
	Filter FilterNode

	// RawFilter is the normalized filter value the tree was built from.
	RawFilter any
}

// NewRequest returns an empty Request with initialized maps.
func NewRequest() *Request {
	return &Request{
		Include: []string{},
		Fields:  map[string][]string{},
		Sort:    []SortSpec{},
		Page:    map[string]PageValue{},
	}
}

// FieldSet returns the sparse fieldset for a type and whether one was requested.
func (r *Request) FieldSet(typ string) ([]string, bool) {
	if r == nil {
		return nil, false
	}
	fields, ok := r.Fields[typ]
	return fields, ok
}

// PageInt returns an integer page parameter, or def when absent or not an int.
func (r *Request) PageInt(key string, def int) int {
	if r == nil {
		return def
	}
	if v, ok := r.Page[key]; ok && v.IsInt {
		return v.Int
	}
	return def
}

// IncludeRoots returns the distinct first segments of the include paths.
func (r *Request) IncludeRoots() []string {
	if r == nil {
		return nil
	}
	var roots []string
	for _, path := range r.Include {
		root, _, _ := strings.Cut(path, ".")
		if root != "" && !slices.Contains(roots, root) {
			roots = append(roots, root)
		}
	}
	return roots
}

// Shape returns a copy of r that keeps only include, fields and page.
// Loads addressed by primary key use it so that filter and sort never hide
// an existing record.
func (r *Request) Shape() *Request {
	if r == nil {
		return nil
	}
	out := NewRequest()
	out.Include = slices.Clone(r.Include)
	for typ, fields := range r.Fields {
		out.Fields[typ] = slices.Clone(fields)
	}
	for key, v := range r.Page {
		out.Page[key] = v
	}
	return out
}

// Constraint pins a column of the root table to a value. The data layer
// ANDs constraints with the compiled filter.
type Constraint struct {
	Column string
	Value  any
}

// ReadQuery is everything the data layer needs to load records of one type.
type ReadQuery struct {
	// Type is the root resource type.
	Type string

	// Request supplies filter, sort, fields and include.
	Request *Request

	// Constraints are extra column equalities, e.g. the foreign key of a related collection.
	Constraints []Constraint

	// LinkageOnly loads only the keys of included resources.
	LinkageOnly bool

	// Offset and Limit window the primary records. Limit < 1 disables windowing.
	Offset int
	Limit  int

	// WithTotal requests the unwindowed row count.
	WithTotal bool
}
