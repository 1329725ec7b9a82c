package querysql

import (
	"slices"

	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/queryir"
)

// CompileSort compiles sort keys into ORDER BY terms.
//
// Only to-one hops are followed (joined through the plan). Keys that cross
// a to-many relationship or do not resolve are skipped. The root primary
// key is appended ascending as a tiebreaker so pages are stable.
func (c *Compiler) CompileSort(specs []queryir.SortSpec, plan *JoinPlan) []string {
	terms := make([]string, 0, len(specs)+1)
	seen := make(map[string]bool, len(specs)+1)

	for _, spec := range specs {
		col, ok := c.resolveSortColumn(spec.Field, plan)
		if !ok {
			plan.skip("sort %s", spec.Field)
			continue
		}
		if seen[col] {
			continue
		}
		seen[col] = true
		dir := " ASC"
		if spec.Direction == queryir.Desc {
			dir = " DESC"
		}
		terms = append(terms, col+dir)
	}

	if pk := c.models.PrimaryKey(plan.rootType); pk != "" {
		col := c.dialect.Column(plan.rootAlias, pk)
		if !seen[col] {
			terms = append(terms, col+" ASC")
		}
	}
	return terms
}

func (c *Compiler) resolveSortColumn(field string, plan *JoinPlan) (string, bool) {
	segments := ir.SplitPath(field)
	if len(segments) == 0 || !c.pathResolves(plan.rootType, segments, false) {
		return "", false
	}

	typ, alias, prefix := plan.rootType, plan.rootAlias, ""
	for _, seg := range segments[:len(segments)-1] {
		rel, ok := c.models.Relationship(typ, seg)
		if !ok || rel.ToMany {
			return "", false
		}
		target, ok := c.models.Resource(rel.Target)
		if !ok {
			return "", false
		}
		j := plan.Ensure(joinPath(prefix, seg), alias, target.Table, rel)
		typ, alias, prefix = rel.Target, j.Alias, j.Path
	}

	res, ok := c.models.Resource(typ)
	if !ok || !res.HasColumn(segments[len(segments)-1]) {
		return "", false
	}
	return c.dialect.Column(alias, segments[len(segments)-1]), true
}

// CompileProjection returns the columns to load for a type given its
// sparse fieldset, in schema order. The primary key is always included.
// An empty fieldset selects every column; names that are not columns
// (such as relationship names) are ignored.
func (c *Compiler) CompileProjection(typ string, fields []string) []string {
	return Projection(c.models.Columns(typ), c.models.PrimaryKey(typ), fields)
}

// Projection is CompileProjection over explicit schema data.
func Projection(columns []string, pk string, fields []string) []string {
	if len(fields) == 0 {
		return slices.Clone(columns)
	}
	out := make([]string, 0, len(fields)+1)
	for _, col := range columns {
		if col == pk || slices.Contains(fields, col) {
			out = append(out, col)
		}
	}
	return out
}
