package querysql

import (
	"math"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/model"
	"github.com/roach88/jsonapi/internal/queryir"
)

// CompileFilter compiles a filter tree rooted at the plan's root type into
// a predicate. Returns nil when the tree imposes no constraint.
//
// Path resolution:
//   - a single segment resolves to a column of the current type
//   - a to-one hop is LEFT JOINed once per dotted path (via the JoinPlan)
//   - a to-many hop becomes EXISTS (SELECT 1 ...) correlated on the join
//     keys; the rest of the path resolves inside the subquery by the same
//     rules, so every to-many boundary on a long path nests another EXISTS
//
// Unresolvable paths compile to no constraint. CompileFilter never fails.
func (c *Compiler) CompileFilter(node queryir.FilterNode, plan *JoinPlan) sq.Sqlizer {
	return c.compileNode(node, plan)
}

func (c *Compiler) compileNode(node queryir.FilterNode, plan *JoinPlan) sq.Sqlizer {
	switch n := node.(type) {
	case *queryir.Comparison:
		return c.compileComparison(n, plan)
	case *queryir.Boolean:
		return c.compileBoolean(n, plan)
	default:
		return nil
	}
}

// compileBoolean omits children without a constraint. A group left with a
// single child is returned unwrapped; an empty group is no constraint.
func (c *Compiler) compileBoolean(b *queryir.Boolean, plan *JoinPlan) sq.Sqlizer {
	var parts []sq.Sqlizer
	for _, child := range b.Children {
		if pred := c.compileNode(child, plan); pred != nil {
			parts = append(parts, pred)
		}
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	if b.Op == queryir.Or {
		return sq.Or(parts)
	}
	return sq.And(parts)
}

func (c *Compiler) compileComparison(cmp *queryir.Comparison, plan *JoinPlan) sq.Sqlizer {
	segments := ir.SplitPath(cmp.Field)
	if len(segments) == 0 {
		return nil
	}
	if !c.pathResolves(plan.rootType, segments, true) {
		plan.skip("filter %s", cmp.Field)
		return nil
	}
	return c.resolve(plan.rootType, plan.rootAlias, "", segments, cmp, plan)
}

// pathResolves checks a path against the model without touching the plan,
// so an unresolvable path leaves no joins behind.
func (c *Compiler) pathResolves(typ string, segments []string, allowToMany bool) bool {
	for i, seg := range segments {
		res, ok := c.models.Resource(typ)
		if !ok {
			return false
		}
		if i == len(segments)-1 {
			return res.HasColumn(seg)
		}
		rel, ok := res.Relationship(seg)
		if !ok || (rel.ToMany && !allowToMany) {
			return false
		}
		typ = rel.Target
	}
	return false
}

// resolve walks the remaining path segments from typ (bound to alias) and
// returns the predicate, or nil when the path does not resolve.
func (c *Compiler) resolve(typ, alias, prefix string, segments []string, cmp *queryir.Comparison, plan *JoinPlan) sq.Sqlizer {
	res, ok := c.models.Resource(typ)
	if !ok {
		return nil
	}

	head := segments[0]
	if len(segments) == 1 {
		if !res.HasColumn(head) {
			return nil
		}
		return c.predicate(c.dialect.Column(alias, head), cmp)
	}

	rel, ok := res.Relationship(head)
	if !ok {
		return nil
	}
	target, ok := c.models.Resource(rel.Target)
	if !ok {
		return nil
	}

	if !rel.ToMany {
		j := plan.Ensure(joinPath(prefix, head), alias, target.Table, rel)
		return c.resolve(rel.Target, j.Alias, j.Path, segments[1:], cmp, plan)
	}
	return c.exists(alias, rel, target, segments[1:], cmp, plan)
}

// exists builds the correlated subquery for a to-many hop.
func (c *Compiler) exists(parentAlias string, rel model.Relationship, target *model.Resource, rest []string, cmp *queryir.Comparison, plan *JoinPlan) sq.Sqlizer {
	sub := plan.subPlan(target.Type, target.Table)
	inner := c.resolve(target.Type, sub.rootAlias, "", rest, cmp, sub)
	if inner == nil {
		return nil
	}

	correlation := c.dialect.Column(sub.rootAlias, rel.ForeignKey) + " = " + c.dialect.Column(parentAlias, rel.LocalKey)
	query := sub.apply(c.dialect, sq.Select("1")).
		Where(correlation).
		Where(inner)
	return sq.Expr("EXISTS (?)", query)
}

// predicate applies the operator table to a quoted column.
// An operator that cannot be applied to the value falls back to equality.
func (c *Compiler) predicate(col string, cmp *queryir.Comparison) sq.Sqlizer {
	if _, isMap := cmp.Value.(map[string]any); isMap {
		return nil
	}
	value := bindValue(cmp.Value)

	if pred := c.operator(col, cmp.Op, value); pred != nil {
		return pred
	}
	return sq.Eq{col: value}
}

func (c *Compiler) operator(col string, op queryir.Operator, value any) sq.Sqlizer {
	list, isList := value.([]any)

	switch op {
	case queryir.OpEq:
		return sq.Eq{col: value}
	case queryir.OpNe:
		return sq.NotEq{col: value}
	case queryir.OpGt, queryir.OpGte, queryir.OpLt, queryir.OpLte:
		if isList || value == nil {
			return nil
		}
		switch op {
		case queryir.OpGt:
			return sq.Gt{col: value}
		case queryir.OpGte:
			return sq.GtOrEq{col: value}
		case queryir.OpLt:
			return sq.Lt{col: value}
		default:
			return sq.LtOrEq{col: value}
		}
	case queryir.OpLike, queryir.OpILike:
		if isList || value == nil {
			return nil
		}
		return sq.Expr("LOWER("+col+") LIKE LOWER(?)", value)
	case queryir.OpIn:
		if !isList {
			list = []any{value}
		}
		return sq.Eq{col: list}
	case queryir.OpNotIn:
		if !isList {
			list = []any{value}
		}
		return sq.NotEq{col: list}
	case queryir.OpIsNull:
		return sq.Eq{col: nil}
	case queryir.OpIsNotNull:
		return sq.NotEq{col: nil}
	case queryir.OpBetween:
		if !isList || len(list) != 2 {
			return nil
		}
		return sq.Expr(col+" BETWEEN ? AND ?", list[0], list[1])
	}
	return nil
}

// bindValue converts decoded JSON values into driver-friendly arguments:
// integral float64 numbers become int64, recursively inside lists.
func bindValue(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = bindValue(item)
		}
		return out
	default:
		return v
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
