// Package querysql compiles JSON:API read queries into parameterized SQL.
//
// CRITICAL: All values are parameterized (never interpolated).
// CRITICAL: Every primary query has a deterministic ORDER BY ending in the
// root primary key.
package querysql

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/jsonapi/internal/model"
	"github.com/roach88/jsonapi/internal/queryir"
)

// TotalColumn is the alias of the window count column added when a total is requested.
const TotalColumn = "__total"

// Compiler compiles read queries against a model for one SQL dialect.
// A Compiler holds no per-query state and is safe for concurrent use.
type Compiler struct {
	models  model.Provider
	dialect Dialect
}

// NewCompiler creates a Compiler.
func NewCompiler(models model.Provider, dialect Dialect) *Compiler {
	return &Compiler{models: models, dialect: dialect}
}

// Dialect returns the compiler dialect.
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

// Models returns the model provider.
func (c *Compiler) Models() model.Provider {
	return c.models
}

// Statement is a primary SELECT under construction. Callers may add joins
// (through Plan) and columns before calling Build; joins are rendered last.
type Statement struct {
	Plan    *JoinPlan
	Columns []string
	Where   []sq.Sqlizer
	OrderBy []string
	Offset  int
	Limit   int

	// WithTotal adds COUNT(*) OVER () as the last column.
	WithTotal bool
}

// Prepare compiles the filter, constraints, sort, projection and window of
// a read query into a Statement.
func (c *Compiler) Prepare(q *queryir.ReadQuery) (*Statement, error) {
	res, ok := c.models.Resource(q.Type)
	if !ok {
		return nil, fmt.Errorf("unknown resource type %q", q.Type)
	}

	req := q.Request
	if req == nil {
		req = queryir.NewRequest()
	}

	plan := NewJoinPlan(res.Type, res.Table)
	stmt := &Statement{
		Plan:      plan,
		Offset:    q.Offset,
		Limit:     q.Limit,
		WithTotal: q.WithTotal,
	}

	fields, _ := req.FieldSet(res.Type)
	for _, col := range c.CompileProjection(res.Type, fields) {
		stmt.Columns = append(stmt.Columns, c.dialect.Column(plan.RootAlias(), col))
	}

	if pred := c.CompileFilter(req.Filter, plan); pred != nil {
		stmt.Where = append(stmt.Where, pred)
	}
	for _, con := range q.Constraints {
		if !res.HasColumn(con.Column) {
			return nil, fmt.Errorf("constraint on unknown column %s.%s", res.Type, con.Column)
		}
		stmt.Where = append(stmt.Where, sq.Eq{c.dialect.Column(plan.RootAlias(), con.Column): con.Value})
	}

	stmt.OrderBy = c.CompileSort(req.Sort, plan)
	return stmt, nil
}

// AddColumn appends a select expression and returns its position.
func (s *Statement) AddColumn(expr string) int {
	s.Columns = append(s.Columns, expr)
	return len(s.Columns) - 1
}

// Build renders the statement into a select builder.
func (c *Compiler) Build(s *Statement) sq.SelectBuilder {
	cols := s.Columns
	if s.WithTotal {
		cols = append(cols[:len(cols):len(cols)], "COUNT(*) OVER () AS "+c.dialect.Quote(TotalColumn))
	}

	b := c.dialect.Builder().Select(cols...)
	b = s.Plan.apply(c.dialect, b)
	for _, w := range s.Where {
		b = b.Where(w)
	}
	if len(s.OrderBy) > 0 {
		b = b.OrderBy(s.OrderBy...)
	}
	if s.Limit > 0 {
		b = b.Limit(uint64(s.Limit))
		if s.Offset > 0 {
			b = b.Offset(uint64(s.Offset))
		}
	}
	return b
}

// Compile converts a read query into parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *Compiler) Compile(q *queryir.ReadQuery) (string, []any, error) {
	stmt, err := c.Prepare(q)
	if err != nil {
		return "", nil, err
	}
	return c.Build(stmt).ToSql()
}

// Count builds SELECT COUNT(*) for the filtered, unwindowed statement.
func (c *Compiler) Count(s *Statement) sq.SelectBuilder {
	b := c.dialect.Builder().Select("COUNT(*)")
	b = s.Plan.apply(c.dialect, b)
	for _, w := range s.Where {
		b = b.Where(w)
	}
	return b
}
