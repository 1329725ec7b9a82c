package querysql

import (
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/jsonapi/internal/model"
)

// JoinPlan records the to-one joins materialized while compiling one
// statement, keyed by dotted relationship path from the statement root.
//
// A JoinPlan is created per compilation and never shared across requests.
// Filter, sort and include compilation share the same plan, so a path is
// joined at most once. Correlated subqueries get their own plan whose
// aliases come from the same sequence, keeping every alias unique within
// the final statement.
type JoinPlan struct {
	rootType  string
	rootTable string
	rootAlias string
	joins     []*Join
	byPath    map[string]*Join
	scope     *aliasScope
}

// Join is one materialized LEFT JOIN.
type Join struct {
	Path         string
	Alias        string
	ParentAlias  string
	Table        string
	Relationship model.Relationship
}

// aliasScope is shared by a plan and its subquery plans.
type aliasScope struct {
	next    int
	skipped []string
}

func (s *aliasScope) alias() string {
	a := "t" + strconv.Itoa(s.next)
	s.next++
	return a
}

// NewJoinPlan creates a plan for a statement rooted at the given type and table.
func NewJoinPlan(rootType, rootTable string) *JoinPlan {
	return newJoinPlan(rootType, rootTable, &aliasScope{})
}

func newJoinPlan(rootType, rootTable string, scope *aliasScope) *JoinPlan {
	return &JoinPlan{
		rootType:  rootType,
		rootTable: rootTable,
		rootAlias: scope.alias(),
		byPath:    make(map[string]*Join),
		scope:     scope,
	}
}

// subPlan creates the plan of a correlated subquery.
func (p *JoinPlan) subPlan(rootType, rootTable string) *JoinPlan {
	return newJoinPlan(rootType, rootTable, p.scope)
}

// RootType returns the resource type of the statement root.
func (p *JoinPlan) RootType() string { return p.rootType }

// RootAlias returns the alias of the statement root table.
func (p *JoinPlan) RootAlias() string { return p.rootAlias }

// RootTable returns the statement root table.
func (p *JoinPlan) RootTable() string { return p.rootTable }

// Lookup returns the join materialized for a path.
func (p *JoinPlan) Lookup(path string) (*Join, bool) {
	j, ok := p.byPath[path]
	return j, ok
}

// Joins returns the joins in materialization order.
func (p *JoinPlan) Joins() []*Join {
	return p.joins
}

// Ensure materializes the join for path if it is not already present.
// The call is idempotent: the same path always yields the same alias.
func (p *JoinPlan) Ensure(path, parentAlias, table string, rel model.Relationship) *Join {
	if j, ok := p.byPath[path]; ok {
		return j
	}
	j := &Join{
		Path:         path,
		Alias:        p.scope.alias(),
		ParentAlias:  parentAlias,
		Table:        table,
		Relationship: rel,
	}
	p.joins = append(p.joins, j)
	p.byPath[path] = j
	return j
}

// Skipped lists the filter and sort paths that could not be resolved and
// were compiled as no constraint, including those inside subqueries.
func (p *JoinPlan) Skipped() []string {
	return p.scope.skipped
}

func (p *JoinPlan) skip(format string, args ...any) {
	p.scope.skipped = append(p.scope.skipped, fmt.Sprintf(format, args...))
}

// apply adds FROM and the LEFT JOINs to a select builder.
func (p *JoinPlan) apply(d Dialect, b sq.SelectBuilder) sq.SelectBuilder {
	b = b.From(d.Table(p.rootTable, p.rootAlias))
	for _, j := range p.joins {
		b = b.LeftJoin(fmt.Sprintf("%s ON %s = %s",
			d.Table(j.Table, j.Alias),
			d.Column(j.Alias, j.Relationship.ForeignKey),
			d.Column(j.ParentAlias, j.Relationship.LocalKey)))
	}
	return b
}
