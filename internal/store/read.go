package store

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/jsonapi/internal/include"
	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/queryir"
	"github.com/roach88/jsonapi/internal/querysql"
)

// columnSet locates the columns of one resource inside a result row.
type columnSet struct {
	typ     string
	pk      string
	columns []string
	start   int
}

func (c columnSet) value(row []any, column string) any {
	i := slices.Index(c.columns, column)
	if i < 0 {
		return nil
	}
	return row[c.start+i]
}

// parents collects the distinct records a batched hop hangs off.
type parents struct {
	records []*ir.Record
	seen    map[*ir.Record]bool
}

func (p *parents) add(r *ir.Record) {
	if p.seen[r] {
		return
	}
	p.seen[r] = true
	p.records = append(p.records, r)
}

// load is the state of one List call. The identity map makes every
// (type, id) a single *ir.Record however many paths reach it.
type load struct {
	ids     map[ir.Identifier]*ir.Record
	pending map[*include.Node]*parents
}

func newLoad() *load {
	return &load{
		ids:     make(map[ir.Identifier]*ir.Record),
		pending: make(map[*include.Node]*parents),
	}
}

func (l *load) record(set columnSet, row []any) *ir.Record {
	id := ir.FormatID(ir.NormalizeValue(set.value(row, set.pk)))
	key := ir.Identifier{Type: set.typ, ID: id}

	rec, ok := l.ids[key]
	if !ok {
		rec = ir.NewRecord(set.typ, id)
		l.ids[key] = rec
	}
	for i, col := range set.columns {
		if col == set.pk {
			continue
		}
		rec.Attributes[col] = ir.NormalizeValue(row[set.start+i])
	}
	return rec
}

func (l *load) enqueue(n *include.Node, parent *ir.Record) {
	p, ok := l.pending[n]
	if !ok {
		p = &parents{seen: make(map[*ir.Record]bool)}
		l.pending[n] = p
	}
	p.add(parent)
}

// attach links the joined targets found in row to parent and queues
// parent for its batched hops.
func (l *load) attach(parent *ir.Record, nodes []*include.Node, joined map[*include.Node]columnSet, row []any) {
	for _, n := range nodes {
		if n.Strategy == include.Batched {
			l.enqueue(n, parent)
			continue
		}
		set := joined[n]
		if set.value(row, set.pk) == nil {
			parent.SetToOne(n.Name, nil)
			continue
		}
		target := l.record(set, row)
		parent.SetToOne(n.Name, target)
		l.attach(target, n.Children, joined, row)
	}
}

// List loads the records matching q together with their includes.
// Page.Total is -1 unless q.WithTotal is set.
func (s *Store) List(ctx context.Context, q *queryir.ReadQuery) (*ir.Page, error) {
	req := q.Request
	if req == nil {
		req = queryir.NewRequest()
	}

	stmt, err := s.compiler.Prepare(q)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", q.Type, err)
	}
	d := s.compiler.Dialect()
	alias := stmt.Plan.RootAlias()

	tree := include.Plan(s.models, q.Type, req.Include, include.Options{
		Fields:      req.Fields,
		LinkageOnly: q.LinkageOnly,
	})

	fields, _ := req.FieldSet(q.Type)
	root := columnSet{
		typ:     q.Type,
		pk:      s.models.PrimaryKey(q.Type),
		columns: s.compiler.CompileProjection(q.Type, fields),
	}
	for _, key := range tree.RootKeys {
		if !slices.Contains(root.columns, key) {
			root.columns = append(root.columns, key)
			stmt.AddColumn(d.Column(alias, key))
		}
	}
	joined := s.foldJoined(stmt, alias, tree.Roots)

	rows, err := s.fetch(ctx, "list", s.compiler.Build(stmt))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", q.Type, err)
	}

	l := newLoad()
	page := &ir.Page{Records: make([]*ir.Record, 0, len(rows)), Total: -1}
	for _, row := range rows {
		rec := l.record(root, row)
		page.Records = append(page.Records, rec)
		l.attach(rec, tree.Roots, joined, row)
	}

	if err := s.loadBatched(ctx, l, tree); err != nil {
		return nil, fmt.Errorf("list %s: %w", q.Type, err)
	}

	if q.WithTotal {
		switch {
		case len(rows) > 0:
			page.Total = toInt(rows[0][len(rows[0])-1])
		case q.Offset > 0:
			total, err := s.count(ctx, stmt)
			if err != nil {
				return nil, fmt.Errorf("count %s: %w", q.Type, err)
			}
			page.Total = total
		default:
			page.Total = 0
		}
	}

	return page, nil
}

// Retrieve loads one record by primary key. Only the include, fields and
// page parts of q.Request apply; filter and sort are ignored.
// Returns a NOT_FOUND error when no row matches.
func (s *Store) Retrieve(ctx context.Context, q *queryir.ReadQuery, id string) (*ir.Record, error) {
	res, ok := s.models.Resource(q.Type)
	if !ok {
		return nil, fmt.Errorf("retrieve: unknown resource type %q", q.Type)
	}

	one := *q
	one.Request = q.Request.Shape()
	one.Constraints = append(slices.Clone(q.Constraints), queryir.Constraint{
		Column: res.PrimaryKey,
		Value:  ir.BindID(id),
	})
	one.Offset, one.Limit, one.WithTotal = 0, 0, false

	page, err := s.List(ctx, &one)
	if err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, ir.NewNotFoundError(q.Type, id)
	}
	return page.Records[0], nil
}

// foldJoined adds the LEFT JOIN and columns of every joined hop reachable
// from nodes without crossing a batched hop.
func (s *Store) foldJoined(stmt *querysql.Statement, parentAlias string, nodes []*include.Node) map[*include.Node]columnSet {
	d := s.compiler.Dialect()
	out := make(map[*include.Node]columnSet)

	var fold func(parentAlias string, nodes []*include.Node)
	fold = func(parentAlias string, nodes []*include.Node) {
		for _, n := range nodes {
			if n.Strategy != include.Joined {
				continue
			}
			target, _ := s.models.Resource(n.TargetType())
			j := stmt.Plan.Ensure(n.Path, parentAlias, target.Table, n.Relationship)

			set := columnSet{typ: target.Type, pk: target.PrimaryKey, columns: n.Columns, start: len(stmt.Columns)}
			for _, col := range n.Columns {
				stmt.AddColumn(d.Column(j.Alias, col))
			}
			out[n] = set
			fold(j.Alias, n.Children)
		}
	}
	fold(parentAlias, nodes)
	return out
}

// loadBatched runs one IN query per batched hop, parents before children.
func (s *Store) loadBatched(ctx context.Context, l *load, tree *include.Tree) error {
	var batched []*include.Node
	tree.Walk(func(n *include.Node) {
		if n.Strategy == include.Batched {
			batched = append(batched, n)
		}
	})

	for _, n := range batched {
		p, ok := l.pending[n]
		if !ok {
			continue
		}
		if err := s.loadHop(ctx, l, n, p.records); err != nil {
			return fmt.Errorf("include %s: %w", n.Path, err)
		}
	}
	return nil
}

func (s *Store) loadHop(ctx context.Context, l *load, n *include.Node, from []*ir.Record) error {
	rel := n.Relationship
	parentPK := s.models.PrimaryKey(n.ParentType)

	byKey := make(map[string][]*ir.Record)
	var keys []any
	for _, p := range from {
		p.InitToMany(n.Name)
		key := keyValue(p, rel.LocalKey, parentPK)
		if key == nil {
			continue
		}
		k := ir.FormatID(key)
		if _, ok := byKey[k]; !ok {
			keys = append(keys, key)
		}
		byKey[k] = append(byKey[k], p)
	}
	if len(keys) == 0 {
		return nil
	}

	d := s.compiler.Dialect()
	target, _ := s.models.Resource(n.TargetType())
	stmt := &querysql.Statement{Plan: querysql.NewJoinPlan(target.Type, target.Table)}
	alias := stmt.Plan.RootAlias()

	set := columnSet{typ: target.Type, pk: target.PrimaryKey, columns: n.Columns}
	for _, col := range n.Columns {
		stmt.AddColumn(d.Column(alias, col))
	}
	joined := s.foldJoined(stmt, alias, n.Children)
	stmt.Where = []sq.Sqlizer{sq.Eq{d.Column(alias, rel.ForeignKey): keys}}
	stmt.OrderBy = []string{d.Column(alias, target.PrimaryKey) + " ASC"}

	rows, err := s.fetch(ctx, "include", s.compiler.Build(stmt))
	if err != nil {
		return err
	}

	for _, row := range rows {
		rec := l.record(set, row)
		fk := ir.FormatID(ir.NormalizeValue(set.value(row, rel.ForeignKey)))
		for _, p := range byKey[fk] {
			if r, _ := p.Relation(n.Name); !slices.Contains(r.Many, rec) {
				p.AppendToMany(n.Name, rec)
			}
		}
		l.attach(rec, n.Children, joined, row)
	}
	return nil
}

// keyValue returns the value of a key column of a loaded record.
func keyValue(r *ir.Record, column, pk string) any {
	if column == pk {
		return ir.BindID(r.ID)
	}
	return r.Attributes[column]
}

func (s *Store) count(ctx context.Context, stmt *querysql.Statement) (int, error) {
	rows, err := s.fetch(ctx, "count", s.compiler.Count(stmt))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// fetch runs a select and reads every row before releasing the connection.
// SQLite stores hold a single connection, so rows must be closed before the
// next statement is issued.
func (s *Store) fetch(ctx context.Context, operation string, b sq.SelectBuilder) ([][]any, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.query(ctx, operation, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := [][]any{}
	for rows.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	case []byte:
		i, _ := strconv.Atoi(string(n))
		return i
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}
