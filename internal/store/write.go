package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/model"
	"github.com/roach88/jsonapi/internal/queryir"
	"github.com/roach88/jsonapi/internal/querysql"
)

// assignment is one column write of a mutation.
type assignment struct {
	column string
	value  any
}

// Create inserts a new resource and returns it reloaded from the database.
//
// A client-generated m.ID is written to the primary key; otherwise the
// database assigns one.
func (s *Store) Create(ctx context.Context, m *ir.Mutation) (*ir.Record, error) {
	res, ok := s.models.Resource(m.Type)
	if !ok {
		return nil, fmt.Errorf("create: unknown resource type %q", m.Type)
	}

	sets, err := assignments(res, m)
	if err != nil {
		return nil, err
	}
	if m.ID != "" {
		sets = append([]assignment{{column: res.PrimaryKey, value: ir.BindID(m.ID)}}, sets...)
	}

	id, err := s.insert(ctx, res, sets)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", m.Type, err)
	}
	if m.ID != "" {
		id = m.ID
	}

	return s.Retrieve(ctx, &queryir.ReadQuery{Type: m.Type}, id)
}

// Update writes the attributes and to-one linkage of an existing resource
// and returns it reloaded. Returns NOT_FOUND when m.ID does not exist.
func (s *Store) Update(ctx context.Context, m *ir.Mutation) (*ir.Record, error) {
	res, ok := s.models.Resource(m.Type)
	if !ok {
		return nil, fmt.Errorf("update: unknown resource type %q", m.Type)
	}

	sets, err := assignments(res, m)
	if err != nil {
		return nil, err
	}

	found, err := s.exists(ctx, res, m.ID)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", m.Type, err)
	}
	if !found {
		return nil, ir.NewNotFoundError(m.Type, m.ID)
	}

	if len(sets) > 0 {
		d := s.compiler.Dialect()
		b := d.Builder().Update(d.Quote(res.Table))
		for _, a := range sets {
			b = b.Set(d.Quote(a.column), a.value)
		}
		b = b.Where(sq.Eq{d.Quote(res.PrimaryKey): ir.BindID(m.ID)})

		query, args, err := b.ToSql()
		if err != nil {
			return nil, fmt.Errorf("update %s: build: %w", m.Type, err)
		}
		if _, err := s.exec(ctx, "update", query, args...); err != nil {
			return nil, fmt.Errorf("update %s: %w", m.Type, constraintError(err))
		}
	}

	return s.Retrieve(ctx, &queryir.ReadQuery{Type: m.Type}, m.ID)
}

// Delete removes a resource. Returns NOT_FOUND when id does not exist.
func (s *Store) Delete(ctx context.Context, typ, id string) error {
	res, ok := s.models.Resource(typ)
	if !ok {
		return fmt.Errorf("delete: unknown resource type %q", typ)
	}

	d := s.compiler.Dialect()
	query, args, err := d.Builder().
		Delete(d.Quote(res.Table)).
		Where(sq.Eq{d.Quote(res.PrimaryKey): ir.BindID(id)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("delete %s: build: %w", typ, err)
	}

	result, err := s.exec(ctx, "delete", query, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", typ, constraintError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: rows affected: %w", typ, err)
	}
	if n == 0 {
		return ir.NewNotFoundError(typ, id)
	}
	return nil
}

// assignments validates a mutation against the resource and returns its
// column writes sorted by column. To-one linkage writes the relationship's
// local key and takes precedence over an attribute of the same column.
func assignments(res *model.Resource, m *ir.Mutation) ([]assignment, error) {
	byColumn := make(map[string]any)

	for name, value := range m.Attributes {
		if name == res.PrimaryKey || !res.HasColumn(name) {
			return nil, ir.NewValidationError("/data/attributes/"+name,
				"%s has no attribute %s", res.Type, name)
		}
		v, ok := scalar(value)
		if !ok {
			return nil, ir.NewValidationError("/data/attributes/"+name,
				"attribute %s must be a string, number, boolean or null", name)
		}
		byColumn[name] = v
	}

	for name, target := range m.ToOne {
		pointer := "/data/relationships/" + name
		rel, ok := res.Relationship(name)
		if !ok {
			return nil, ir.NewValidationError(pointer, "%s has no relationship %s", res.Type, name)
		}
		if rel.ToMany || rel.LocalKey == res.PrimaryKey {
			return nil, ir.NewValidationError(pointer, "relationship %s cannot be written through a resource linkage", name)
		}
		if target == nil {
			byColumn[rel.LocalKey] = nil
			continue
		}
		if target.Type != rel.Target {
			return nil, ir.NewValidationError(pointer+"/data/type",
				"relationship %s expects type %s, got %s", name, rel.Target, target.Type)
		}
		byColumn[rel.LocalKey] = ir.BindID(target.ID)
	}

	columns := make([]string, 0, len(byColumn))
	for col := range byColumn {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	out := make([]assignment, 0, len(columns))
	for _, col := range columns {
		out = append(out, assignment{column: col, value: byColumn[col]})
	}
	return out, nil
}

// scalar converts a decoded JSON attribute into a column value.
func scalar(v any) (any, bool) {
	switch val := v.(type) {
	case nil, string, bool, int, int64:
		return val, true
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val), true
		}
		return val, true
	default:
		return nil, false
	}
}

func (s *Store) insert(ctx context.Context, res *model.Resource, sets []assignment) (string, error) {
	d := s.compiler.Dialect()

	var (
		query string
		args  []any
		err   error
	)
	if len(sets) == 0 {
		query = emptyInsert(d, res.Table)
	} else {
		b := d.Builder().Insert(d.Quote(res.Table))
		cols := make([]string, len(sets))
		vals := make([]any, len(sets))
		for i, a := range sets {
			cols[i], vals[i] = d.Quote(a.column), a.value
		}
		query, args, err = b.Columns(cols...).Values(vals...).ToSql()
		if err != nil {
			return "", fmt.Errorf("build: %w", err)
		}
	}

	if d.Name == querysql.Postgres.Name {
		rows, err := s.query(ctx, "insert", query+" RETURNING "+d.Quote(res.PrimaryKey), args...)
		if err != nil {
			return "", constraintError(err)
		}
		defer rows.Close()

		var id any
		if rows.Next() {
			if err := rows.Scan(&id); err != nil {
				return "", fmt.Errorf("scan id: %w", err)
			}
		}
		if err := rows.Err(); err != nil {
			return "", constraintError(err)
		}
		return ir.FormatID(ir.NormalizeValue(id)), nil
	}

	result, err := s.exec(ctx, "insert", query, args...)
	if err != nil {
		return "", constraintError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("last insert id: %w", err)
	}
	return ir.FormatID(id), nil
}

func emptyInsert(d querysql.Dialect, table string) string {
	if d.Name == querysql.MySQL.Name {
		return "INSERT INTO " + d.Quote(table) + " () VALUES ()"
	}
	return "INSERT INTO " + d.Quote(table) + " DEFAULT VALUES"
}

func (s *Store) exists(ctx context.Context, res *model.Resource, id string) (bool, error) {
	d := s.compiler.Dialect()
	rows, err := s.fetch(ctx, "exists", d.Builder().
		Select("1").
		From(d.Quote(res.Table)).
		Where(sq.Eq{d.Quote(res.PrimaryKey): ir.BindID(id)}).
		Limit(1))
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// mysqlConstraintErrors are the server error numbers for duplicate keys and
// foreign key violations.
var mysqlConstraintErrors = []uint16{1062, 1216, 1217, 1451, 1452}

// constraintError maps driver constraint violations onto CONFLICT errors.
func constraintError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return ir.NewConflictError(err)
	}

	var pgErr *pgconn.PgError
	// class 23: integrity constraint violation
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		return ir.NewConflictError(err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && slices.Contains(mysqlConstraintErrors, myErr.Number) {
		return ir.NewConflictError(err)
	}
	return err
}
