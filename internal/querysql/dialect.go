package querysql

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	// Name is the engine name: "sqlite", "postgres" or "mysql".
	Name string

	// Placeholder is the bind parameter format.
	Placeholder sq.PlaceholderFormat

	quote string
}

var (
	SQLite   = Dialect{Name: "sqlite", Placeholder: sq.Question, quote: `"`}
	Postgres = Dialect{Name: "postgres", Placeholder: sq.Dollar, quote: `"`}
	MySQL    = Dialect{Name: "mysql", Placeholder: sq.Question, quote: "`"}
)

// DialectFor returns the dialect for an engine name.
func DialectFor(engine string) (Dialect, error) {
	switch strings.ToLower(engine) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database engine %q", engine)
	}
}

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	q := d.quote
	if q == "" {
		q = `"`
	}
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// Column returns a qualified, quoted column reference.
func (d Dialect) Column(alias, column string) string {
	return d.Quote(alias) + "." + d.Quote(column)
}

// Table returns "table AS alias", quoted.
func (d Dialect) Table(table, alias string) string {
	return d.Quote(table) + " AS " + d.Quote(alias)
}

// Builder returns a statement builder using the dialect placeholders.
func (d Dialect) Builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder)
}
