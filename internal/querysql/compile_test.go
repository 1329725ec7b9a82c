package querysql

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jsonapi/internal/blog"
	"github.com/roach88/jsonapi/internal/queryir"
	"github.com/roach88/jsonapi/internal/queryparams"
)

const articleColumns = `"t0"."id", "t0"."title", "t0"."body", "t0"."author_id"`

func newCompiler(t *testing.T) *Compiler {
	t.Helper()
	return NewCompiler(blog.MustRegistry(), SQLite)
}

func filterSQL(t *testing.T, c *Compiler, rootType string, node queryir.FilterNode) (string, []any, *JoinPlan) {
	t.Helper()
	res, ok := c.Models().Resource(rootType)
	require.True(t, ok)
	plan := NewJoinPlan(res.Type, res.Table)
	pred := c.CompileFilter(node, plan)
	if pred == nil {
		return "", nil, plan
	}
	sql, args, err := pred.ToSql()
	require.NoError(t, err)
	return sql, args, plan
}

func TestCompile_SimpleList(t *testing.T) {
	c := newCompiler(t)

	sql, params, err := c.Compile(&queryir.ReadQuery{Type: "articles"})
	require.NoError(t, err)

	assert.Equal(t, `SELECT `+articleColumns+` FROM "articles" AS "t0" ORDER BY "t0"."id" ASC`, sql)
	assert.Empty(t, params)
}

func TestCompile_UnknownType(t *testing.T) {
	c := newCompiler(t)
	_, _, err := c.Compile(&queryir.ReadQuery{Type: "ghosts"})
	require.Error(t, err)
}

func TestCompile_ToOneFilterJoinsOnce(t *testing.T) {
	c := newCompiler(t)
	req := queryparams.ParseQuery("filter[author.name]=Jane+Doe&sort=-author.name")

	sql, params, err := c.Compile(&queryir.ReadQuery{Type: "articles", Request: req})
	require.NoError(t, err)

	assert.Equal(t, `SELECT `+articleColumns+` FROM "articles" AS "t0"`+
		` LEFT JOIN "users" AS "t1" ON "t1"."id" = "t0"."author_id"`+
		` WHERE "t1"."name" = ?`+
		` ORDER BY "t1"."name" DESC, "t0"."id" ASC`, sql)
	assert.Equal(t, []any{"Jane Doe"}, params)
}

func TestCompile_WindowWithTotal(t *testing.T) {
	c := newCompiler(t)
	req := queryparams.ParseQuery("fields[articles]=title,author")

	sql, _, err := c.Compile(&queryir.ReadQuery{
		Type:      "articles",
		Request:   req,
		Offset:    2,
		Limit:     2,
		WithTotal: true,
	})
	require.NoError(t, err)

	assert.Equal(t, `SELECT "t0"."id", "t0"."title", COUNT(*) OVER () AS "__total"`+
		` FROM "articles" AS "t0" ORDER BY "t0"."id" ASC LIMIT 2 OFFSET 2`, sql)
}

func TestCompile_Constraints(t *testing.T) {
	c := newCompiler(t)

	sql, params, err := c.Compile(&queryir.ReadQuery{
		Type:        "comments",
		Request:     queryparams.ParseQuery("fields[comments]=body"),
		Constraints: []queryir.Constraint{{Column: "article_id", Value: "1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, `SELECT "t0"."id", "t0"."body" FROM "comments" AS "t0"`+
		` WHERE "t0"."article_id" = ? ORDER BY "t0"."id" ASC`, sql)
	assert.Equal(t, []any{"1"}, params)

	_, _, err = c.Compile(&queryir.ReadQuery{
		Type:        "comments",
		Constraints: []queryir.Constraint{{Column: "nope", Value: 1}},
	})
	require.Error(t, err)
}

func TestCompile_PostgresPlaceholders(t *testing.T) {
	c := NewCompiler(blog.MustRegistry(), Postgres)
	req := queryparams.ParseQuery("filter[articles.title]=A&filter[name]=B")

	sql, params, err := c.Compile(&queryir.ReadQuery{Type: "users", Request: req})
	require.NoError(t, err)

	assert.Contains(t, sql, `EXISTS (SELECT 1 FROM "articles" AS "t1" WHERE "t1"."author_id" = "t0"."id" AND "t1"."title" = $1)`)
	assert.Contains(t, sql, `"t0"."name" = $2`)
	assert.Equal(t, []any{"A", "B"}, params)
}

func TestCompile_MySQLQuoting(t *testing.T) {
	c := NewCompiler(blog.MustRegistry(), MySQL)
	sql, _, err := c.Compile(&queryir.ReadQuery{Type: "photos", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `t0`.`id`, `t0`.`title`, `t0`.`src`, `t0`.`photographer_id` FROM `photos` AS `t0` ORDER BY `t0`.`id` ASC LIMIT 1", sql)
}

func TestCompile_Count(t *testing.T) {
	c := newCompiler(t)
	stmt, err := c.Prepare(&queryir.ReadQuery{
		Type:    "articles",
		Request: queryparams.ParseQuery("filter[author.name]=Jane"),
		Limit:   5,
	})
	require.NoError(t, err)

	sql, params, err := c.Count(stmt).ToSql()
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "articles" AS "t0"`+
		` LEFT JOIN "users" AS "t1" ON "t1"."id" = "t0"."author_id" WHERE "t1"."name" = ?`, sql)
	assert.Equal(t, []any{"Jane"}, params)
}

func TestDialectFor(t *testing.T) {
	for engine, want := range map[string]string{
		"sqlite3":    "sqlite",
		"SQLite":     "sqlite",
		"postgresql": "postgres",
		"mysql":      "mysql",
	} {
		d, err := DialectFor(engine)
		require.NoError(t, err)
		assert.Equal(t, want, d.Name)
	}

	_, err := DialectFor("oracle")
	require.Error(t, err)

	assert.Equal(t, `"we""ird"`, SQLite.Quote(`we"ird`))
	assert.Equal(t, "`a`", MySQL.Quote("a"))
	assert.Equal(t, sq.Dollar, Postgres.Placeholder)
}
