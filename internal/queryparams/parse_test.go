package queryparams

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jsonapi/internal/queryir"
)

func TestParseInclude(t *testing.T) {
	req := ParseQuery("include=author, comments.author,,")
	assert.Equal(t, []string{"author", "comments.author"}, req.Include)
}

func TestParseFields(t *testing.T) {
	req := ParseQuery("fields[articles]=title,body,title&fields[users]=name&fields[]=x")
	assert.Equal(t, map[string][]string{
		"articles": {"title", "body"},
		"users":    {"name"},
	}, req.Fields)
}

func TestParseSort(t *testing.T) {
	req := ParseQuery("sort=-created,title,-,author.name")
	assert.Equal(t, []queryir.SortSpec{
		{Field: "created", Direction: queryir.Desc},
		{Field: "title", Direction: queryir.Asc},
		{Field: "author.name", Direction: queryir.Asc},
	}, req.Sort)
}

func TestParsePage(t *testing.T) {
	req := ParseQuery("page[offset]=20&page[limit]=5&page[cursor]=abc")
	assert.Equal(t, queryir.PageValue{Raw: "20", Int: 20, IsInt: true}, req.Page["offset"])
	assert.Equal(t, 5, req.PageInt("limit", 10))
	assert.Equal(t, queryir.PageValue{Raw: "abc"}, req.Page["cursor"])
}

func TestParseLastValueWins(t *testing.T) {
	req := Parse(url.Values{"sort": {"title", "-id"}})
	assert.Equal(t, []queryir.SortSpec{{Field: "id", Direction: queryir.Desc}}, req.Sort)
}

func TestParseEmpty(t *testing.T) {
	req := Parse(url.Values{})
	assert.Empty(t, req.Include)
	assert.Empty(t, req.Fields)
	assert.Empty(t, req.Sort)
	assert.Empty(t, req.Page)
	assert.Nil(t, req.Filter)
	assert.Nil(t, req.RawFilter)
}

func TestParseFieldFilters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		raw   any
		node  queryir.FilterNode
	}{
		{
			name:  "shorthand equality",
			query: "filter[title]=Hello",
			raw:   map[string]any{"title": "Hello"},
			node:  queryir.Eq("title", "Hello"),
		},
		{
			name:  "explicit operator",
			query: "filter[id][gt]=2",
			raw:   map[string]any{"id": map[string]any{"op": "gt", "val": "2"}},
			node:  &queryir.Comparison{Field: "id", Op: queryir.OpGt, RawOp: "gt", Value: "2"},
		},
		{
			name:  "in splits csv",
			query: "filter[id][in]=1, 2,3",
			raw:   map[string]any{"id": map[string]any{"op": "in", "val": []any{"1", "2", "3"}}},
			node:  &queryir.Comparison{Field: "id", Op: queryir.OpIn, RawOp: "in", Value: []any{"1", "2", "3"}},
		},
		{
			name:  "nin passes json list through",
			query: "filter[id][nin]=" + url.QueryEscape("[1,2]"),
			raw:   map[string]any{"id": map[string]any{"op": "nin", "val": []any{float64(1), float64(2)}}},
			node:  &queryir.Comparison{Field: "id", Op: queryir.OpNotIn, RawOp: "nin", Value: []any{float64(1), float64(2)}},
		},
		{
			name:  "between wraps json scalar",
			query: "filter[id][between]=" + url.QueryEscape(`{"a":1}`),
			raw:   map[string]any{"id": map[string]any{"op": "between", "val": []any{map[string]any{"a": float64(1)}}}},
			node: &queryir.Comparison{Field: "id", Op: queryir.OpBetween, RawOp: "between",
				Value: []any{map[string]any{"a": float64(1)}}},
		},
		{
			name:  "dotted path",
			query: "filter[author.name][ilike]=" + url.QueryEscape("%jane%"),
			raw:   map[string]any{"author.name": map[string]any{"op": "ilike", "val": "%jane%"}},
			node:  &queryir.Comparison{Field: "author.name", Op: queryir.OpILike, RawOp: "ilike", Value: "%jane%"},
		},
		{
			name:  "unmatched filter key kept verbatim",
			query: "filterx=1",
			raw:   map[string]any{"filterx": "1"},
			node:  queryir.Eq("filterx", "1"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ParseQuery(tt.query)
			assert.Equal(t, tt.raw, req.RawFilter)
			assert.Equal(t, tt.node, req.Filter)
		})
	}
}

func TestParseBareFilterJSON(t *testing.T) {
	list := `[{"field":"name","op":"ilike","val":"%j%"},{"or":[{"field":"id","val":1},{"field":"id","val":2}]}]`

	req := Parse(url.Values{"filter": {list}})

	rawList, ok := req.RawFilter.([]any)
	require.True(t, ok)
	assert.Len(t, rawList, 2)

	b, ok := req.Filter.(*queryir.Boolean)
	require.True(t, ok)
	assert.Equal(t, queryir.And, b.Op)
	require.Len(t, b.Children, 2)
	or, ok := b.Children[1].(*queryir.Boolean)
	require.True(t, ok)
	assert.Equal(t, queryir.Or, or.Op)
}

func TestParseBareFilterPercentEncoded(t *testing.T) {
	// the value is still percent-encoded after query decoding
	encoded := url.PathEscape(`{"title":"Hello"}`)
	req := Parse(url.Values{"filter": {encoded}})

	assert.Equal(t, map[string]any{"title": "Hello"}, req.RawFilter)
	assert.Equal(t, queryir.Eq("title", "Hello"), req.Filter)
}

func TestParseBareFilterPlainString(t *testing.T) {
	req := Parse(url.Values{"filter": {"hello"}})
	assert.Equal(t, map[string]any{"value": "hello"}, req.RawFilter)
	assert.Equal(t, queryir.Eq("value", "hello"), req.Filter)

	req = Parse(url.Values{"filter": {"[not json"}})
	assert.Equal(t, map[string]any{"value": "[not json"}, req.RawFilter)
}

func TestParseBareAndFieldFiltersCombine(t *testing.T) {
	req := Parse(url.Values{
		"filter":        {`{"name":"Jane"}`},
		"filter[email]": {"jane@example.com"},
	})

	b, ok := req.Filter.(*queryir.Boolean)
	require.True(t, ok)
	assert.Equal(t, queryir.And, b.Op)
	assert.Equal(t, []queryir.FilterNode{
		queryir.Eq("name", "Jane"),
		queryir.Eq("email", "jane@example.com"),
	}, b.Children)
}

func TestParseCanonicalizesNames(t *testing.T) {
	req := Parse(url.Values{"include": {"café"}, "sort": {"-café"}})
	assert.Equal(t, []string{"café"}, req.Include)
	assert.Equal(t, "café", req.Sort[0].Field)
}
