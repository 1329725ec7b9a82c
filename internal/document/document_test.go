package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jsonapi/internal/blog"
	"github.com/roach88/jsonapi/internal/include"
	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/queryparams"
)

const baseURL = "http://example.com/api"

func newSerializer() *Serializer {
	return NewSerializer(blog.MustRegistry(), baseURL+"/")
}

// plan returns the include plan of paths rooted at typ.
func plan(typ string, paths ...string) *include.Tree {
	return include.Plan(blog.MustRegistry(), typ, paths, include.Options{})
}

func record(typ, id string, attrs map[string]any) *ir.Record {
	r := ir.NewRecord(typ, id)
	for k, v := range attrs {
		r.Attributes[k] = v
	}
	return r
}

func encode(t *testing.T, doc *Document) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, EncodeIndent(&buf, doc))
	return buf.Bytes()
}

func decode(t *testing.T, doc *Document) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(encode(t, doc), &out))
	return out
}

// articleWithComments returns article 1 by Jane with comments by Jane and John.
func articleWithComments() *ir.Record {
	jane := record("users", "1", map[string]any{"name": "Jane Doe"})
	john := record("users", "2", map[string]any{"name": "John Smith"})

	c1 := record("comments", "1", map[string]any{"body": "Great article!"})
	c1.SetToOne("author", jane)
	c2 := record("comments", "2", map[string]any{"body": "Helpful examples."})
	c2.SetToOne("author", john)

	article := record("articles", "1", map[string]any{"title": "JSON:API in Go", "author_id": int64(1)})
	article.SetToOne("author", jane)
	article.AppendToMany("comments", c1)
	article.AppendToMany("comments", c2)
	return article
}

func TestCompoundCollectionGolden(t *testing.T) {
	s := newSerializer()
	req := queryparams.ParseQuery("include=author,comments.author&fields[articles]=title&fields[users]=name")

	data, included := s.Compound([]*ir.Record{articleWithComments()}, req.Fields, plan("articles", req.Include...))

	u, err := url.Parse(baseURL + "/articles?include=author,comments.author")
	require.NoError(t, err)
	p := NewPaginator(req, DefaultPageLimit)
	doc := BuildCollection(data, included, p.Links(u, 1), p.Meta(1))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden.json"),
	)
	g.Assert(t, "compound_collection", encode(t, doc))
}

func TestIncludedIsDeduplicated(t *testing.T) {
	s := newSerializer()
	jane := record("users", "1", map[string]any{"name": "Jane Doe"})

	var comments []*ir.Record
	for _, id := range []string{"1", "3"} {
		c := record("comments", id, nil)
		c.SetToOne("author", jane)
		comments = append(comments, c)
	}
	article := record("articles", "1", nil)
	article.SetToOne("author", jane)
	for _, c := range comments {
		article.AppendToMany("comments", c)
	}
	other := record("articles", "2", nil)
	other.SetToOne("author", jane)

	_, included := s.Compound([]*ir.Record{article, other}, nil, plan("articles", "comments", "comments.author", "author"))

	var got []ir.Identifier
	for _, obj := range included {
		got = append(got, obj.Identifier())
	}
	want := []ir.Identifier{
		{Type: "comments", ID: "1"},
		{Type: "users", ID: "1"},
		{Type: "comments", ID: "3"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("included mismatch (-want +got):\n%s", diff)
	}
}

func TestIncludedNeverRepeatsPrimary(t *testing.T) {
	s := newSerializer()
	jane := record("users", "1", nil)
	john := record("users", "2", nil)

	article := record("articles", "1", nil)
	article.SetToOne("author", john)
	jane.AppendToMany("articles", article)

	_, included := s.Compound([]*ir.Record{jane, john}, nil, plan("users", "articles.author"))

	require.Len(t, included, 1)
	assert.Equal(t, ir.Identifier{Type: "articles", ID: "1"}, included[0].Identifier())
}

func TestResource_RelationshipDataPolicy(t *testing.T) {
	s := newSerializer()

	photo := record("photos", "4", map[string]any{"title": "Untitled Draft"})
	photo.SetToOne("photographer", nil)
	user := record("users", "2", nil)
	user.InitToMany("photos")

	tests := []struct {
		name string
		obj  *ResourceObject
		rel  string
		want string
	}{
		{"loaded empty to-one", s.Resource(photo, nil, nil), "photographer", `null`},
		{"loaded empty to-many", s.Resource(user, nil, nil), "photos", `[]`},
		{"unloaded to-many", s.Resource(user, nil, nil), "articles", `[]`},
		{"unloaded to-one", s.Resource(record("articles", "9", nil), nil, nil), "author", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, ok := tt.obj.Relationships[tt.rel]
			require.True(t, ok)
			b, err := json.Marshal(rel.Data)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestResource_SparseFields(t *testing.T) {
	s := newSerializer()
	user := record("users", "1", map[string]any{
		"name":  "Jane Doe",
		"email": "jane.doe@example.com",
		"bio":   "Tech writer and API enthusiast.",
	})

	obj := s.Resource(user, map[string][]string{"users": {"name", "bio", "articles"}}, nil)

	// round trip: exactly the requested attributes, id always present
	b, err := json.Marshal(obj)
	require.NoError(t, err)
	var parsed struct {
		ID            string         `json:"id"`
		Attributes    map[string]any `json:"attributes"`
		Relationships map[string]any `json:"relationships"`
	}
	require.NoError(t, json.Unmarshal(b, &parsed))

	assert.Equal(t, "1", parsed.ID)
	assert.Equal(t, map[string]any{"name": "Jane Doe", "bio": "Tech writer and API enthusiast."}, parsed.Attributes)
	assert.Len(t, parsed.Relationships, 1)
	assert.Contains(t, parsed.Relationships, "articles")
}

func TestResource_IncludeForcesRelationship(t *testing.T) {
	s := newSerializer()
	fields := map[string][]string{"articles": {"title"}}

	obj := s.Resource(articleWithComments(), fields, []string{"comments"})

	assert.Contains(t, obj.Relationships, "comments")
	assert.NotContains(t, obj.Relationships, "author")
	assert.Equal(t, map[string]any{"title": "JSON:API in Go"}, obj.Attributes)
}

func TestCompound_DiscardedPathForcesNothing(t *testing.T) {
	s := newSerializer()
	article := record("articles", "1", map[string]any{"title": "JSON:API in Go"})
	fields := map[string][]string{"articles": {"title"}}

	data, included := s.Compound([]*ir.Record{article}, fields, plan("articles", "comments.bogus"))
	assert.Empty(t, data[0].Relationships)
	assert.Empty(t, included)

	data, _ = s.Compound([]*ir.Record{article}, fields, nil)
	assert.Empty(t, data[0].Relationships)
}

func TestResource_OmitsEmptyMembers(t *testing.T) {
	s := newSerializer()

	obj := s.Resource(record("users", "1", map[string]any{"name": "Jane"}), map[string][]string{"users": {"email"}}, nil)

	b, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"users","id":"1","links":{"self":"http://example.com/api/users/1"}}`, string(b))
}

func TestBuildLinkage(t *testing.T) {
	s := newSerializer()
	article := articleWithComments()

	rel, ok := s.Relationship(article, "comments")
	require.True(t, ok)
	doc := decode(t, BuildLinkage(rel, nil))
	assert.Equal(t, []any{
		map[string]any{"type": "comments", "id": "1"},
		map[string]any{"type": "comments", "id": "2"},
	}, doc["data"])
	assert.Equal(t, map[string]any{
		"self":    "http://example.com/api/articles/1/relationships/comments",
		"related": "http://example.com/api/articles/1/comments",
	}, doc["links"])

	empty := record("photos", "4", nil)
	rel, ok = s.Relationship(empty, "photographer")
	require.True(t, ok)
	doc = decode(t, BuildLinkage(rel, nil))
	assert.Contains(t, doc, "data")
	assert.Nil(t, doc["data"])

	_, ok = s.Relationship(article, "editors")
	assert.False(t, ok)
}

func TestBuilders(t *testing.T) {
	tests := []struct {
		name string
		doc  *Document
		want string
	}{
		{"null", BuildNull(Links{"self": "/comments/1/author"}), `{"data":null,"links":{"self":"/comments/1/author"}}`},
		{"empty collection", BuildCollection(nil, nil, nil, nil), `{"data":[]}`},
		{"meta", BuildMeta(Meta{"deleted": true}), `{"meta":{"deleted":true}}`},
		{"errors", BuildError(&ErrorObject{Status: "404"}), `{"errors":[{"status":"404"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.want, string(encode(t, tt.doc)))
		})
	}
}

func TestEncodeKeepsAmpersands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, BuildMeta(Meta{"next": "/articles?a=1&b=2"})))
	assert.Equal(t, "{\"meta\":{\"next\":\"/articles?a=1&b=2\"}}\n", buf.String())
}

func TestNewErrorObject(t *testing.T) {
	_, err := NewErrorObject(ErrorObject{})
	require.Error(t, err)
	assert.True(t, ir.IsValidation(err))

	obj, err := NewErrorObject(ErrorObject{Title: "Bad"})
	require.NoError(t, err)
	assert.Equal(t, "Bad", obj.Title)
}

func TestErrorFromErr(t *testing.T) {
	obj := ErrorFromErr(ir.NewValidationError("/data/attributes/age", "age must be a number"))
	assert.Equal(t, "400", obj.Status)
	assert.Equal(t, "VALIDATION", obj.Code)
	assert.Equal(t, "Bad Request", obj.Title)
	assert.Equal(t, "/data/attributes/age", obj.Source.Pointer)
	assert.NotEmpty(t, obj.ID)

	obj = ErrorFromErr(errors.New("connection refused"))
	assert.Equal(t, "500", obj.Status)
	assert.Equal(t, "Internal Server Error", obj.Title)
	assert.Equal(t, InternalErrorDetail, obj.Detail)
	assert.Nil(t, obj.Source)

	obj = ErrorFromErr(fmt.Errorf("list articles: %w", ir.NewInternalError(errors.New("query: no such column: t0.nope"))))
	assert.Equal(t, "INTERNAL", obj.Code)
	assert.Equal(t, InternalErrorDetail, obj.Detail)

	doc, status := ErrorDocument(ir.NewNotFoundError("users", "9"))
	assert.Equal(t, 404, status)
	assert.True(t, doc.IsError())
}

func TestPaginator_Links(t *testing.T) {
	u, err := url.Parse(baseURL + "/articles?sort=title")
	require.NoError(t, err)

	// -1 marks an absent link.
	tests := []struct {
		name                 string
		offset, limit, total int
		prev, next, last     int
	}{
		{"first page", 0, 3, 10, -1, 3, 9},
		{"middle page", 3, 3, 10, 0, 6, 9},
		{"last page", 9, 3, 10, 6, -1, 9},
		{"unaligned offset", 8, 3, 10, 5, -1, 9},
		{"exact multiple", 0, 5, 10, -1, 5, 5},
		{"no records", 0, 3, 0, -1, -1, 0},
	}

	offsetOf := func(t *testing.T, link string) int {
		t.Helper()
		lu, err := url.Parse(link)
		require.NoError(t, err)
		assert.Equal(t, "title", lu.Query().Get("sort"))
		n, err := strconv.Atoi(lu.Query().Get("page[offset]"))
		require.NoError(t, err)
		return n
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginator{Offset: tt.offset, Limit: tt.limit}
			links := p.Links(u, tt.total)

			assert.Equal(t, tt.offset, offsetOf(t, links["self"]))
			assert.Equal(t, 0, offsetOf(t, links["first"]))
			assert.Equal(t, tt.last, offsetOf(t, links["last"]))
			for name, want := range map[string]int{"prev": tt.prev, "next": tt.next} {
				link, ok := links[name]
				if want < 0 {
					assert.False(t, ok, "unexpected %s link %s", name, link)
					continue
				}
				require.True(t, ok, "missing %s link", name)
				assert.Equal(t, want, offsetOf(t, link), name)
			}

			lu, err := url.Parse(links["self"])
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(tt.limit), lu.Query().Get("page[limit]"))
			assert.Equal(t, Meta{"total": tt.total, "limit": tt.limit, "offset": tt.offset}, p.Meta(tt.total))
		})
	}
}

func TestPaginator_Disabled(t *testing.T) {
	u, err := url.Parse(baseURL + "/articles")
	require.NoError(t, err)

	for _, p := range []Paginator{{Offset: -1, Limit: 3}, {Offset: 0, Limit: 0}, {Offset: 0, Limit: -2}} {
		assert.False(t, p.Enabled())
		assert.Nil(t, p.Links(u, 10))
		assert.Nil(t, p.Meta(10))
	}
}

func TestLastOffset(t *testing.T) {
	assert.Equal(t, 9, LastOffset(10, 3))
	assert.Equal(t, 5, LastOffset(10, 5))
	assert.Equal(t, 0, LastOffset(0, 3))
	assert.Equal(t, 0, LastOffset(1, 3))
	assert.Equal(t, 0, LastOffset(10, 0))
}
