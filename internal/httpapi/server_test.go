package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/jsonapi/internal/blog"
	"github.com/roach88/jsonapi/internal/document"
	"github.com/roach88/jsonapi/internal/model"
	"github.com/roach88/jsonapi/internal/pipeline"
	"github.com/roach88/jsonapi/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const baseURL = "http://example.com/api"

func newHandler(t *testing.T, popts []pipeline.Option, opts ...Option) http.Handler {
	t.Helper()
	models := blog.MustRegistry()
	p := pipeline.New(models, testutil.BlogStore(t), document.NewSerializer(models, baseURL), popts...)
	opts = append([]Option{WithIDGenerator(testutil.NewFixedIDGenerator(""))}, opts...)
	return New(p, opts...).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", document.MediaType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func firstError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	errs, ok := decode(t, rec)["errors"].([]any)
	require.True(t, ok, rec.Body.String())
	require.NotEmpty(t, errs)
	return errs[0].(map[string]any)
}

func TestList(t *testing.T) {
	h := newHandler(t, nil)

	rec := do(t, h, http.MethodGet, "/api/articles?include=author", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, document.MediaType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "test-request", rec.Header().Get(RequestIDHeader))

	doc := decode(t, rec)
	assert.Len(t, doc["data"], 4)
	assert.Len(t, doc["included"], 4)
	self := doc["links"].(map[string]any)["self"].(string)
	assert.True(t, strings.HasPrefix(self, baseURL+"/articles?"), self)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHandler(t, nil)

	rec := do(t, h, http.MethodGet, "/api/users/1", "", map[string]string{RequestIDHeader: "abc-123"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRetrieve_NotFound(t *testing.T) {
	h := newHandler(t, nil)

	rec := do(t, h, http.MethodGet, "/api/articles/99", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, document.MediaType, rec.Header().Get("Content-Type"))

	e := firstError(t, rec)
	assert.Equal(t, "404", e["status"])
	assert.Equal(t, "Not Found", e["title"])
}

const createArticle = `{"data":{"type":"articles","attributes":{"title":"Over HTTP","body":"Routed."},"relationships":{"author":{"data":{"type":"users","id":"3"}},"comments":{"data":[]}}}}`

func TestCreate(t *testing.T) {
	h := newHandler(t, nil)

	rec := do(t, h, http.MethodPost, "/api/articles", createArticle, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, baseURL+"/articles/5", rec.Header().Get("Location"))

	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "5", data["id"])
	assert.Equal(t, float64(3), data["attributes"].(map[string]any)["author_id"])
}

func TestContentNegotiation(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		target  string
		body    string
		headers map[string]string
		want    int
	}{
		{"plain json body", http.MethodPost, "/api/articles", createArticle, map[string]string{"Content-Type": "application/json"}, http.StatusUnsupportedMediaType},
		{"missing content type", http.MethodPost, "/api/articles", createArticle, map[string]string{"Content-Type": ""}, http.StatusUnsupportedMediaType},
		{"charset parameter", http.MethodPost, "/api/articles", createArticle, map[string]string{"Content-Type": document.MediaType + "; charset=utf-8"}, http.StatusUnsupportedMediaType},
		{"ext parameter", http.MethodPost, "/api/articles", createArticle, map[string]string{"Content-Type": document.MediaType + `; ext="https://jsonapi.org/ext/atomic"`}, http.StatusCreated},
		{"profile parameter", http.MethodPost, "/api/articles", createArticle, map[string]string{"Content-Type": document.MediaType + `; profile="https://example.com/p"`}, http.StatusCreated},
		{"patch plain json", http.MethodPatch, "/api/articles/1", `{"data":{"type":"articles"}}`, map[string]string{"Content-Type": "application/json"}, http.StatusUnsupportedMediaType},
		{"html accept", http.MethodGet, "/api/articles", "", map[string]string{"Accept": "text/html"}, http.StatusNotAcceptable},
		{"wildcard accept", http.MethodGet, "/api/articles", "", map[string]string{"Accept": "*/*"}, http.StatusOK},
		{"jsonapi accept", http.MethodGet, "/api/articles", "", map[string]string{"Accept": document.MediaType}, http.StatusOK},
		{"no accept", http.MethodGet, "/api/articles", "", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(t, nil)
			rec := do(t, h, tt.method, tt.target, tt.body, tt.headers)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, document.MediaType, rec.Header().Get("Content-Type"))
		})
	}
}

func TestMalformedBody(t *testing.T) {
	h := newHandler(t, nil)

	rec := do(t, h, http.MethodPost, "/api/articles", `{"data":`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", firstError(t, rec)["code"])

	rec = do(t, h, http.MethodPost, "/api/articles", `{"data":{"type":"articles","attributes":{"rating":5}}}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := firstError(t, rec)
	assert.Equal(t, map[string]any{"pointer": "/data/attributes/rating"}, e["source"])
}

func TestBodyTooLarge(t *testing.T) {
	h := newHandler(t, nil)

	body := `{"data":{"type":"articles","attributes":{"title":"` + strings.Repeat("a", maxBodyBytes) + `"}}}`
	rec := do(t, h, http.MethodPost, "/api/articles", body, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	e := firstError(t, rec)
	assert.Equal(t, "REQUEST_TOO_LARGE", e["code"])
	assert.Equal(t, "request body exceeds the limit of 1048576 bytes", e["detail"])
}

func TestUpdateAndLinkage(t *testing.T) {
	h := newHandler(t, nil)

	rec := do(t, h, http.MethodPatch, "/api/photos/1",
		`{"data":{"type":"photos","id":"1","attributes":{"title":"Hamster"},"relationships":{"photographer":{"data":null}}}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Hamster", decode(t, rec)["data"].(map[string]any)["attributes"].(map[string]any)["title"])

	rec = do(t, h, http.MethodGet, "/api/photos/1/relationships/photographer", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode(t, rec)
	assert.Contains(t, doc, "data")
	assert.Nil(t, doc["data"])
}

func TestDestroy(t *testing.T) {
	h := newHandler(t, nil)

	rec := do(t, h, http.MethodDelete, "/api/photos/2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"meta":{"deleted":true}}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/photos/2", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDestroy_Conflict(t *testing.T) {
	h := newHandler(t, nil)

	rec := do(t, h, http.MethodDelete, "/api/users/1", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "CONFLICT", firstError(t, rec)["code"])
}

func TestRelatedRoutes(t *testing.T) {
	h := newHandler(t, nil)

	rec := do(t, h, http.MethodGet, "/api/articles/1/comments?page[limit]=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode(t, rec)
	assert.Len(t, doc["data"], 1)
	assert.Equal(t, float64(2), doc["meta"].(map[string]any)["total"])
	next := doc["links"].(map[string]any)["next"].(string)
	assert.True(t, strings.HasPrefix(next, baseURL+"/articles/1/comments?"), next)

	rec = do(t, h, http.MethodGet, "/api/articles/1/relationships/comments", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 2)

	rec = do(t, h, http.MethodGet, "/api/articles/1/editors", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UNKNOWN_RELATIONSHIP", firstError(t, rec)["code"])
}

func TestPanicRecovery(t *testing.T) {
	h := newHandler(t, []pipeline.Option{pipeline.WithHooks("users", pipeline.Hooks{
		List: pipeline.Stage{Before: func(context.Context, *pipeline.Call) (*document.Document, error) {
			panic("boom")
		}},
	})})

	rec := do(t, h, http.MethodGet, "/api/users", "", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	e := firstError(t, rec)
	assert.Equal(t, "500", e["status"])
	assert.Equal(t, "Internal Server Error", e["title"])
	assert.Equal(t, document.InternalErrorDetail, e["detail"])
}

func TestMethodNotAllowed(t *testing.T) {
	models := model.MustNewRegistry(model.Resource{
		Type:    "tags",
		Columns: []string{"id", "label"},
		Actions: []string{"list"},
	})
	p := pipeline.New(models, nil, document.NewSerializer(models, baseURL))
	h := New(p).Handler()

	rec := do(t, h, http.MethodDelete, "/api/tags/1", "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", firstError(t, rec)["code"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestOperationalEndpoints(t *testing.T) {
	h := newHandler(t, nil)

	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	do(t, h, http.MethodGet, "/api/users", "", nil)
	rec = do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jsonapi_http_requests_total")
	assert.Contains(t, rec.Body.String(), "jsonapi_pipeline_actions_total")
}

func TestCORSPreflight(t *testing.T) {
	h := newHandler(t, nil, WithCORS([]string{"http://app.example.com"}, nil))

	rec := do(t, h, http.MethodOptions, "/api/articles", "", map[string]string{
		"Origin":                        "http://app.example.com",
		"Access-Control-Request-Method": http.MethodPatch,
	})
	assert.Equal(t, "http://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/api/articles", "", map[string]string{"Origin": "http://evil.example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
