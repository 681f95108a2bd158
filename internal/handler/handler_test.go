package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devplatform/modelgraph/internal/blog/blogtest"
	"github.com/devplatform/modelgraph/internal/config"
	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/filter"
	"github.com/devplatform/modelgraph/internal/graphql"
	"github.com/devplatform/modelgraph/internal/introspect"
	"github.com/devplatform/modelgraph/internal/orm"
	"github.com/devplatform/modelgraph/internal/transformer"
	"github.com/devplatform/modelgraph/internal/types"
	"github.com/devplatform/modelgraph/internal/validation"
)

type fixture struct {
	db      *orm.DB
	manager *graphql.Manager
	server  http.Handler
}

func setup(t *testing.T, configure func(*config.Config)) *fixture {
	t.Helper()
	db := blogtest.Open(t)
	logger := blogtest.Logger()

	defs := definition.NewRegistry()
	intro := introspect.New(db, introspect.NewCache(), logger)
	resolver := types.New(db, defs, intro, filter.Default{}, types.Config{}, logger)
	engine := transformer.New(db, defs, resolver, intro, filter.Default{}, validation.New(), logger)
	manager := graphql.NewManager(defs, resolver, engine, db, logger)
	for _, m := range db.Models().Models() {
		require.NoError(t, manager.RegisterDefinition(&definition.Definition{Model: m}))
	}
	manager.RegisterSchema(config.DefaultSchema, config.DefaultSchemaConfig())

	cfg := &config.Config{BatchTransaction: config.BatchPerOperation}
	if configure != nil {
		configure(cfg)
	}
	return &fixture{db: db, manager: manager, server: New(manager, db, cfg, logger).Routes()}
}

func (f *fixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) tags(t *testing.T) int {
	t.Helper()
	q, err := f.db.QueryModel("Tag")
	require.NoError(t, err)
	n, err := q.Count(context.Background())
	require.NoError(t, err)
	return n
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

const createGo = `{"query": "mutation { tag(with: {name: \"go\"}) { id name } }"}`

func TestSingleOperation(t *testing.T) {
	f := setup(t, nil)

	rec := f.post(t, "/graphql", createGo)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, map[string]interface{}{
		"tag": map[string]interface{}{"id": "1", "name": "go"},
	}, body["data"])
	assert.NotContains(t, body, "errors")
	assert.Equal(t, 1, f.tags(t))
}

func TestOperationWithErrorsIsRolledBack(t *testing.T) {
	f := setup(t, nil)

	rec := f.post(t, "/graphql", `{"query": "mutation { a: tag(with: {name: \"go\"}) { id } b: tag(with: {name: \"go\"}) { id } }"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Errors []struct {
			Extensions map[string]interface{} `json:"extensions"`
		} `json:"errors"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "CONFLICT", body.Errors[0].Extensions["code"])
	assert.Equal(t, 0, f.tags(t))
}

func TestBatchPerOperation(t *testing.T) {
	f := setup(t, nil)

	rec := f.post(t, "/graphql", "["+createGo+","+createGo+"]")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]interface{}
	decode(t, rec, &body)
	require.Len(t, body, 2)
	assert.NotContains(t, body[0], "errors")
	assert.Contains(t, body[1], "errors")
	assert.Equal(t, 1, f.tags(t))
}

func TestBatchInOneTransaction(t *testing.T) {
	f := setup(t, func(cfg *config.Config) { cfg.BatchTransaction = config.BatchWhole })

	rec := f.post(t, "/graphql", "["+createGo+","+createGo+"]")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]interface{}
	decode(t, rec, &body)
	require.Len(t, body, 2)
	assert.Contains(t, body[1], "errors")
	assert.Equal(t, 0, f.tags(t))

	rec = f.post(t, "/graphql", `[{"query": "mutation { tag(with: {name: \"go\"}) { id } }"}, {"query": "mutation { tag(with: {name: \"sql\"}) { id } }"}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, f.tags(t))
}

func TestNamedSchemas(t *testing.T) {
	f := setup(t, nil)
	f.manager.RegisterSchema("tags", config.SchemaConfig{Query: []string{"Tag"}})
	blogtest.Create(t, f.db, "Tag", map[string]interface{}{"name": "go"})

	rec := f.post(t, "/graphql/tags", `{"query": "query Tags { tags { name } }", "operationName": "Tags"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data": {"tags": [{"name": "go"}]}, "extensions": {"pagination": {"tags": {"totalCount": 1, "page": 0, "numPages": 1, "hasNextPage": false, "hasPreviousPage": false}}}}`, rec.Body.String())

	rec = f.post(t, "/graphql/tags", `{"query": "{ posts { id } }"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "posts")

	rec = f.post(t, "/graphql/missing", createGo)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown schema")
}

func TestBadRequests(t *testing.T) {
	f := setup(t, nil)

	for _, body := range []string{"", "{", "[]", "[{]"} {
		rec := f.post(t, "/graphql", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}

	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProbes(t *testing.T) {
	f := setup(t, nil)

	for path, status := range map[string]string{"/health": "ok", "/ready": "ready"} {
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		decode(t, rec, &body)
		assert.Equal(t, status, body["status"])
	}
}

func TestResponseOptions(t *testing.T) {
	f := setup(t, func(cfg *config.Config) {
		cfg.PrettyJSON = true
		cfg.ResponseHeaders = map[string]string{"Cache-Control": "no-store"}
		cfg.CORSOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(createGo))
	req.Header.Set(RequestIDHeader, "req-42")
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Body.String(), "\n  \"data\"")

	preflight := httptest.NewRecorder()
	f.server.ServeHTTP(preflight, httptest.NewRequest(http.MethodOptions, "/graphql", nil))
	assert.Equal(t, http.StatusOK, preflight.Code)
	assert.NotEmpty(t, preflight.Header().Get(RequestIDHeader))
}

func TestGraphiQL(t *testing.T) {
	rec := httptest.NewRecorder()
	setup(t, nil).server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	f := setup(t, func(cfg *config.Config) { cfg.GraphiQL = true })

	req := httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape(`mutation { tag(with: {name: "go"}) { id } }`), nil)
	rec = httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "GraphiQL")
	assert.Equal(t, 0, f.tags(t))

	rec = httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(blogtest.Logger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"errors":[{"message":"internal server error"}]}`, rec.Body.String())
}

func TestSDL(t *testing.T) {
	f := setup(t, nil)

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sdl", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "type Tag")

	rec = httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sdl/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthFieldInsideTransaction(t *testing.T) {
	f := setup(t, nil)

	rec := f.post(t, "/graphql", `{"query": "{ health { status database } }"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data": {"health": {"status": "healthy", "database": true}}}`, rec.Body.String())
}
