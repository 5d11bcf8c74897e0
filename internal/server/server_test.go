package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kvsearch"
	"github.com/hupe1980/kvsearch/catalog"
	"github.com/hupe1980/kvsearch/mapping"
	"github.com/hupe1980/kvsearch/partition"
	"github.com/hupe1980/kvsearch/schema"
)

func newServer(t *testing.T, optFns ...func(o *Options)) *Server {
	t.Helper()
	s, err := schema.NewBuilder().
		Field("name", mapping.String().Sorted(true)).
		Field("age", mapping.Integer().Sorted(true)).
		Field("bio", mapping.Text()).
		Build("users")
	require.NoError(t, err)
	tbl, err := kvsearch.New(partition.Layout{PartitionKey: []string{"id"}}, s, kvsearch.WithShards(3), kvsearch.WithReplication(2))
	require.NoError(t, err)

	srv := New(optFns...)
	srv.Register(tbl)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, gojson.Unmarshal(w.Body.Bytes(), v))
}

const rows = `[
	{"id": "u1", "name": "alice", "age": 29, "bio": "writes go"},
	{"id": "u2", "name": "bob", "age": 41, "bio": "rust"},
	{"id": "u3", "name": "carol", "age": 35, "bio": "go and rust"},
	{"id": "u4", "name": "dave", "age": 52, "bio": "databases"}
]`

func TestHealthAndTables(t *testing.T) {
	srv := newServer(t)

	w := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = do(t, srv, http.MethodGet, "/v1/tables", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tables":["users"]}`, w.Body.String())

	w = do(t, srv, http.MethodPost, "/v1/tables/missing/search", "{}")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpsertAndSearch(t *testing.T) {
	srv := newServer(t)

	w := do(t, srv, http.MethodPut, "/v1/tables/users/rows", rows)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"indexed":4}`, w.Body.String())

	w = do(t, srv, http.MethodPut, "/v1/tables/users/rows", `{"id": "u5", "name": "erin", "age": 30, "bio": "go"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := `{
		"filter": {"type": "range", "field": "age", "lower": 30, "include_lower": true},
		"sort": [{"field": "age", "reverse": true}],
		"limit": 2
	}`
	w = do(t, srv, http.MethodPost, "/v1/tables/users/search", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page searchResponse
	decode(t, w, &page)
	require.Len(t, page.Hits, 2)
	assert.NotEmpty(t, page.Token)
	assert.Equal(t, w.Header().Get(RequestIDHeader), page.RequestID)

	var next map[string]any
	require.NoError(t, gojson.Unmarshal([]byte(body), &next))
	next["token"] = page.Token
	nextBody, err := gojson.Marshal(next)
	require.NoError(t, err)
	w = do(t, srv, http.MethodPost, "/v1/tables/users/search", string(nextBody))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rest searchResponse
	decode(t, w, &rest)
	assert.Len(t, rest.Hits, 2)
	assert.Empty(t, rest.Token)
}

func TestSearchErrors(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"filter":`, http.StatusBadRequest},
		{"unknown field", `{"filter": {"type": "match", "field": "email", "value": "x"}}`, http.StatusBadRequest},
		{"unsorted field", `{"sort": [{"field": "bio"}]}`, http.StatusBadRequest},
		{"bad token", `{"token": "nope"}`, http.StatusBadRequest},
		{"negative limit", `{"limit": -1}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/v1/tables/users/search", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestDeleteRow(t *testing.T) {
	srv := newServer(t)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPut, "/v1/tables/users/rows", rows).Code)

	w := do(t, srv, http.MethodDelete, "/v1/tables/users/rows", `{"id": "u2"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, srv, http.MethodDelete, "/v1/tables/users/rows", `{"id": "u2"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, srv, http.MethodDelete, "/v1/tables/users/rows", `{"name": "x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tbl, ok := srv.Table("users")
	require.True(t, ok)
	n, err := tbl.Query().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpsertCoercionError(t *testing.T) {
	srv := newServer(t)
	w := do(t, srv, http.MethodPut, "/v1/tables/users/rows", `{"id": "u1", "age": "old"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExplain(t *testing.T) {
	srv := newServer(t)
	w := do(t, srv, http.MethodPost, "/v1/tables/users/explain", `{"query": {"type": "match", "field": "bio", "value": "go"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "scored: true")
}

func TestCreateTable(t *testing.T) {
	cat := catalog.New(catalog.NewMemoryStore())
	srv := newServer(t, func(o *Options) { o.Catalog = cat })

	d := map[string]any{
		"name":        "events",
		"layout":      map[string]any{"partition_key": []string{"id"}},
		"schema":      map[string]any{"fields": map[string]any{"kind": map[string]any{"type": "string"}}},
		"shards":      2,
		"replication": 1,
	}
	body, err := gojson.Marshal(d)
	require.NoError(t, err)

	w := do(t, srv, http.MethodPost, "/v1/tables", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, []string{"events", "users"}, srv.Names())

	w = do(t, srv, http.MethodPost, "/v1/tables", string(body))
	assert.Equal(t, http.StatusConflict, w.Code)

	names, err := cat.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"events"}, names)
}

func TestCreateTableWithoutCatalog(t *testing.T) {
	srv := newServer(t)
	w := do(t, srv, http.MethodPost, "/v1/tables", `{}`)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestMetricsAndRequestID(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "kvsearch_extra_total", Help: "extra"}))
	srv := newServer(t, func(o *Options) { o.Gatherer = reg })

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kvsearch_extra_total")
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	srv := newServer(t, func(o *Options) {
		o.RequestsPerSec = 0.001
		o.Burst = 1
	})
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodGet, "/healthz", "").Code)
}

func TestBodyLimit(t *testing.T) {
	srv := newServer(t, func(o *Options) { o.MaxBodyBytes = 16 })
	w := do(t, srv, http.MethodPut, "/v1/tables/users/rows", string(bytes.Repeat([]byte(" "), 64))+rows)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
