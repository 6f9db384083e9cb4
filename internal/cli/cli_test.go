package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/unibase"
	"github.com/hupe1980/unibase/blobstore"
	"github.com/hupe1980/unibase/internal/config"
	"github.com/hupe1980/unibase/metrics/prometheus"
	"github.com/hupe1980/unibase/model"
)

const books = `{"id":"book-1","fields":{"author":"A"},"embeddings":{"embedding":[1,0,0]}}
{"id":"book-2","fields":{"author":"B"},"embeddings":{"embedding":[0,1,0]}}

{"id":"book-3","fields":{"author":"C"},"embeddings":{"embedding":[0,0,1]}}
`

// run executes the root command against a fresh viper instance.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(viper.Reset)
	return filepath.Join(dir, "books")
}

func TestIndexSearchGetDelete(t *testing.T) {
	ws := workspace(t)

	out, err := run(t, books, "index", "-w", ws)
	require.NoError(t, err)
	assert.Equal(t, "inserted=3 replaced=0 rejected=0 num_docs=3\n", out)

	out, err = run(t, `{"embeddings":{"embedding":[0.9,0.1,0]}}`, "search", "-w", ws, "--limit", "2")
	require.NoError(t, err)

	var res model.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"book-1", "book-2"}, res.IDs())

	out, err = run(t, "", "get", "-w", ws, "book-2")
	require.NoError(t, err)
	var doc model.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "B", doc.Fields["author"])

	out, err = run(t, "", "delete", "-w", ws, "book-2", "book-404")
	require.NoError(t, err)
	assert.Equal(t, "deleted=1 not_found=1 rejected=0\n", out)

	_, err = run(t, "", "get", "-w", ws, "book-2")
	assert.ErrorContains(t, err, "book-2")
}

func TestIndexFromFile(t *testing.T) {
	ws := workspace(t)
	file := filepath.Join(t.TempDir(), "books.jsonl")
	require.NoError(t, os.WriteFile(file, []byte(books), 0o644))

	_, err := run(t, "", "index", "-w", ws, "--backend", "hnsw", file)
	require.NoError(t, err)

	out, err := run(t, "", "stats", "-w", ws, "--json")
	require.NoError(t, err)

	var s unibase.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 3, s.NumDocs)
	assert.Equal(t, "hnsw", s.Backend)
	assert.Equal(t, map[string]int{"embedding": 3}, s.Dimensions)
}

func TestUpdate(t *testing.T) {
	ws := workspace(t)

	_, err := run(t, books, "index", "-w", ws)
	require.NoError(t, err)

	out, err := run(t, `{"id":"book-3","fields":{"author":"Z"}}
{"id":"book-9","fields":{"author":"Y"}}`, "update", "-w", ws)
	require.NoError(t, err)
	assert.Equal(t, "updated=1 not_found=1 rejected=0\n", out)

	out, err = run(t, "", "get", "-w", ws, "book-3")
	require.NoError(t, err)
	assert.Contains(t, out, `"author":"Z"`)
}

func TestIndexRejectsEverything(t *testing.T) {
	ws := workspace(t)

	_, err := run(t, books, "index", "-w", ws)
	require.NoError(t, err)

	_, err = run(t, `{"id":"bad","embeddings":{"embedding":[1,2]}}`, "index", "-w", ws)
	assert.ErrorIs(t, err, unibase.ErrSchemaMismatch)
}

func TestSearchInvalidLimit(t *testing.T) {
	ws := workspace(t)

	_, err := run(t, books, "index", "-w", ws)
	require.NoError(t, err)

	_, err = run(t, `{"embeddings":{"embedding":[1,0,0]}}`, "search", "-w", ws, "--limit", "0")
	assert.ErrorIs(t, err, unibase.ErrInvalidLimit)
}

func TestInvalidConfig(t *testing.T) {
	ws := workspace(t)

	_, err := run(t, books, "index", "-w", ws, "--metric", "manhattan")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	workspace(t)
	SetVersionInfo("1.2.3", "abc", "today")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "unibase 1.2.3")
	assert.Contains(t, out, "commit: abc")
	assert.Equal(t, config.DefaultWorkspace, config.Get().Workspace.Path)
}

func newTestServer(t *testing.T) (*httptest.Server, *unibase.Unibase) {
	t.Helper()
	reg := stdprometheus.NewRegistry()
	db, err := unibase.Open(context.Background(), "mem",
		unibase.WithBlobStore(blobstore.NewMemoryStore()),
		unibase.WithMetricsCollector(prometheus.NewCollector(reg)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	srv := httptest.NewServer(newServer(db, reg))
	t.Cleanup(srv.Close)
	return srv, db
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServer(t *testing.T) {
	srv, db := newTestServer(t)

	docs, err := readDocuments(strings.NewReader(books))
	require.NoError(t, err)

	resp := post(t, srv.URL+"/v1/index", documentsRequest{Documents: docs})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ir indexResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ir))
	assert.Equal(t, []string{"book-1", "book-2", "book-3"}, ir.Inserted)
	assert.Equal(t, 3, db.NumDocs())

	resp = post(t, srv.URL+"/v1/search", searchRequest{
		Queries: []model.Document{{Embeddings: map[string][]float32{"embedding": {0, 0.2, 1}}}},
		Limit:   1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var results []model.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	assert.Equal(t, []string{"book-3"}, results[0].IDs())

	get, err := http.Get(srv.URL + "/v1/documents/book-1")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)

	resp = post(t, srv.URL+"/v1/delete", deleteRequest{IDs: []string{"book-1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	missing, err := http.Get(srv.URL + "/v1/documents/book-1")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	resp = post(t, srv.URL+"/v1/persist", struct{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	var body bytes.Buffer
	_, err = body.ReadFrom(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "unibase_search_queries_total 1")
}

func TestServerErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/index", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	docs, err := readDocuments(strings.NewReader(books))
	require.NoError(t, err)
	post(t, srv.URL+"/v1/index", documentsRequest{Documents: docs})

	bad := post(t, srv.URL+"/v1/search", searchRequest{
		Queries: []model.Document{{Embeddings: map[string][]float32{"embedding": {1, 0, 0}}}},
		Limit:   -1,
	})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	rejected := post(t, srv.URL+"/v1/index", documentsRequest{Documents: []model.Document{
		{ID: "short", Embeddings: map[string][]float32{"embedding": {1}}},
	}})
	assert.Equal(t, http.StatusBadRequest, rejected.StatusCode)
}
