package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"tabularium/internal/domain"
	"tabularium/internal/repository/sqlite"
	"tabularium/internal/repository/tree"
	"tabularium/internal/secrets"
	"tabularium/internal/service"
)

// ============================================================================
// Test Helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestMux wires the handlers over an in-memory relational store
func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	repo, err := sqlite.New(":memory:", sqlite.Options{})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return muxFor(service.NewArchiveService(repo, service.NewEventBus(), service.Limits{}, testLogger()))
}

// newTestTreeMux wires the handlers over a tree store
func newTestTreeMux(t *testing.T) *http.ServeMux {
	t.Helper()
	store, err := tree.New(filepath.Join(t.TempDir(), "tree.db"), tree.Options{})
	if err != nil {
		t.Fatalf("failed to create tree store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return muxFor(service.NewArchiveService(store, service.NewEventBus(), service.Limits{}, testLogger()))
}

func muxFor(svc *service.ArchiveService) *http.ServeMux {
	mux := http.NewServeMux()
	NewArchiveHandler(svc, testLogger()).Register(mux)
	NewTreeHandler(svc, testLogger()).Register(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func decodeJSON(t *testing.T, body *bytes.Buffer, into any) {
	t.Helper()
	decoder := json.NewDecoder(body)
	decoder.UseNumber()
	if err := decoder.Decode(into); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

// ============================================================================
// Document Endpoints
// ============================================================================

func TestStoreAndLoadDocument(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/documents/hosts", `{"name":"web-1","cpu":{"cores":8}}`)
	assertStatus(t, rec, http.StatusCreated)

	var ack map[string]string
	decodeJSON(t, rec.Body, &ack)
	if ack["structure"] != "hosts" {
		t.Errorf("expected structure hosts, got %q", ack["structure"])
	}

	rec = doRequest(t, mux, http.MethodGet, "/api/documents/hosts", "")
	assertStatus(t, rec, http.StatusOK)

	var doc map[string]any
	decodeJSON(t, rec.Body, &doc)
	want := map[string]any{
		"name": "web-1",
		"cpu":  map[string]any{"cores": json.Number("8")},
	}
	if !reflect.DeepEqual(doc, want) {
		t.Errorf("expected %v, got %v", want, doc)
	}
}

func TestStoreRejectsNonObject(t *testing.T) {
	mux := newTestMux(t)

	for _, body := range []string{`[1,2,3]`, `"scalar"`, `42`} {
		rec := doRequest(t, mux, http.MethodPost, "/api/documents/hosts", body)
		assertStatus(t, rec, http.StatusBadRequest)

		var resp ErrorResponse
		decodeJSON(t, rec.Body, &resp)
		if resp.Error == "" {
			t.Errorf("expected an error message for body %s", body)
		}
	}
}

func TestStoreRejectsEmptyStructure(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/documents/", `{"a":1}`)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestStructureNameJoinsPathSegments(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/documents/fleet/hosts", `{"name":"web-1"}`)
	assertStatus(t, rec, http.StatusCreated)

	rec = doRequest(t, mux, http.MethodGet, "/api/structures", "")
	assertStatus(t, rec, http.StatusOK)

	var structures []domain.StructureInfo
	decodeJSON(t, rec.Body, &structures)
	if len(structures) != 1 || structures[0].Name != "fleet_hosts" {
		t.Errorf("expected fleet_hosts, got %v", structures)
	}
}

func TestLoadMissingStructureIsEmptyObject(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodGet, "/api/documents/ghost", "")
	assertStatus(t, rec, http.StatusOK)

	var doc map[string]any
	decodeJSON(t, rec.Body, &doc)
	if len(doc) != 0 {
		t.Errorf("expected empty object, got %v", doc)
	}
}

func TestLoadDocumentAsYAML(t *testing.T) {
	mux := newTestMux(t)

	doRequest(t, mux, http.MethodPost, "/api/documents/hosts", `{"name":"web-1"}`)

	rec := doRequest(t, mux, http.MethodGet, "/api/documents/hosts?format=yaml", "")
	assertStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-yaml" {
		t.Errorf("expected YAML content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "name: web-1") {
		t.Errorf("expected YAML body, got %s", rec.Body.String())
	}

	rec = doRequest(t, mux, http.MethodGet, "/api/documents/hosts?format=xml", "")
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestSearchEndpoint(t *testing.T) {
	mux := newTestMux(t)

	doRequest(t, mux, http.MethodPost, "/api/documents/hosts", `{"name":"web-1","role":"db"}`)
	doRequest(t, mux, http.MethodPost, "/api/documents/apps", `{"name":"billing","role":"api"}`)

	t.Run("match", func(t *testing.T) {
		rec := doRequest(t, mux, http.MethodGet, "/api/search?key=role&value=db", "")
		assertStatus(t, rec, http.StatusOK)

		var docs []map[string]any
		decodeJSON(t, rec.Body, &docs)
		if len(docs) != 1 || docs[0]["name"] != "web-1" {
			t.Errorf("expected the db host, got %v", docs)
		}
	})

	t.Run("both empty short-circuits", func(t *testing.T) {
		rec := doRequest(t, mux, http.MethodGet, "/api/search", "")
		assertStatus(t, rec, http.StatusOK)

		var docs []map[string]any
		decodeJSON(t, rec.Body, &docs)
		if len(docs) != 0 {
			t.Errorf("expected no documents, got %v", docs)
		}
	})

	t.Run("one empty is rejected", func(t *testing.T) {
		rec := doRequest(t, mux, http.MethodGet, "/api/search?key=role", "")
		assertStatus(t, rec, http.StatusBadRequest)
	})
}

func TestSweepEndpoint(t *testing.T) {
	mux := newTestMux(t)

	doRequest(t, mux, http.MethodPost, "/api/documents/hosts", `{"name":"web-1"}`)

	rec := doRequest(t, mux, http.MethodPost, "/api/sweep", `{"root":"hosts","max_age_days":30}`)
	assertStatus(t, rec, http.StatusOK)

	var reply struct {
		Result domain.SweepResult `json:"result"`
	}
	decodeJSON(t, rec.Body, &reply)
	if reply.Result.Root != "hosts" {
		t.Errorf("expected root hosts, got %q", reply.Result.Root)
	}
	if reply.Result.RecordsDeleted != 0 {
		t.Errorf("expected nothing swept from fresh data, got %d", reply.Result.RecordsDeleted)
	}

	t.Run("missing root", func(t *testing.T) {
		rec := doRequest(t, mux, http.MethodPost, "/api/sweep", `{"max_age_days":30}`)
		assertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("negative age", func(t *testing.T) {
		rec := doRequest(t, mux, http.MethodPost, "/api/sweep", `{"root":"hosts","max_age_days":-1}`)
		assertStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("bad body", func(t *testing.T) {
		rec := doRequest(t, mux, http.MethodPost, "/api/sweep", `{`)
		assertStatus(t, rec, http.StatusBadRequest)
	})
}

func TestHealthEndpoint(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodGet, "/api/health", "")
	assertStatus(t, rec, http.StatusOK)

	var status map[string]any
	decodeJSON(t, rec.Body, &status)
	if status["status"] != "ok" {
		t.Errorf("expected ok, got %v", status["status"])
	}
	if status["paths_supported"] != false {
		t.Errorf("expected paths_supported false on the relational backend, got %v", status["paths_supported"])
	}
}

// ============================================================================
// Tree Endpoints
// ============================================================================

func TestTreeStoreAndQuery(t *testing.T) {
	mux := newTestTreeMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/tree/infra/web", `{"host":"web-1","port":443}`)
	assertStatus(t, rec, http.StatusCreated)

	rec = doRequest(t, mux, http.MethodGet, "/api/tree/infra/web", "")
	assertStatus(t, rec, http.StatusOK)

	var entries []domain.PathEntry
	decodeJSON(t, rec.Body, &entries)
	want := []domain.PathEntry{
		{Key: "host", Value: "web-1"},
		{Key: "port", Value: json.Number("443")},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("expected %v, got %v", want, entries)
	}
}

func TestTreeQueryPagination(t *testing.T) {
	mux := newTestTreeMux(t)

	doRequest(t, mux, http.MethodPost, "/api/tree/grid", `{"a":1,"b":2,"c":3,"d":4}`)

	page := func(target string) []string {
		rec := doRequest(t, mux, http.MethodGet, target, "")
		assertStatus(t, rec, http.StatusOK)
		var entries []domain.PathEntry
		decodeJSON(t, rec.Body, &entries)
		keys := make([]string, len(entries))
		for i, e := range entries {
			keys[i] = e.Key
		}
		return keys
	}

	if got := page("/api/tree/grid?page=1&page_size=2"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected first page [a b], got %v", got)
	}
	if got := page("/api/tree/grid?page=2&page_size=2"); !reflect.DeepEqual(got, []string{"c", "d"}) {
		t.Errorf("expected second page [c d], got %v", got)
	}
	if got := page("/api/tree/grid?page_size=2&sort_order=desc"); !reflect.DeepEqual(got, []string{"d", "c"}) {
		t.Errorf("expected descending page [d c], got %v", got)
	}
}

func TestTreeQueryRejectsBadParameters(t *testing.T) {
	mux := newTestTreeMux(t)

	doRequest(t, mux, http.MethodPost, "/api/tree/infra", `{"a":1}`)

	for _, target := range []string{
		"/api/tree/infra?sort_key=bogus",
		"/api/tree/infra?sort_order=sideways",
		"/api/tree/infra?page=x",
		"/api/tree/infra?page_size=x",
		"/api/tree/infra?max_depth=x",
	} {
		rec := doRequest(t, mux, http.MethodGet, target, "")
		assertStatus(t, rec, http.StatusBadRequest)
	}
}

func TestTreeMissingPathIsNotFound(t *testing.T) {
	mux := newTestTreeMux(t)

	rec := doRequest(t, mux, http.MethodGet, "/api/tree/no/such/path", "")
	assertStatus(t, rec, http.StatusNotFound)
}

func TestTreeOverwriteFlag(t *testing.T) {
	mux := newTestTreeMux(t)

	values := func(path string) []any {
		rec := doRequest(t, mux, http.MethodGet, path, "")
		assertStatus(t, rec, http.StatusOK)
		var entries []domain.PathEntry
		decodeJSON(t, rec.Body, &entries)
		vals := make([]any, len(entries))
		for i, e := range entries {
			vals[i] = e.Value
		}
		return vals
	}

	// Default overwrite replaces the value in place.
	doRequest(t, mux, http.MethodPost, "/api/tree/cfg/live", `{"mode":"a"}`)
	doRequest(t, mux, http.MethodPost, "/api/tree/cfg/live", `{"mode":"b"}`)
	if got := values("/api/tree/cfg/live"); !reflect.DeepEqual(got, []any{"b"}) {
		t.Errorf("expected overwritten value [b], got %v", got)
	}

	// overwrite=false keeps the old version as a sibling.
	doRequest(t, mux, http.MethodPost, "/api/tree/cfg/hist", `{"state":"open"}`)
	doRequest(t, mux, http.MethodPost, "/api/tree/cfg/hist?overwrite=false", `{"state":"closed"}`)
	if got := values("/api/tree/cfg/hist"); !reflect.DeepEqual(got, []any{"open", "closed"}) {
		t.Errorf("expected both versions [open closed], got %v", got)
	}

	rec := doRequest(t, mux, http.MethodPost, "/api/tree/cfg/live?overwrite=maybe", `{"mode":"c"}`)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestTreeUnsupportedOnRelationalBackend(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/tree/infra", `{"a":1}`)
	assertStatus(t, rec, http.StatusInternalServerError)

	rec = doRequest(t, mux, http.MethodGet, "/api/tree/infra", "")
	assertStatus(t, rec, http.StatusInternalServerError)
}

// ============================================================================
// Secrets Endpoint
// ============================================================================

type fakeLister struct {
	summaries []secrets.Summary
}

func (f *fakeLister) List() []secrets.Summary { return f.summaries }

func TestSecretsEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	NewSecretsHandler(&fakeLister{summaries: []secrets.Summary{
		{Name: "deploy-key", Type: secrets.TypeSSHKey, Source: secrets.SourceMounted, Keys: []string{"value"}},
	}}, testLogger()).Register(mux)

	rec := doRequest(t, mux, http.MethodGet, "/api/secrets", "")
	assertStatus(t, rec, http.StatusOK)

	var summaries []secrets.Summary
	decodeJSON(t, rec.Body, &summaries)
	if len(summaries) != 1 || summaries[0].Name != "deploy-key" {
		t.Errorf("expected the deploy key summary, got %v", summaries)
	}
}

func TestSecretsEndpointEmptyList(t *testing.T) {
	mux := http.NewServeMux()
	NewSecretsHandler(&fakeLister{}, testLogger()).Register(mux)

	rec := doRequest(t, mux, http.MethodGet, "/api/secrets", "")
	assertStatus(t, rec, http.StatusOK)
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty array, got %s", body)
	}
}

// ============================================================================
// Middleware
// ============================================================================

func TestRecoverMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	wrapped := Chain(panicking, Recover(testLogger()))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assertStatus(t, rec, http.StatusInternalServerError)

	var resp ErrorResponse
	decodeJSON(t, rec.Body, &resp)
	if resp.Error == "" {
		t.Error("expected an error body")
	}
}

func TestCORSMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := Chain(ok, CORS())

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/health", nil))
	assertStatus(t, rec, http.StatusNoContent)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected the allow-origin header on preflight")
	}

	rec = httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assertStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected the allow-origin header on normal requests")
	}
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	wrapped := Chain(ok, RequestLogger(testLogger()))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assertStatus(t, rec, http.StatusTeapot)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request ID header")
	}
}
