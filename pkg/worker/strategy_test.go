package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eduportal/offline-worker/internal/testutil"
	"github.com/eduportal/offline-worker/pkg/config"
	"github.com/eduportal/offline-worker/pkg/store"
)

// newTestWorker builds a memory-backed worker pointed at the given origin.
func newTestWorker(t *testing.T, origin string) (*Worker, *store.MemoryRegistry, config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Origin = origin

	reg := store.NewMemoryRegistry()
	w, err := New(cfg, reg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return w, reg, cfg
}

// keyFor computes the store key the worker uses for a path on the origin.
func keyFor(t *testing.T, origin, path string) string {
	t.Helper()
	u, err := url.Parse(origin + path)
	if err != nil {
		t.Fatal(err)
	}
	return store.URLKey(u)
}

func fetch(t *testing.T, w *Worker, r *http.Request) *http.Response {
	t.Helper()
	resp, err := w.HandleFetch(context.Background(), r)
	if err != nil {
		t.Fatalf("HandleFetch failed: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Read body failed: %v", err)
	}
	return string(body)
}

func TestAPI_NetworkFirstCachesAndReturnsLive(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()
	mock.SetResponse("/api/teachers", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `[{"id": 1, "name": "Chen"}]`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	})

	w, reg, cfg := newTestWorker(t, mock.URL())

	resp := fetch(t, w, httptest.NewRequest("GET", "/api/teachers", nil))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}
	if body := readBody(t, resp); body != `[{"id": 1, "name": "Chen"}]` {
		t.Errorf("Body = %s, want live network body", body)
	}

	// The response was captured into the API store under the request key.
	ctx := context.Background()
	apiStore, _ := reg.Open(ctx, cfg.Stores.API)
	entry, err := apiStore.Get(ctx, keyFor(t, mock.URL(), "/api/teachers"))
	if err != nil {
		t.Fatalf("API store lookup failed: %v", err)
	}
	if string(entry.Data) != `[{"id": 1, "name": "Chen"}]` {
		t.Errorf("Cached data = %s", entry.Data)
	}

	n, _ := apiStore.Len(ctx)
	if n > cfg.Policies.API.MaxEntries {
		t.Errorf("API store len = %d, exceeds policy bound %d", n, cfg.Policies.API.MaxEntries)
	}
}

func TestAPI_OfflineServesCachedCopy(t *testing.T) {
	mock := testutil.NewMockOrigin()
	mock.SetResponse("/api/courses", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `[{"id": 7}]`,
	})

	w, _, _ := newTestWorker(t, mock.URL())

	resp := fetch(t, w, httptest.NewRequest("GET", "/api/courses", nil))
	readBody(t, resp)

	// Take the origin down; the cached copy must be served.
	mock.Close()

	resp = fetch(t, w, httptest.NewRequest("GET", "/api/courses", nil))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200 from cache", resp.StatusCode)
	}
	if body := readBody(t, resp); body != `[{"id": 7}]` {
		t.Errorf("Body = %s, want cached copy", body)
	}
}

func TestAPI_OfflineNoCacheSynthesizes503(t *testing.T) {
	mock := testutil.NewMockOrigin()
	mock.Close() // origin is down from the start

	w, _, _ := newTestWorker(t, mock.URL())

	resp := fetch(t, w, httptest.NewRequest("GET", "/api/teachers", nil))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(readBody(t, resp)), &payload); err != nil {
		t.Fatalf("Body is not JSON: %v", err)
	}
	if payload["error"] == "" {
		t.Error("Synthesized body must carry an error field")
	}
}

func TestAPI_ErrorStatusIsNotCached(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()
	mock.SetResponse("/api/broken", testutil.MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "boom"}`,
	})

	w, reg, cfg := newTestWorker(t, mock.URL())

	resp := fetch(t, w, httptest.NewRequest("GET", "/api/broken", nil))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Status = %d, want live 500", resp.StatusCode)
	}
	readBody(t, resp)

	ctx := context.Background()
	apiStore, _ := reg.Open(ctx, cfg.Stores.API)
	if _, err := apiStore.Get(ctx, keyFor(t, mock.URL(), "/api/broken")); err != store.ErrCacheMiss {
		t.Errorf("Non-ok response must not be cached, got %v", err)
	}
}

func TestAPI_EvictionBoundsStore(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()

	cfg := config.DefaultConfig()
	cfg.Origin = mock.URL()
	cfg.Policies.API.MaxEntries = 2

	reg := store.NewMemoryRegistry()
	w, err := New(cfg, reg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	paths := []string{"/api/a", "/api/b", "/api/c"}
	for _, p := range paths {
		mock.SetResponse(p, testutil.MockResponse{StatusCode: 200, Body: p})
		readBody(t, fetch(t, w, httptest.NewRequest("GET", p, nil)))
	}

	ctx := context.Background()
	apiStore, _ := reg.Open(ctx, cfg.Stores.API)
	n, _ := apiStore.Len(ctx)
	if n != 2 {
		t.Fatalf("API store len = %d, want exactly 2 after eviction", n)
	}

	// The oldest entry was evicted first.
	if _, err := apiStore.Get(ctx, keyFor(t, mock.URL(), "/api/a")); err != store.ErrCacheMiss {
		t.Errorf("Oldest entry should be evicted, got %v", err)
	}
	if _, err := apiStore.Get(ctx, keyFor(t, mock.URL(), "/api/c")); err != nil {
		t.Errorf("Newest entry should be retained: %v", err)
	}
}

func TestStatic_CacheHitServesCachedAndRevalidates(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()
	mock.SetResponse("/assets/app.js", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "console.log(1)",
		Headers:    map[string]string{"Content-Type": "text/javascript"},
	})

	w, _, _ := newTestWorker(t, mock.URL())

	// First request: miss, served from network and cached.
	readBody(t, fetch(t, w, httptest.NewRequest("GET", "/assets/app.js", nil)))
	if mock.PathCount("/assets/app.js") != 1 {
		t.Fatalf("Origin requests = %d, want 1", mock.PathCount("/assets/app.js"))
	}

	// Second request: hit. The cached body is returned immediately and a
	// background refresh hits the origin.
	resp := fetch(t, w, httptest.NewRequest("GET", "/assets/app.js", nil))
	if body := readBody(t, resp); body != "console.log(1)" {
		t.Errorf("Body = %s, want cached copy", body)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mock.PathCount("/assets/app.js") < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := mock.PathCount("/assets/app.js"); got != 2 {
		t.Errorf("Origin requests after revalidation = %d, want 2", got)
	}
}

func TestStatic_OfflineNoCacheSynthesizes404(t *testing.T) {
	mock := testutil.NewMockOrigin()
	mock.Close()

	w, _, _ := newTestWorker(t, mock.URL())

	resp := fetch(t, w, httptest.NewRequest("GET", "/assets/missing.css", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", resp.StatusCode)
	}
	if body := readBody(t, resp); body == "" {
		t.Error("Synthesized body must carry a failure message")
	}
}

func TestDocument_OfflineFallsBackToCachedPage(t *testing.T) {
	mock := testutil.NewMockOrigin()
	mock.SetResponse("/courses", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "<html>courses</html>",
		Headers:    map[string]string{"Content-Type": "text/html"},
	})

	w, _, _ := newTestWorker(t, mock.URL())

	req := httptest.NewRequest("GET", "/courses", nil)
	req.Header.Set("Sec-Fetch-Dest", "document")
	readBody(t, fetch(t, w, req))

	mock.Close()

	req = httptest.NewRequest("GET", "/courses", nil)
	req.Header.Set("Sec-Fetch-Dest", "document")
	resp := fetch(t, w, req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200 from dynamic store", resp.StatusCode)
	}
	if body := readBody(t, resp); body != "<html>courses</html>" {
		t.Errorf("Body = %s, want cached page", body)
	}
}

func TestDocument_OfflineFallsBackToRootShell(t *testing.T) {
	mock := testutil.NewMockOrigin()

	w, _, _ := newTestWorker(t, mock.URL())

	// Cache the root shell, then go offline and navigate to an uncached page.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Sec-Fetch-Dest", "document")
	readBody(t, fetch(t, w, req))

	mock.Close()

	req = httptest.NewRequest("GET", "/teachers/42", nil)
	req.Header.Set("Sec-Fetch-Dest", "document")
	resp := fetch(t, w, req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status = %d, want 200 root shell fallback", resp.StatusCode)
	}
	if body := readBody(t, resp); body != "<!doctype html><title>shell</title>" {
		t.Errorf("Body = %s, want root shell", body)
	}
}

func TestDocument_OfflineNoFallbackSynthesizes404(t *testing.T) {
	mock := testutil.NewMockOrigin()
	mock.Close()

	w, _, _ := newTestWorker(t, mock.URL())

	req := httptest.NewRequest("GET", "/teachers/42", nil)
	req.Header.Set("Sec-Fetch-Dest", "document")
	resp := fetch(t, w, req)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", resp.StatusCode)
	}
}

func TestOther_FailureSynthesizes503(t *testing.T) {
	mock := testutil.NewMockOrigin()
	mock.Close()

	w, _, _ := newTestWorker(t, mock.URL())

	resp := fetch(t, w, httptest.NewRequest("GET", "/stream/audio", nil))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", resp.StatusCode)
	}
}

func TestOther_PassthroughDoesNotCache(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()

	w, reg, _ := newTestWorker(t, mock.URL())

	readBody(t, fetch(t, w, httptest.NewRequest("GET", "/stream/audio", nil)))

	total, _ := store.TotalEntries(context.Background(), reg)
	if total != 0 {
		t.Errorf("Passthrough wrote %d entries, want 0", total)
	}
}

func TestNonGET_SkipsInterception(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()
	mock.SetHandler("/api/teachers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Origin saw method %s, want POST", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
	})

	w, reg, _ := newTestWorker(t, mock.URL())

	resp := fetch(t, w, httptest.NewRequest("POST", "/api/teachers", nil))
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Status = %d, want live 201", resp.StatusCode)
	}
	readBody(t, resp)

	// No cache store was touched.
	total, _ := store.TotalEntries(context.Background(), reg)
	if total != 0 {
		t.Errorf("Non-GET wrote %d entries, want 0", total)
	}
}
