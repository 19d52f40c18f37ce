package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/eduportal/offline-worker/pkg/policy"
	"github.com/eduportal/offline-worker/pkg/store"
)

// ok reports whether a response status is in the 2xx success range.
func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// handleAPI is the network-first API strategy: successful responses are
// written to the API store and the store is trimmed to its policy bound.
// On network failure the cached copy is served; with no cached copy a 503
// JSON error is synthesized.
func (w *Worker) handleAPI(ctx context.Context, req *http.Request, key string) *http.Response {
	resp, err := w.fetcher.Fetch(ctx, req)
	if err == nil {
		if ok(resp) {
			w.captureAndTrim(ctx, w.cfg.Stores.API, key, resp, true)
		}
		return resp
	}

	w.logger.Warn().Err(err).Str("key", key).Msg("API fetch failed, trying cache")

	if entry, gerr := w.lookup(ctx, w.cfg.Stores.API, key); gerr == nil {
		fallbacksTotal.WithLabelValues(string(ClassAPI)).Inc()
		return store.EntryToResponse(entry)
	}

	synthesizedTotal.WithLabelValues(string(ClassAPI)).Inc()
	return synthesizeJSON(http.StatusServiceUnavailable,
		fmt.Sprintf("network unavailable: %v", err))
}

// handleStatic is the cache-first static asset strategy with
// stale-while-revalidate: hits are returned immediately while the entry is
// refreshed in the background. Misses go to the network and are cached on
// success; a miss with no network yields a synthesized 404.
func (w *Worker) handleStatic(ctx context.Context, req *http.Request, key string) *http.Response {
	if entry, err := w.lookup(ctx, w.cfg.Stores.Static, key); err == nil {
		w.revalidate(req, key)
		return store.EntryToResponse(entry)
	}

	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		w.logger.Warn().Err(err).Str("key", key).Msg("Static fetch failed with no cached copy")
		synthesizedTotal.WithLabelValues(string(ClassStatic)).Inc()
		return synthesizeText(http.StatusNotFound, "asset unavailable offline")
	}

	if ok(resp) {
		w.captureAndTrim(ctx, w.cfg.Stores.Static, key, resp, true)
	}
	return resp
}

// handleDocument is the network-first page strategy: pages are written to
// the dynamic store (which is not trimmed) and served live. On failure the
// cached page is served, then the cached root shell, then a synthesized 404.
func (w *Worker) handleDocument(ctx context.Context, req *http.Request, key string) *http.Response {
	resp, err := w.fetcher.Fetch(ctx, req)
	if err == nil {
		w.captureAndTrim(ctx, w.cfg.Stores.Dynamic, key, resp, false)
		return resp
	}

	w.logger.Warn().Err(err).Str("key", key).Msg("Page fetch failed, trying cache")

	if entry, gerr := w.lookup(ctx, w.cfg.Stores.Dynamic, key); gerr == nil {
		fallbacksTotal.WithLabelValues(string(ClassDocument)).Inc()
		return store.EntryToResponse(entry)
	}
	if entry, gerr := w.lookup(ctx, w.cfg.Stores.Dynamic, w.rootKey()); gerr == nil {
		fallbacksTotal.WithLabelValues(string(ClassDocument)).Inc()
		return store.EntryToResponse(entry)
	}

	synthesizedTotal.WithLabelValues(string(ClassDocument)).Inc()
	return synthesizeText(http.StatusNotFound, "page unavailable offline")
}

// handleOther is the network-only passthrough strategy.
func (w *Worker) handleOther(ctx context.Context, req *http.Request) *http.Response {
	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		w.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Passthrough fetch failed")
		synthesizedTotal.WithLabelValues(string(ClassOther)).Inc()
		return synthesizeText(http.StatusServiceUnavailable, "request failed")
	}
	return resp
}

// captureAndTrim snapshots a response into the named store and, for governed
// stores, trims the store to its policy bound. The response body is restored
// so the live response can still be returned to the caller; the store keeps
// its own copy of the bytes. Store failures are logged, never fatal to the
// request.
func (w *Worker) captureAndTrim(ctx context.Context, storeName, key string, resp *http.Response, governed bool) {
	entry, err := store.ResponseToEntry(resp)
	if err != nil {
		w.logger.Warn().Err(err).Str("store", storeName).Msg("Failed to snapshot response")
		return
	}

	s, err := w.registry.Open(ctx, storeName)
	if err != nil {
		w.logger.Warn().Err(err).Str("store", storeName).Msg("Failed to open store")
		return
	}
	if err := s.Put(ctx, key, entry); err != nil {
		w.logger.Warn().Err(err).Str("store", storeName).Str("key", key).Msg("Failed to cache response")
		return
	}

	if governed {
		if _, err := w.engine.Trim(ctx, s, w.policyFor(storeName)); err != nil {
			w.logger.Warn().Err(err).Str("store", storeName).Msg("Trim failed")
		}
	}
}

// policyFor maps a governed store name to its eviction policy.
func (w *Worker) policyFor(storeName string) policy.Policy {
	switch storeName {
	case w.cfg.Stores.API:
		return w.cfg.Policies.API
	case w.cfg.Stores.Static:
		return w.cfg.Policies.Static
	default:
		return policy.Policy{}
	}
}

// lookup fetches an entry from the named store.
func (w *Worker) lookup(ctx context.Context, storeName, key string) (*store.Entry, error) {
	s, err := w.registry.Open(ctx, storeName)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, key)
}

// revalidate refreshes a cached static asset in the background. The refresh
// is fire-and-forget on a detached context: the current request's latency is
// never penalized and its cancellation does not abort the refresh.
func (w *Worker) revalidate(req *http.Request, key string) {
	fresh := req.Clone(context.Background())
	go func() {
		resp, err := w.fetcher.Fetch(context.Background(), fresh)
		if err != nil {
			revalidationsTotal.WithLabelValues("failed").Inc()
			w.logger.Debug().Err(err).Str("key", key).Msg("Background revalidation failed")
			return
		}
		defer resp.Body.Close()
		if !ok(resp) {
			revalidationsTotal.WithLabelValues("failed").Inc()
			return
		}

		entry, err := store.ResponseToEntry(resp)
		if err != nil {
			revalidationsTotal.WithLabelValues("failed").Inc()
			return
		}
		s, err := w.registry.Open(context.Background(), w.cfg.Stores.Static)
		if err != nil {
			revalidationsTotal.WithLabelValues("failed").Inc()
			return
		}
		if err := s.Put(context.Background(), key, entry); err != nil {
			revalidationsTotal.WithLabelValues("failed").Inc()
			return
		}
		revalidationsTotal.WithLabelValues("refreshed").Inc()
		w.logger.Debug().Str("key", key).Msg("Background revalidation refreshed entry")
	}()
}

// synthesizeJSON fabricates an HTTP-shaped JSON error response.
func synthesizeJSON(status int, message string) *http.Response {
	body, _ := json.Marshal(map[string]string{"error": message})
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return synthesize(status, header, body)
}

// synthesizeText fabricates an HTTP-shaped plain text failure response.
func synthesizeText(status int, message string) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return synthesize(status, header, []byte(message))
}

func synthesize(status int, header http.Header, body []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
	}
}
