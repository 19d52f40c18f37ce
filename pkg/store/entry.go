// Package store provides named, insertion-ordered cache stores for captured
// HTTP responses, with memory, Redis, and LevelDB backends.
package store

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Entry is a captured response snapshot. The body is held as a byte slice so
// the snapshot can be served any number of times; HTTP response bodies are
// single-read streams and must be buffered before they can be both returned
// to a caller and persisted.
type Entry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// CachedAt is when the response was captured
	CachedAt time.Time `json:"cached_at"`
}

// ResponseToEntry captures an HTTP response as a store entry.
// The response body is consumed and restored, so the caller can still
// serve the original response afterwards.
func ResponseToEntry(resp *http.Response) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()

	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Entry{
		Data:       body,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   time.Now(),
	}, nil
}

// EntryToResponse rebuilds an HTTP response from a store entry.
// Each call returns a response with an independent body reader.
func EntryToResponse(entry *Entry) *http.Response {
	header := entry.Headers.Clone()
	if header == nil {
		header = make(http.Header)
	}

	return &http.Response{
		StatusCode:    entry.StatusCode,
		Status:        fmt.Sprintf("%d %s", entry.StatusCode, http.StatusText(entry.StatusCode)),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
	}
}
