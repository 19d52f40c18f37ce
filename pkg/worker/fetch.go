package worker

import (
	"context"
	"fmt"
	"net/http"
)

// Fetcher performs the network leg of an intercepted request.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// OriginFetcher forwards requests over a plain HTTP client.
//
// No client timeout is configured: a hung fetch hangs its handler, bounded
// only by the caller's context.
type OriginFetcher struct {
	client *http.Client
}

// NewOriginFetcher creates a fetcher with a default HTTP client.
func NewOriginFetcher() *OriginFetcher {
	return &OriginFetcher{client: &http.Client{}}
}

// Fetch issues the request with the given context. The inbound request's
// headers are forwarded; hop-by-hop connection headers are left to the
// transport.
func (f *OriginFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("build outbound request: %w", err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			out.Header.Add(key, value)
		}
	}
	return f.client.Do(out)
}
