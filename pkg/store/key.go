package store

import (
	"net/http"
	"net/url"
)

// Key generates a deterministic request key from method, host and
// path+query. The fragment never reaches the server and is excluded.
//
// Example:
//
//	GET app.example.com/api/teachers?page=2
func Key(method, host, requestURI string) string {
	return method + " " + host + requestURI
}

// RequestKey derives the request key for an HTTP request. The host comes
// from the request URL when absolute, falling back to the Host header.
func RequestKey(r *http.Request) string {
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}
	return Key(r.Method, host, r.URL.RequestURI())
}

// URLKey derives the request key for a GET of the given URL.
func URLKey(u *url.URL) string {
	return Key(http.MethodGet, u.Host, u.RequestURI())
}
