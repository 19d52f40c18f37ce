package worker

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Classification is the derived category driving which strategy handles an
// intercepted request. It is recomputed per request and never persisted.
type Classification string

const (
	// ClassAPI routes through the network-first API strategy.
	ClassAPI Classification = "api"

	// ClassStatic routes through the cache-first static asset strategy.
	ClassStatic Classification = "static"

	// ClassDocument routes through the network-first page strategy.
	ClassDocument Classification = "document"

	// ClassOther routes through the network-only passthrough strategy.
	ClassOther Classification = "other"

	// ClassSkip means the request is not intercepted at all.
	ClassSkip Classification = "skip"
)

// Browser-extension schemes are never intercepted.
var extensionSchemes = map[string]bool{
	"chrome-extension": true,
	"moz-extension":    true,
}

// Classifier assigns each request to exactly one handling strategy.
type Classifier struct {
	apiPrefix   string
	backendHost string
	staticExts  map[string]bool
}

// NewClassifier builds a classifier from the routing predicates.
func NewClassifier(apiPrefix, backendHost string, staticExtensions []string) *Classifier {
	exts := make(map[string]bool, len(staticExtensions))
	for _, ext := range staticExtensions {
		exts[strings.ToLower(ext)] = true
	}
	return &Classifier{
		apiPrefix:   apiPrefix,
		backendHost: backendHost,
		staticExts:  exts,
	}
}

// Classify is a pure function of the request method, resolved URL and
// headers. Rules are evaluated in order and the first match wins; API must
// precede Static and Document because backend endpoints may share asset
// extensions or be navigated to directly.
func (c *Classifier) Classify(method string, u *url.URL, header http.Header) Classification {
	if method != http.MethodGet {
		return ClassSkip
	}
	if extensionSchemes[u.Scheme] {
		return ClassSkip
	}

	if strings.HasPrefix(u.Path, c.apiPrefix) || (c.backendHost != "" && strings.Contains(u.Hostname(), c.backendHost)) {
		return ClassAPI
	}

	if c.staticExts[strings.ToLower(path.Ext(u.Path))] {
		return ClassStatic
	}

	// Sec-Fetch-Dest carries the request destination for top-level
	// navigations.
	if header.Get("Sec-Fetch-Dest") == "document" {
		return ClassDocument
	}

	return ClassOther
}
