package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/eduportal/offline-worker/pkg/config"
	"github.com/eduportal/offline-worker/pkg/policy"
	"github.com/eduportal/offline-worker/pkg/store"
)

// State is the worker lifecycle state.
type State int32

const (
	// StateNew is the state before OnInstall has run.
	StateNew State = iota

	// StateInstalling covers the shell precache step.
	StateInstalling

	// StateInstalled means install finished and the worker is waiting.
	StateInstalled

	// StateActivating covers the generation purge.
	StateActivating

	// StateActive means the worker controls request handling.
	StateActive
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Worker is the interception worker: it owns the lifecycle, classifies every
// intercepted request and resolves it through the matching strategy against
// the store registry.
type Worker struct {
	cfg        config.Config
	registry   store.Registry
	fetcher    Fetcher
	classifier *Classifier
	engine     *policy.Engine
	logger     zerolog.Logger
	origin     *url.URL

	state       atomic.Int32
	skipWaiting atomic.Bool
}

// New creates a worker. The fetcher may be nil, in which case a default
// origin fetcher is used.
func New(cfg config.Config, registry store.Registry, fetcher Fetcher, logger zerolog.Logger) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if registry == nil {
		return nil, fmt.Errorf("store registry is required")
	}

	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}

	if fetcher == nil {
		fetcher = NewOriginFetcher()
	}

	return &Worker{
		cfg:        cfg,
		registry:   registry,
		fetcher:    fetcher,
		classifier: NewClassifier(cfg.APIPrefix, cfg.BackendHost, cfg.StaticExtensions),
		engine:     policy.NewEngine(logger),
		logger:     logger,
		origin:     origin,
	}, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// OnInstall runs the install transition: the static store is pre-populated
// with the shell manifest. A precache failure is logged and swallowed — the
// worker still reaches the installed state, since the strategies fall back
// to the network on a miss. Install always requests immediate activation
// (skip-waiting) on completion.
func (w *Worker) OnInstall(ctx context.Context) error {
	w.state.Store(int32(StateInstalling))
	w.logger.Info().Str("state", StateInstalling.String()).Msg("Install started")

	if err := w.precache(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("Shell precache failed, install continues")
	}

	w.state.Store(int32(StateInstalled))
	w.skipWaiting.Store(true)
	w.logger.Info().Str("state", StateInstalled.String()).Msg("Install finished")
	return nil
}

// precache writes the fixed shell manifest into the static store. The first
// failed fetch aborts the whole step; there is no per-path retry.
func (w *Worker) precache(ctx context.Context) error {
	static, err := w.registry.Open(ctx, w.cfg.Stores.Static)
	if err != nil {
		return fmt.Errorf("open static store: %w", err)
	}

	for _, p := range w.cfg.PrecacheManifest {
		target := w.origin.ResolveReference(&url.URL{Path: p})
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return fmt.Errorf("build precache request for %s: %w", p, err)
		}

		resp, err := w.fetcher.Fetch(ctx, req)
		if err != nil {
			return fmt.Errorf("precache fetch %s: %w", p, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return fmt.Errorf("precache fetch %s: status %d", p, resp.StatusCode)
		}

		entry, err := store.ResponseToEntry(resp)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", p, err)
		}
		if err := static.Put(ctx, store.URLKey(target), entry); err != nil {
			return fmt.Errorf("store %s: %w", p, err)
		}

		w.logger.Debug().Str("path", p).Msg("Precached shell asset")
	}

	w.logger.Info().Int("assets", len(w.cfg.PrecacheManifest)).Msg("Shell precache complete")
	return nil
}

// OnActivate runs the activate transition: every store whose name falls
// outside the current version set is destroyed, then the worker takes
// control of request handling immediately.
func (w *Worker) OnActivate(ctx context.Context) error {
	w.state.Store(int32(StateActivating))
	w.logger.Info().Str("state", StateActivating.String()).Msg("Activation started")

	names, err := w.registry.Names(ctx)
	if err != nil {
		return fmt.Errorf("enumerate stores: %w", err)
	}

	for _, name := range names {
		if w.cfg.Stores.Contains(name) {
			continue
		}
		if err := w.registry.Destroy(ctx, name); err != nil {
			return fmt.Errorf("purge store %s: %w", name, err)
		}
		w.logger.Info().Str("store", name).Msg("Purged stale cache generation")
	}

	w.state.Store(int32(StateActive))
	w.logger.Info().Str("state", StateActive.String()).Msg("Worker active, controlling requests")
	return nil
}

// resolve rewrites a relative intercepted URL against the shell origin.
// Absolute URLs (e.g. backend API calls) pass through untouched.
func (w *Worker) resolve(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}
	return w.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
}

// HandleFetch resolves one intercepted request. Classified requests always
// yield a response, never an error; only skipped (non-intercepted) requests
// can propagate a raw network failure.
func (w *Worker) HandleFetch(ctx context.Context, r *http.Request) (*http.Response, error) {
	target := w.resolve(r)
	class := w.classifier.Classify(r.Method, target, r.Header)

	fetchesTotal.WithLabelValues(string(class)).Inc()
	start := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(string(class)).Observe(time.Since(start).Seconds())
	}()

	out := r.Clone(ctx)
	out.URL = target
	out.Host = target.Host
	out.RequestURI = ""

	w.logger.Debug().
		Str("classification", string(class)).
		Str("url", target.String()).
		Msg("Handling intercepted request")

	key := store.URLKey(target)

	switch class {
	case ClassSkip:
		// Pass through untouched; no store involvement, errors propagate.
		return w.fetcher.Fetch(ctx, out)
	case ClassAPI:
		return w.handleAPI(ctx, out, key), nil
	case ClassStatic:
		return w.handleStatic(ctx, out, key), nil
	case ClassDocument:
		return w.handleDocument(ctx, out, key), nil
	default:
		return w.handleOther(ctx, out), nil
	}
}

// rootKey is the store key of the generic offline shell document.
func (w *Worker) rootKey() string {
	return store.URLKey(w.origin.ResolveReference(&url.URL{Path: "/"}))
}
