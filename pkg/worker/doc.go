// Package worker implements the cache lifecycle and request routing core of
// the offline gateway.
//
// A Worker models the interception worker as an explicit state machine
// (Installing → Installed → Activating → Active) independent of how events
// are delivered to it. Install pre-populates the static store with the shell
// manifest; activation purges cache generations outside the current version
// set and takes control of request handling.
//
// Every intercepted request is classified into exactly one of five
// categories and resolved by the matching strategy:
//
//   - API: network-first; successful responses are written to the API store
//     and the store is trimmed to its policy bound. On network failure the
//     cached copy is served, or a 503 JSON error is synthesized.
//   - Static: cache-first; hits are served immediately while the entry is
//     refreshed in the background (stale-while-revalidate). Misses go to the
//     network and are cached on success; otherwise a 404 is synthesized.
//   - Document: network-first; successful responses are written to the
//     dynamic store. On failure the cached page is served, then the cached
//     root shell, then a synthesized 404.
//   - Other: network-only passthrough with a synthesized 503 on failure.
//   - Skip: non-GET and extension-scheme requests proceed unmodified and
//     touch no store.
//
// Once a request is classified, its handler always produces a response; a
// network failure never surfaces to the caller as a raw error.
//
// The control channel lets the application shell command the worker:
// SKIP_WAITING promotes a waiting worker, CLEAR_CACHE destroys every store,
// and GET_CACHE_SIZE reports the total entry count across stores.
package worker
