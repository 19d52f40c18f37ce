package worker

import (
	"context"

	"github.com/eduportal/offline-worker/pkg/store"
)

// MessageType identifies a control channel command.
type MessageType string

const (
	// MessageSkipWaiting promotes a waiting worker to active.
	MessageSkipWaiting MessageType = "SKIP_WAITING"

	// MessageClearCache destroys every store, current generation included.
	MessageClearCache MessageType = "CLEAR_CACHE"

	// MessageGetCacheSize reports the total entry count across all stores.
	MessageGetCacheSize MessageType = "GET_CACHE_SIZE"
)

// Message is one control channel command from the application shell.
type Message struct {
	Type MessageType `json:"type"`
}

// ClearCacheReply is the reply to a CLEAR_CACHE message.
type ClearCacheReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CacheSizeReply is the reply to a GET_CACHE_SIZE message. Size is an entry
// count, not a byte size.
type CacheSizeReply struct {
	Size int `json:"size"`
}

// HandleControlMessage consumes one control message and returns the reply
// payload, or nil when the message carries no reply. Unknown types are
// logged and get no reply; callers must not block waiting for one.
func (w *Worker) HandleControlMessage(ctx context.Context, msg Message) any {
	controlMessagesTotal.WithLabelValues(string(msg.Type)).Inc()

	switch msg.Type {
	case MessageSkipWaiting:
		w.skipWaiting.Store(true)
		w.logger.Info().Msg("Skip-waiting requested")
		if w.State() == StateInstalled {
			if err := w.OnActivate(ctx); err != nil {
				w.logger.Error().Err(err).Msg("Activation after skip-waiting failed")
			}
		}
		return nil

	case MessageClearCache:
		if err := w.clearAllStores(ctx); err != nil {
			w.logger.Error().Err(err).Msg("Full cache purge failed")
			return &ClearCacheReply{Success: false, Error: err.Error()}
		}
		w.logger.Info().Msg("All cache stores purged")
		return &ClearCacheReply{Success: true}

	case MessageGetCacheSize:
		size, err := store.TotalEntries(ctx, w.registry)
		if err != nil {
			// Mirrors an exception in the size query: no reply is posted.
			w.logger.Error().Err(err).Msg("Cache size query failed")
			return nil
		}
		return &CacheSizeReply{Size: size}

	default:
		w.logger.Warn().Str("type", string(msg.Type)).Msg("Unknown control message type")
		return nil
	}
}

// clearAllStores destroys every store regardless of name. This is a hard
// reset, distinct from the generation purge on activation.
func (w *Worker) clearAllStores(ctx context.Context) error {
	names, err := w.registry.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := w.registry.Destroy(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
