package worker

import (
	"context"
	"fmt"
	"testing"

	"github.com/eduportal/offline-worker/internal/testutil"
	"github.com/eduportal/offline-worker/pkg/store"
)

func TestControl_ClearCache(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()

	w, reg, _ := newTestWorker(t, mock.URL())
	ctx := context.Background()

	for _, name := range []string{"static-v1", "dynamic-v1", "api-v1"} {
		s, _ := reg.Open(ctx, name)
		s.Put(ctx, "k", &store.Entry{Data: []byte("x"), StatusCode: 200})
	}

	reply := w.HandleControlMessage(ctx, Message{Type: MessageClearCache})
	clear, okReply := reply.(*ClearCacheReply)
	if !okReply {
		t.Fatalf("Reply type = %T, want *ClearCacheReply", reply)
	}
	if !clear.Success {
		t.Errorf("Reply = %+v, want success", clear)
	}

	// The hard reset removes every store, current generation included.
	names, _ := reg.Names(ctx)
	if len(names) != 0 {
		t.Errorf("Stores after clear = %v, want none", names)
	}
}

func TestControl_GetCacheSize(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()

	w, reg, _ := newTestWorker(t, mock.URL())
	ctx := context.Background()

	counts := map[string]int{"static-v1": 3, "dynamic-v1": 5, "api-v1": 0}
	for name, n := range counts {
		s, _ := reg.Open(ctx, name)
		for i := 0; i < n; i++ {
			s.Put(ctx, fmt.Sprintf("k%d", i), &store.Entry{Data: []byte("x"), StatusCode: 200})
		}
	}

	reply := w.HandleControlMessage(ctx, Message{Type: MessageGetCacheSize})
	size, okReply := reply.(*CacheSizeReply)
	if !okReply {
		t.Fatalf("Reply type = %T, want *CacheSizeReply", reply)
	}
	if size.Size != 8 {
		t.Errorf("Size = %d, want 8 (entry count, not bytes)", size.Size)
	}
}

func TestControl_SkipWaitingActivatesInstalledWorker(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()

	w, _, _ := newTestWorker(t, mock.URL())
	ctx := context.Background()

	if err := w.OnInstall(ctx); err != nil {
		t.Fatalf("OnInstall failed: %v", err)
	}
	if w.State() != StateInstalled {
		t.Fatalf("State = %s, want installed", w.State())
	}

	reply := w.HandleControlMessage(ctx, Message{Type: MessageSkipWaiting})
	if reply != nil {
		t.Errorf("SKIP_WAITING reply = %v, want none", reply)
	}
	if w.State() != StateActive {
		t.Errorf("State = %s, want active after skip-waiting", w.State())
	}
}

func TestControl_UnknownTypeGetsNoReply(t *testing.T) {
	mock := testutil.NewMockOrigin()
	defer mock.Close()

	w, _, _ := newTestWorker(t, mock.URL())

	reply := w.HandleControlMessage(context.Background(), Message{Type: "REFRESH_EVERYTHING"})
	if reply != nil {
		t.Errorf("Unknown type reply = %v, want none", reply)
	}
}
