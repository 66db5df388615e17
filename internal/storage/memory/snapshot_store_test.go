package memory_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
	"github.com/vladislavdragonenkov/mosync/internal/storage/memory"
)

func TestSnapshotStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSnapshotStore()
	now := time.Now().UTC()

	if _, err := store.Get(ctx, "orders"); !domain.IsSnapshotNotFound(err) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}

	snap := domain.Snapshot{Data: json.RawMessage(`{"orders":[]}`), Timestamp: now}
	if err := store.Set(ctx, "orders", snap); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.Get(ctx, "orders")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Data) != `{"orders":[]}` || !got.Timestamp.Equal(now) {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	if err := store.Delete(ctx, "orders"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "orders"); !domain.IsSnapshotNotFound(err) {
		t.Fatalf("expected ErrSnapshotNotFound after delete, got %v", err)
	}

	// Повторное удаление — no-op.
	if err := store.Delete(ctx, "orders"); err != nil {
		t.Fatalf("repeated delete: %v", err)
	}
}

func TestSnapshotStore_CopiesData(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSnapshotStore()

	raw := []byte(`{"n":1}`)
	if err := store.Set(ctx, "k", domain.Snapshot{Data: raw, Timestamp: time.Now()}); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw[2] = 'x'

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Data) != `{"n":1}` {
		t.Fatalf("stored data mutated externally: %s", got.Data)
	}
}

func TestSnapshotStore_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSnapshotStore()
	now := time.Now().UTC()

	fixtures := map[string]time.Time{
		"old-1":  now.Add(-48 * time.Hour),
		"old-2":  now.Add(-25 * time.Hour),
		"recent": now.Add(-time.Minute),
	}
	for key, ts := range fixtures {
		if err := store.Set(ctx, key, domain.Snapshot{Data: json.RawMessage(`{}`), Timestamp: ts}); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	deleted, err := store.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	if _, err := store.Get(ctx, "recent"); err != nil {
		t.Fatalf("recent snapshot must survive: %v", err)
	}
	if _, err := store.Get(ctx, "old-1"); !domain.IsSnapshotNotFound(err) {
		t.Fatalf("old snapshot must be gone, got %v", err)
	}
}
