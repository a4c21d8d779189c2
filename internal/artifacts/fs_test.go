package artifacts_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"vocalis/internal/artifacts"
	"vocalis/internal/services"
)

func newFSStore(t *testing.T) *artifacts.FSStore {
	t.Helper()
	store, err := artifacts.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	return store
}

func TestPutOpenRoundTrip(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()

	payload := []byte("RIFF....WAVEfmt ")
	if err := store.Put(ctx, "recordings/sub-1.wav", bytes.NewReader(payload), int64(len(payload)), "audio/wav"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	size, err := store.Stat(ctx, "recordings/sub-1.wav")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if size != int64(len(payload)) {
		t.Fatalf("size = %d, want %d", size, len(payload))
	}

	rc, err := store.Open(ctx, "recordings/sub-1.wav")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %q", got)
	}
}

func TestOpenMissingReturnsNotFound(t *testing.T) {
	store := newFSStore(t)

	_, err := store.Open(context.Background(), "recordings/missing.wav")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Stat(context.Background(), "recordings/missing.wav"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Stat, got %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()

	payload := []byte("data")
	if err := store.Put(ctx, "a.wav", bytes.NewReader(payload), int64(len(payload)), ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Remove(ctx, "a.wav"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := store.Remove(ctx, "a.wav"); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()

	for _, key := range []string{"../escape.wav", "/abs.wav", "", "."} {
		if err := store.Put(ctx, key, bytes.NewReader([]byte("x")), 1, ""); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestPutReplacesExisting(t *testing.T) {
	store := newFSStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "a.wav", bytes.NewReader([]byte("old")), 3, ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "a.wav", bytes.NewReader([]byte("newer")), 5, ""); err != nil {
		t.Fatalf("replace Put failed: %v", err)
	}

	size, err := store.Stat(ctx, "a.wav")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if size != 5 {
		t.Fatalf("size = %d, want 5", size)
	}
}
