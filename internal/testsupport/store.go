package testsupport

import (
	"testing"

	"vocalis/internal/config"
	"vocalis/internal/queue"
	"vocalis/internal/submission"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenSubmissions opens a submission.Store for tests and registers cleanup.
func MustOpenSubmissions(t testing.TB, cfg *config.Config) *submission.Store {
	t.Helper()

	store, err := submission.Open(cfg)
	if err != nil {
		t.Fatalf("submission.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
