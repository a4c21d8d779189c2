package notify_test

import (
	"context"
	"testing"
	"time"

	"vocalis/internal/notify"
	"vocalis/internal/submission"
)

func TestPublishAndFetchPerOwner(t *testing.T) {
	hub := notify.NewHub(16)
	ctx := context.Background()

	hub.Publish(ctx, notify.Event{
		Type:         notify.EventProcessing,
		SubmissionID: "sub-1",
		Owner:        "alice",
		Status:       submission.StatusProcessing,
	})
	hub.Publish(ctx, notify.Event{
		Type:         notify.EventCompleted,
		SubmissionID: "sub-2",
		Owner:        "bob",
		Status:       submission.StatusCompleted,
	})

	events, _, err := hub.Fetch(ctx, "alice", 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 1 || events[0].SubmissionID != "sub-1" {
		t.Fatalf("alice should only see her events, got %+v", events)
	}
	if events[0].Sequence == 0 {
		t.Fatal("events should carry a sequence number")
	}
	if events[0].Timestamp.IsZero() {
		t.Fatal("events should carry a timestamp")
	}
}

func TestFetchSinceSkipsDelivered(t *testing.T) {
	hub := notify.NewHub(16)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		hub.Publish(ctx, notify.Event{Type: notify.EventCompleted, SubmissionID: id, Owner: "alice"})
	}

	first, next, err := hub.Fetch(ctx, "alice", 0, 2, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 events, got %d", len(first))
	}

	rest, _, err := hub.Fetch(ctx, "alice", first[len(first)-1].Sequence, 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(rest) != 1 || rest[0].SubmissionID != "c" {
		t.Fatalf("expected remaining event c, got %+v", rest)
	}
	_ = next
}

func TestBufferDropsOldestWhenFull(t *testing.T) {
	hub := notify.NewHub(2)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		hub.Publish(ctx, notify.Event{Type: notify.EventCompleted, SubmissionID: id, Owner: "alice"})
	}

	events, _, err := hub.Fetch(ctx, "alice", 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected buffer cap of 2, got %d", len(events))
	}
	if events[0].SubmissionID != "b" || events[1].SubmissionID != "c" {
		t.Fatalf("expected oldest event dropped, got %+v", events)
	}
}

func TestFetchWaitWakesOnPublish(t *testing.T) {
	hub := notify.NewHub(16)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan []notify.Event, 1)
	go func() {
		events, _, err := hub.Fetch(ctx, "alice", 0, 10, true)
		if err != nil {
			t.Errorf("Fetch failed: %v", err)
		}
		done <- events
	}()

	time.Sleep(50 * time.Millisecond)
	hub.Publish(context.Background(), notify.Event{Type: notify.EventFailed, SubmissionID: "sub-1", Owner: "alice"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Type != notify.EventFailed {
			t.Fatalf("unexpected events %+v", events)
		}
	case <-ctx.Done():
		t.Fatal("Fetch did not wake on publish")
	}
}

func TestFetchWaitStopsOnContextCancel(t *testing.T) {
	hub := notify.NewHub(16)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := hub.Fetch(ctx, "alice", 0, 10, true)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch did not stop on cancel")
	}
}

func TestTailReturnsNewest(t *testing.T) {
	hub := notify.NewHub(16)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		hub.Publish(ctx, notify.Event{Type: notify.EventCompleted, SubmissionID: id, Owner: "alice"})
	}

	events, _ := hub.Tail("alice", 2)
	if len(events) != 2 || events[1].SubmissionID != "c" {
		t.Fatalf("unexpected tail %+v", events)
	}
}

func TestNopPublisherDiscards(t *testing.T) {
	pub := notify.NewNop()
	pub.Publish(context.Background(), notify.Event{Owner: "alice"})
}
