package pipeline_test

import (
	"testing"
	"time"

	"vocalis/internal/pipeline"
)

func TestLimiterEnforcesCeiling(t *testing.T) {
	limiter := pipeline.NewLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("start %d should be allowed", i+1)
		}
	}
	if limiter.Allow() {
		t.Fatal("fourth start should be refused inside the window")
	}
}

func TestLimiterRefundReturnsStart(t *testing.T) {
	limiter := pipeline.NewLimiter(1, time.Hour)

	if !limiter.Allow() {
		t.Fatal("first start should be allowed")
	}
	limiter.Refund()
	if !limiter.Allow() {
		t.Fatal("refunded start should be allowed again")
	}
	if limiter.Allow() {
		t.Fatal("ceiling should still hold after the refund is spent")
	}

	limiter.Refund()
	limiter.Refund()
	// Refunding an empty window must not panic or go negative.
	if !limiter.Allow() {
		t.Fatal("start should be allowed after refunds")
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	limiter := pipeline.NewLimiter(1, 50*time.Millisecond)

	if !limiter.Allow() {
		t.Fatal("first start should be allowed")
	}
	if limiter.Allow() {
		t.Fatal("second start should be refused")
	}

	time.Sleep(80 * time.Millisecond)
	if !limiter.Allow() {
		t.Fatal("start should be allowed after the window slides")
	}
}
