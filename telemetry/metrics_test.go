package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := PostsFailed
	Init()
	if PostsFailed != first {
		t.Fatal("Init re-registered metrics")
	}
	if PostsPublished == nil || PublishDuration == nil || CommentsMirrored == nil {
		t.Fatal("expected all metrics initialized")
	}
}

func TestCounterIncrements(t *testing.T) {
	Init()
	// Smoke test that the vec accepts the tier labels the bridge emits.
	PostsPublished.WithLabelValues("attempt_user").Inc()
	PostsPublished.WithLabelValues("attempt_page").Inc()
	FallbackAttempts.Inc()
	WebhookBatches.Inc()
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	Init()
	d := TimeFunc(PublishDuration, func() { time.Sleep(5 * time.Millisecond) })
	if d < 5*time.Millisecond {
		t.Fatalf("expected at least 5ms, got %v", d)
	}
	if TimeFunc(nil, func() {}) < 0 {
		t.Fatal("nil observer should still measure")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Fatal("expected empty correlation on fresh context")
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Fatalf("got %q", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Fatal("expected logger")
	}
}
