// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PostsPublished   *prometheus.CounterVec // labeled by credential tier
	PostsFailed      prometheus.Counter
	FallbackAttempts prometheus.Counter
	RepliesPublished prometheus.Counter
	RepliesFailed    prometheus.Counter
	CommentsMirrored prometheus.Counter
	WebhookBatches   prometheus.Counter

	// Histograms (seconds)
	PublishDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PostsPublished = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bridge_posts_published_total", Help: "Posts published to the page, by credential tier"}, []string{"tier"})
		PostsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_posts_failed_total", Help: "Trigger messages that failed to publish"})
		FallbackAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_fallback_attempts_total", Help: "Publishes retried with the page credential after a user credential failure"})
		RepliesPublished = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_replies_published_total", Help: "Thread replies mirrored as page comments"})
		RepliesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_replies_failed_total", Help: "Thread replies that failed to publish as comments"})
		CommentsMirrored = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_comments_mirrored_total", Help: "External comments mirrored into chat threads"})
		WebhookBatches = promauto.NewCounter(prometheus.CounterOpts{Name: "bridge_webhook_batches_total", Help: "Webhook deliveries processed"})
		PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bridge_publish_duration_seconds", Help: "End-to-end publish duration including fallback attempts", Buckets: prometheus.DefBuckets})
	})
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
