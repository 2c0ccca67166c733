package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"github.com/couchcryptid/crop-advisory-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second

	// maxAttempts bounds how often a message is retried after a transient
	// handler error before it is dropped.
	maxAttempts = 3
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Handler processes a single raw event. Errors wrapping
// domain.ErrMalformedMessage are permanent; anything else is retried.
type Handler interface {
	Handle(ctx context.Context, raw domain.RawEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, raw domain.RawEvent) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, raw domain.RawEvent) error { return f(ctx, raw) }

// Pipeline orchestrates the extract-handle-commit loop for one topic.
type Pipeline struct {
	name      string
	extractor BatchExtractor
	handler   Handler
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a named Pipeline. The name labels its logs and metrics.
func New(name string, e BatchExtractor, h Handler, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		name:      name,
		extractor: e,
		handler:   h,
		logger:    logger.With("pipeline", name),
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil if the pipeline has handled at least one batch,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return fmt.Errorf("%s pipeline has not processed any messages yet", p.name)
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	running := p.metrics.PipelineRunning.WithLabelValues(p.name)
	running.Set(1)
	defer running.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-handle cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.WithLabelValues(p.name).Add(float64(len(rawBatch)))
	p.metrics.BatchSize.WithLabelValues(p.name).Observe(float64(len(rawBatch)))
	*backoff = initialBackoff

	for _, raw := range rawBatch {
		if !p.handleWithRetry(ctx, raw) {
			return false
		}
		p.commitOffset(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return true
}

// handleWithRetry hands raw to the handler, retrying transient failures with
// backoff. Messages that are malformed or keep failing are logged and dropped.
// Returns false only when ctx is cancelled.
func (p *Pipeline) handleWithRetry(ctx context.Context, raw domain.RawEvent) bool {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := p.handler.Handle(ctx, raw)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		if errors.Is(err, domain.ErrMalformedMessage) {
			p.logger.Warn("malformed message, skipping", append(raw.LogAttrs(), "error", err)...)
			p.metrics.HandleErrors.WithLabelValues(p.name).Inc()
			return true
		}
		if attempt >= maxAttempts {
			p.logger.Error("handle failed, dropping message",
				append(raw.LogAttrs(), "error", err, "attempts", attempt)...)
			p.metrics.HandleErrors.WithLabelValues(p.name).Inc()
			return true
		}

		p.logger.Warn("handle failed, retrying", append(raw.LogAttrs(), "error", err, "attempt", attempt)...)
		if !p.backoffOrStop(ctx, &backoff) {
			return false
		}
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", append(raw.LogAttrs(), "error", err)...)
	}
}
