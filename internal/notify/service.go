// Package notify decides which recommendations reach a farmer, routes them
// to the push and email channels, and tracks alert acknowledgements.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"github.com/couchcryptid/crop-advisory-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Publisher pushes a notification to a logical destination such as
// "alerts/{farmId}".
type Publisher interface {
	Publish(ctx context.Context, destination string, rec domain.Recommendation) error
}

// Mailer sends an email.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// HistoryStore persists emitted recommendations.
type HistoryStore interface {
	SaveRecommendation(ctx context.Context, rec domain.Recommendation) error
}

// Outcome is the result of processing one recommendation.
type Outcome string

const (
	OutcomeEmitted    Outcome = "emitted"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeDropped    Outcome = "dropped"
)

const alertSubject = "Farm Alert!"

// Options tunes the dedup cache and acknowledgement tracking.
type Options struct {
	TTL              time.Duration
	Capacity         int
	AckTimeout       time.Duration
	SweepInterval    time.Duration
	TemperatureDelta float64
	DeficitDelta     float64
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		TTL:              24 * time.Hour,
		Capacity:         10000,
		AckTimeout:       5 * time.Minute,
		SweepInterval:    10 * time.Second,
		TemperatureDelta: 2.0,
		DeficitDelta:     2.0,
	}
}

// Service deduplicates and delivers recommendations.
type Service struct {
	cache     *dedupCache
	pending   sync.Map // recommendation ID -> time.Time sent
	nPending  atomic.Int64
	publisher Publisher
	mailer    Mailer
	history   HistoryStore
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
}

// NewService creates a Service. Zero-valued options fall back to defaults.
func NewService(pub Publisher, mailer Mailer, history HistoryStore, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Service {
	def := DefaultOptions()
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = def.Capacity
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = def.AckTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}
	if opts.TemperatureDelta <= 0 {
		opts.TemperatureDelta = def.TemperatureDelta
	}
	if opts.DeficitDelta <= 0 {
		opts.DeficitDelta = def.DeficitDelta
	}
	return &Service{
		cache:     newDedupCache(opts.Capacity, opts.TTL, clock),
		publisher: pub,
		mailer:    mailer,
		history:   history,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// Process decides whether rec is new or significantly changed and, if so,
// delivers and persists it. Delivery and persistence failures are logged
// and never change the outcome.
func (s *Service) Process(ctx context.Context, rec domain.Recommendation) Outcome {
	lane := rec.Type.Lane()
	if rec.FarmID == "" {
		s.logger.Warn("recommendation without farm id dropped",
			"recommendation_id", rec.ID,
			"recommendation_type", rec.Type,
		)
		s.metrics.Notifications.WithLabelValues(string(OutcomeDropped), string(lane)).Inc()
		return OutcomeDropped
	}

	key := keyFor(rec)
	emit := s.cache.decide(key, rec, func(prev *domain.Recommendation) bool {
		return prev == nil || s.significantChange(*prev, rec)
	})
	s.metrics.DedupCacheEntries.Set(float64(s.cache.len()))

	if !emit {
		s.logger.Debug("recommendation suppressed", "key", key.String())
		s.metrics.Notifications.WithLabelValues(string(OutcomeSuppressed), string(lane)).Inc()
		return OutcomeSuppressed
	}

	s.deliver(ctx, rec, lane)
	if err := s.history.SaveRecommendation(ctx, rec); err != nil {
		s.logger.Error("persist recommendation failed", "error", err, "recommendation_id", rec.ID)
		s.metrics.DeliveryFailures.WithLabelValues("history").Inc()
	}

	s.logger.Info("notification emitted",
		"farm_id", rec.FarmID,
		"field_id", rec.FieldID,
		"recommendation_type", rec.Type,
		"lane", lane,
	)
	s.metrics.Notifications.WithLabelValues(string(OutcomeEmitted), string(lane)).Inc()
	return OutcomeEmitted
}

// significantChange reports whether next differs enough from the cached
// prev to be announced again. Informational types never are; frost and heat
// compare temperature, irrigation types compare the water deficit. Other
// types stay suppressed until the cached entry expires.
func (s *Service) significantChange(prev, next domain.Recommendation) bool {
	if next.Type.Informational() {
		return false
	}
	switch next.Type {
	case domain.FrostAlert, domain.HeatAlert:
		return metricDelta(prev, next, domain.MetricTemperature) >= s.opts.TemperatureDelta
	case domain.IrrigateNow, domain.IrrigateSoon, domain.DelayIrrigation:
		return metricDelta(prev, next, domain.MetricDeficitAmount) >= s.opts.DeficitDelta
	default:
		return false
	}
}

func metricDelta(prev, next domain.Recommendation, name string) float64 {
	return math.Abs(next.Metrics[name] - prev.Metrics[name])
}

func (s *Service) deliver(ctx context.Context, rec domain.Recommendation, lane domain.Lane) {
	if lane != domain.LaneAlert {
		if err := s.publisher.Publish(ctx, "recommendations/"+rec.FarmID, rec); err != nil {
			s.deliveryFailed("push", rec, err)
		}
		return
	}

	if err := s.publisher.Publish(ctx, "alerts/"+rec.FarmID, rec); err != nil {
		s.deliveryFailed("push", rec, err)
	}
	if rec.Email != "" {
		if err := s.mailer.SendEmail(ctx, rec.Email, alertSubject, alertBody(rec)); err != nil {
			s.deliveryFailed("email", rec, err)
		}
	}
	s.pending.Store(rec.ID, s.clock.Now())
	s.metrics.PendingAcks.Set(float64(s.nPending.Add(1)))
}

func (s *Service) deliveryFailed(sink string, rec domain.Recommendation, err error) {
	s.logger.Warn("notification delivery failed",
		"sink", sink,
		"error", err,
		"recommendation_id", rec.ID,
		"farm_id", rec.FarmID,
	)
	s.metrics.DeliveryFailures.WithLabelValues(sink).Inc()
}

func alertBody(rec domain.Recommendation) string {
	target := string(rec.CropType)
	if target == "" {
		target = "all fields"
	}
	return fmt.Sprintf("Alert Type: %s for %s\nDetails: %s", rec.Type, target, rec.Reasoning)
}

// Acknowledge removes a pending alert. It returns false when the ID is
// unknown or already timed out.
func (s *Service) Acknowledge(id string) bool {
	if _, ok := s.pending.LoadAndDelete(id); !ok {
		s.metrics.Acks.WithLabelValues("unknown").Inc()
		return false
	}
	s.metrics.PendingAcks.Set(float64(s.nPending.Add(-1)))
	s.metrics.Acks.WithLabelValues("acknowledged").Inc()
	s.logger.Info("alert acknowledged", "recommendation_id", id)
	return true
}

// SweepPendingAcks drops alerts that were not acknowledged within the ack
// timeout and returns how many were removed. Each removal is atomic, so an
// acknowledgement racing the sweep is counted exactly once.
func (s *Service) SweepPendingAcks() int {
	now := s.clock.Now()
	removed := 0
	s.pending.Range(func(k, v any) bool {
		sentAt, _ := v.(time.Time)
		if now.Sub(sentAt) <= s.opts.AckTimeout {
			return true
		}
		if s.pending.CompareAndDelete(k, v) {
			removed++
			s.nPending.Add(-1)
			s.logger.Warn("alert not acknowledged in time", "recommendation_id", k, "sent_at", sentAt)
		}
		return true
	})
	if removed > 0 {
		s.metrics.Acks.WithLabelValues("expired").Add(float64(removed))
	}
	s.metrics.PendingAcks.Set(float64(s.nPending.Load()))
	return removed
}

// PendingAcks returns the number of alerts awaiting acknowledgement.
func (s *Service) PendingAcks() int {
	return int(s.nPending.Load())
}

// ClearField forgets every cached notification for a field so the next
// crop planted there starts fresh.
func (s *Service) ClearField(farmID, fieldID string) int {
	n := s.cache.clearField(farmID, fieldID)
	s.metrics.DedupCacheEntries.Set(float64(s.cache.len()))
	s.logger.Info("dedup cache cleared for field", "farm_id", farmID, "field_id", fieldID, "removed", n)
	return n
}

// Start runs the acknowledgement sweep until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	ticker := s.clock.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.SweepPendingAcks()
		}
	}
}
