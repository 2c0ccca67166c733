package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/crop-advisory-service/internal/crop"
	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"github.com/couchcryptid/crop-advisory-service/internal/notify"
	"github.com/couchcryptid/crop-advisory-service/internal/observability"
)

// FieldSource lists the fields of a farm that currently carry a crop.
type FieldSource interface {
	FieldsForFarm(ctx context.Context, farmID string) ([]domain.FieldState, error)
}

// FeedbackSource returns a farm's feedback factors keyed by parameter name.
type FeedbackSource interface {
	FeedbackFactors(ctx context.Context, farmID string) (map[string]float64, error)
}

// ProfileSource looks up the static profile of a crop.
type ProfileSource interface {
	Profile(ct domain.CropType) (domain.CropProfile, bool)
}

// Evaluator produces candidate recommendations from a weather snapshot.
type Evaluator interface {
	Evaluate(params domain.AdjustedParameters, field domain.FieldState, snap domain.WeatherSnapshot) []domain.Recommendation
	EvaluateFarm(snap domain.WeatherSnapshot) []domain.Recommendation
}

// Notifier passes a candidate recommendation through dedup and delivery.
type Notifier interface {
	Process(ctx context.Context, rec domain.Recommendation) notify.Outcome
}

// WeatherHandler evaluates weather snapshots for every field of the farm.
type WeatherHandler struct {
	fields   FieldSource
	feedback FeedbackSource
	profiles ProfileSource
	engine   Evaluator
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewWeatherHandler creates a WeatherHandler.
func NewWeatherHandler(fields FieldSource, feedback FeedbackSource, profiles ProfileSource, engine Evaluator, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics) *WeatherHandler {
	return &WeatherHandler{
		fields:   fields,
		feedback: feedback,
		profiles: profiles,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handle parses one weather message and runs the resulting recommendations
// through the notifier. Only store lookups fail the message; nothing is
// delivered before they succeed.
func (h *WeatherHandler) Handle(ctx context.Context, raw domain.RawEvent) error {
	snap, err := domain.ParseWeatherMessage(raw)
	if err != nil {
		return err
	}

	fields, err := h.fieldsFor(ctx, snap)
	if err != nil {
		return err
	}
	factors := h.factorsFor(ctx, snap.FarmID)

	recs := h.engine.EvaluateFarm(snap)
	for _, f := range fields {
		profile, ok := h.profiles.Profile(f.CropType)
		if !ok {
			h.logger.Warn("unknown crop type, skipping field",
				"farm_id", f.FarmID,
				"field_id", f.FieldID,
				"crop_type", f.CropType,
			)
			h.metrics.UnknownCrops.Inc()
			continue
		}
		recs = append(recs, h.engine.Evaluate(crop.Adjust(profile, factors), f, snap)...)
	}

	counts := map[notify.Outcome]int{}
	for _, rec := range recs {
		counts[h.notifier.Process(ctx, rec)]++
	}

	h.logger.Debug("weather snapshot evaluated",
		"farm_id", snap.FarmID,
		"granularity", snap.Granularity,
		"fields", len(fields),
		"candidates", len(recs),
		"emitted", counts[notify.OutcomeEmitted],
		"suppressed", counts[notify.OutcomeSuppressed],
	)
	return nil
}

// fieldsFor prefers stored field state. Snapshots for farms the store does not
// know fall back to the fields attached to the message, and then to one
// farm-level entry per listed crop.
func (h *WeatherHandler) fieldsFor(ctx context.Context, snap domain.WeatherSnapshot) ([]domain.FieldState, error) {
	stored, err := h.fields.FieldsForFarm(ctx, snap.FarmID)
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	if len(stored) > 0 {
		return stored, nil
	}
	if len(snap.Fields) > 0 {
		return snap.Fields, nil
	}

	out := make([]domain.FieldState, 0, len(snap.Crops))
	for _, name := range snap.Crops {
		ct, err := domain.ParseCropType(name)
		if err != nil {
			h.logger.Warn("unknown crop in snapshot", "farm_id", snap.FarmID, "crop", name)
			h.metrics.UnknownCrops.Inc()
			continue
		}
		out = append(out, domain.FieldState{FarmID: snap.FarmID, CropType: ct, Status: domain.FieldPlanted})
	}
	return out, nil
}

func (h *WeatherHandler) factorsFor(ctx context.Context, farmID string) map[string]float64 {
	factors, err := h.feedback.FeedbackFactors(ctx, farmID)
	if err != nil {
		h.logger.Warn("feedback lookup failed, using unadjusted parameters", "farm_id", farmID, "error", err)
		h.metrics.FeedbackErrors.Inc()
		return nil
	}
	return factors
}
