package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"github.com/couchcryptid/crop-advisory-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// FieldWriter applies field lifecycle changes.
type FieldWriter interface {
	UpsertPlanted(ctx context.Context, farmID, fieldID string, crop domain.CropType, planted time.Time) error
	MarkHarvested(ctx context.Context, farmID, fieldID string, answers []domain.FeedbackAnswer) error
}

// FieldClearer drops cached notifications for a field.
type FieldClearer interface {
	ClearField(farmID, fieldID string) int
}

// FarmEventHandler applies planting and harvest events.
type FarmEventHandler struct {
	fields  FieldWriter
	cache   FieldClearer
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFarmEventHandler creates a FarmEventHandler.
func NewFarmEventHandler(fields FieldWriter, cache FieldClearer, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *FarmEventHandler {
	return &FarmEventHandler{
		fields:  fields,
		cache:   cache,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Handle applies one farm lifecycle event.
func (h *FarmEventHandler) Handle(ctx context.Context, raw domain.RawEvent) error {
	ev, err := domain.ParseFarmEvent(raw)
	if err != nil {
		return err
	}

	switch ev.Event {
	case domain.EventFieldPlanted:
		return h.planted(ctx, ev)
	case domain.EventFieldHarvested:
		return h.harvested(ctx, ev)
	}
	return nil
}

func (h *FarmEventHandler) planted(ctx context.Context, ev domain.FarmEvent) error {
	ct, err := domain.ParseCropType(ev.CropType)
	if err != nil {
		h.metrics.UnknownCrops.Inc()
		return fmt.Errorf("%w: %w", domain.ErrMalformedMessage, err)
	}
	plantedOn := ev.PlantedOn(h.clock.Now().UTC())
	if err := h.fields.UpsertPlanted(ctx, ev.FarmID, ev.FieldID, ct, plantedOn); err != nil {
		return err
	}
	h.logger.Info("field planted",
		"farm_id", ev.FarmID,
		"field_id", ev.FieldID,
		"crop_type", ct,
		"planted_date", plantedOn.Format(time.DateOnly),
	)
	return nil
}

func (h *FarmEventHandler) harvested(ctx context.Context, ev domain.FarmEvent) error {
	if err := h.fields.MarkHarvested(ctx, ev.FarmID, ev.FieldID, ev.Answers); err != nil {
		return err
	}
	cleared := h.cache.ClearField(ev.FarmID, ev.FieldID)
	h.logger.Info("field harvested",
		"farm_id", ev.FarmID,
		"field_id", ev.FieldID,
		"feedback_answers", len(ev.Answers),
		"cache_entries_cleared", cleared,
	)
	return nil
}
