// Package growth advances planted fields through their growth stages based
// on days since planting.
package growth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"github.com/couchcryptid/crop-advisory-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// FieldStore reads planted fields and commits stage changes one field at a time.
// UpdateGrowth returns domain.ErrFieldChanged when the field no longer matches
// the listed state.
type FieldStore interface {
	ListPlanted(ctx context.Context) ([]domain.FieldState, error)
	UpdateGrowth(ctx context.Context, listed domain.FieldState, stage domain.GrowthStage, status domain.FieldStatus) error
}

// ProfileSource looks up the day thresholds for a crop.
type ProfileSource interface {
	Profile(ct domain.CropType) (domain.CropProfile, bool)
}

// RunResult summarises one scheduler scan.
type RunResult struct {
	Scanned      int
	Transitioned int
	Skipped      int
	Failed       int
}

// Scheduler recomputes growth stages for every planted field.
type Scheduler struct {
	fields   FieldStore
	profiles ProfileSource
	clock    clockwork.Clock
	location *time.Location
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu sync.Mutex // serialises runs
}

// NewScheduler creates a Scheduler. Calendar days are counted in loc.
func NewScheduler(fields FieldStore, profiles ProfileSource, clock clockwork.Clock, loc *time.Location, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		fields:   fields,
		profiles: profiles,
		clock:    clock,
		location: loc,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start runs a scan immediately and then once per interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.runAndLog(ctx)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("growth stage scan failed", "error", err)
		}
		return
	}
	s.logger.Info("growth stage scan complete",
		"scanned", res.Scanned,
		"transitioned", res.Transitioned,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
}

// RunOnce scans all planted fields once. A field whose crop is unknown, or
// that was harvested or replanted while the scan ran, is skipped; a failed
// commit is logged and the scan continues.
// Stages only move forward.
func (s *Scheduler) RunOnce(ctx context.Context) (RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, err := s.fields.ListPlanted(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("list planted fields: %w", err)
	}

	today := s.clock.Now()
	var res RunResult
	for _, f := range fields {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if f.Status != domain.FieldPlanted || f.PlantedDate == nil {
			continue
		}
		res.Scanned++

		profile, ok := s.profiles.Profile(f.CropType)
		if !ok {
			s.logger.Warn("no crop profile for planted field, skipping",
				"farm_id", f.FarmID,
				"field_id", f.FieldID,
				"crop_type", f.CropType,
			)
			s.metrics.UnknownCrops.Inc()
			res.Skipped++
			continue
		}

		days := DaysBetween(*f.PlantedDate, today, s.location)
		next := profile.StageForDays(days)
		if next.Rank() <= f.GrowthStage.Rank() {
			continue
		}

		status := domain.FieldPlanted
		if next == domain.StageReady {
			status = domain.FieldReady
		}
		err := s.fields.UpdateGrowth(ctx, f, next, status)
		if errors.Is(err, domain.ErrFieldChanged) {
			s.logger.Info("field changed during scan, skipping",
				"farm_id", f.FarmID,
				"field_id", f.FieldID,
			)
			res.Skipped++
			continue
		}
		if err != nil {
			s.logger.Error("commit growth stage failed",
				"error", err,
				"farm_id", f.FarmID,
				"field_id", f.FieldID,
			)
			res.Failed++
			continue
		}

		s.logger.Info("growth stage advanced",
			"farm_id", f.FarmID,
			"field_id", f.FieldID,
			"crop_type", f.CropType,
			"days_since_planting", days,
			"from", f.GrowthStage,
			"to", next,
		)
		s.metrics.StageTransitions.WithLabelValues(string(next)).Inc()
		res.Transitioned++
	}

	s.metrics.SchedulerRuns.Inc()
	return res, nil
}

// DaysBetween counts calendar days from planted to today in loc.
func DaysBetween(planted, today time.Time, loc *time.Location) int {
	from := calendarDate(planted, loc)
	to := calendarDate(today, loc)
	return int(to.Sub(from).Hours() / 24)
}

func calendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
