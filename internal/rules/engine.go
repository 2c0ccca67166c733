package rules

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"github.com/couchcryptid/crop-advisory-service/internal/observability"
)

const (
	// safetyWindow is how many leading hourly points the farm-wide check inspects.
	safetyWindow = 3

	// DefaultSafetyWindLimit is the farm-wide wind speed (km/h) above which
	// field work is unsafe.
	DefaultSafetyWindLimit = 60.0
)

// Engine evaluates the rule catalog and the water-deficit model.
type Engine struct {
	rules           []Rule
	safetyWindLimit float64
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules replaces the default rule catalog.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithSafetyWindLimit sets the farm-wide safety wind threshold in km/h.
func WithSafetyWindLimit(limit float64) Option {
	return func(e *Engine) { e.safetyWindLimit = limit }
}

// NewEngine creates an Engine with the default rule catalog.
func NewEngine(logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Engine {
	e := &Engine{
		rules:           DefaultRules(),
		safetyWindLimit: DefaultSafetyWindLimit,
		logger:          logger,
		metrics:         metrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns the candidate recommendations for one field. The params
// must belong to the field's crop; nothing fires otherwise. A field at READY
// only ever receives the harvest-readiness recommendation.
func (e *Engine) Evaluate(params domain.AdjustedParameters, field domain.FieldState, snap domain.WeatherSnapshot) []domain.Recommendation {
	if field.CropType == "" || field.CropType != params.CropType || len(snap.Forecast) == 0 {
		return nil
	}
	stage := field.GrowthStage
	if stage == "" {
		stage = domain.StageYoung
	}

	var recs []domain.Recommendation
	switch snap.Granularity {
	case domain.GranularityCurrent:
		if stage != domain.StageReady {
			recs = e.applyRules(params, field, snap, snap.Forecast[:1])
		}
	case domain.GranularityDaily:
		if stage != domain.StageReady {
			recs = e.applyRules(params, field, snap, snap.Forecast)
		}
	case domain.GranularityHourly:
		if rec, ok := e.irrigation(params, field, stage, snap); ok {
			recs = append(recs, rec)
		}
	}

	for _, r := range recs {
		e.metrics.RulesFired.WithLabelValues(string(snap.Granularity), string(r.Type)).Inc()
	}
	return recs
}

// EvaluateFarm returns farm-wide recommendations that do not depend on any
// field. Only hourly snapshots are inspected.
func (e *Engine) EvaluateFarm(snap domain.WeatherSnapshot) []domain.Recommendation {
	if snap.Granularity != domain.GranularityHourly {
		return nil
	}
	window := snap.Forecast
	if len(window) > safetyWindow {
		window = window[:safetyWindow]
	}

	var peak domain.Observation
	found := false
	for _, o := range window {
		if o.WindSpeed > e.safetyWindLimit && (!found || o.WindSpeed > peak.WindSpeed) {
			peak = o
			found = true
		}
	}
	if !found {
		return nil
	}

	rec := e.newRecommendation(snap, "", "", domain.SafetyAlert, peak.Time)
	rec.Advice = "SUSPEND_FIELD_WORK_AND_SECURE_EQUIPMENT"
	rec.Reasoning = fmt.Sprintf("Wind speed of %.1f km/h expected within %d hours, above the %.1f km/h safety limit.",
		peak.WindSpeed, safetyWindow, e.safetyWindLimit)
	rec.Metrics[domain.MetricWindSpeed] = peak.WindSpeed
	rec.Metrics[domain.MetricTemperature] = peak.Temperature
	e.metrics.RulesFired.WithLabelValues(string(snap.Granularity), string(rec.Type)).Inc()
	return []domain.Recommendation{rec}
}

func (e *Engine) applyRules(params domain.AdjustedParameters, field domain.FieldState, snap domain.WeatherSnapshot, points []domain.Observation) []domain.Recommendation {
	var recs []domain.Recommendation
	for _, obs := range points {
		for _, r := range e.rules {
			if r.Crop != params.CropType || r.Granularity != snap.Granularity {
				continue
			}
			if !r.Matches(params, obs) {
				continue
			}
			e.logger.Debug("rule fired",
				"rule", r.Name,
				"farm_id", field.FarmID,
				"field_id", field.FieldID,
			)
			recs = append(recs, e.fire(r, params, field, snap, obs))
		}
	}
	return recs
}

func (e *Engine) fire(r Rule, params domain.AdjustedParameters, field domain.FieldState, snap domain.WeatherSnapshot, obs domain.Observation) domain.Recommendation {
	rec := e.newRecommendation(snap, field.FieldID, field.CropType, r.Type, obs.Time)
	rec.Advice = r.Advice
	if r.Reason != nil {
		rec.Reasoning = r.Reason(Facts{Params: params, Field: field, Obs: obs})
	}
	for k, v := range r.metrics(obs) {
		rec.Metrics[k] = v
	}
	if snap.Granularity == domain.GranularityDaily && !obs.Time.IsZero() {
		rec.Metrics[domain.MetricForecastDate] = float64(obs.Time.Unix())
	}
	return rec
}

func (e *Engine) irrigation(params domain.AdjustedParameters, field domain.FieldState, stage domain.GrowthStage, snap domain.WeatherSnapshot) (domain.Recommendation, bool) {
	agg := snap.Aggregate()
	wb := ComputeDeficit(params, stage, agg, snap.SoilType)
	typ, ok := ClassifyIrrigation(params, stage, agg, wb)
	if !ok {
		return domain.Recommendation{}, false
	}

	rec := e.newRecommendation(snap, field.FieldID, field.CropType, typ, snap.ObservedAt)
	rec.Advice = irrigationAdvice(typ, field.CropType)
	rec.Reasoning = irrigationReason(typ, params, agg, wb)
	rec.Metrics[domain.MetricDeficitAmount] = wb.Deficit
	rec.Metrics[domain.MetricPlantDemand] = wb.PlantDemand
	rec.Metrics[domain.MetricEffectiveRain] = wb.EffectiveRain
	rec.Metrics[domain.MetricTotalRain] = agg.TotalRain
	rec.Metrics[domain.MetricSoilMoisture] = agg.SoilMoisture
	rec.Metrics[domain.MetricTemperature] = agg.AvgTemperature
	return rec, true
}

func (e *Engine) newRecommendation(snap domain.WeatherSnapshot, fieldID string, crop domain.CropType, typ domain.RecommendationType, observed time.Time) domain.Recommendation {
	rec := domain.NewRecommendation(snap.FarmID, fieldID, crop, typ)
	rec.UserID = snap.UserID
	rec.Email = snap.Email
	rec.WeatherTimestamp = snap.ObservedAt
	if !observed.IsZero() {
		rec.WeatherTimestamp = observed
	}
	return rec
}
