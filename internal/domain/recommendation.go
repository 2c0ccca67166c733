package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecommendationType classifies a recommendation for routing and dedup.
type RecommendationType string

const (
	FrostAlert           RecommendationType = "FROST_ALERT"
	HeatAlert            RecommendationType = "HEAT_ALERT"
	StormAlert           RecommendationType = "STORM_ALERT"
	SafetyAlert          RecommendationType = "SAFETY_ALERT"
	IrrigateNow          RecommendationType = "IRRIGATE_NOW"
	IrrigateSoon         RecommendationType = "IRRIGATE_SOON"
	DelayIrrigation      RecommendationType = "DELAY_IRRIGATION"
	MonitorConditions    RecommendationType = "MONITOR_CONDITIONS"
	ContinueNormal       RecommendationType = "CONTINUE_NORMAL"
	DelayOperations      RecommendationType = "DELAY_OPERATIONS"
	DiseasePrevention    RecommendationType = "DISEASE_PREVENTION"
	NutrientCheck        RecommendationType = "NUTRIENT_CHECK"
	PlanningAlert        RecommendationType = "PLANNING_ALERT"
	HeatStressPrevention RecommendationType = "HEAT_STRESS_PREVENTION"
	PestRisk             RecommendationType = "PEST_RISK"
	ReadyToHarvest       RecommendationType = "READY_TO_HARVEST"
)

// Lane is the delivery path a recommendation takes.
type Lane string

const (
	LaneAlert          Lane = "alert"
	LaneRecommendation Lane = "recommendation"
)

// Lane reports the delivery lane. Unknown types use the recommendation lane.
func (t RecommendationType) Lane() Lane {
	switch t {
	case FrostAlert, HeatAlert, StormAlert, SafetyAlert, IrrigateNow:
		return LaneAlert
	default:
		return LaneRecommendation
	}
}

// Informational reports whether the type carries no magnitude worth
// re-announcing while a previous notification is still cached.
func (t RecommendationType) Informational() bool {
	switch t {
	case MonitorConditions, ContinueNormal, ReadyToHarvest, DiseasePrevention,
		PestRisk, NutrientCheck, PlanningAlert, HeatStressPrevention:
		return true
	default:
		return false
	}
}

// Metric names shared between the rule engine and the dedup cache.
const (
	MetricTemperature   = "temperature"
	MetricDeficitAmount = "deficit_amount"
	MetricRain          = "rain"
	MetricWindSpeed     = "wind_speed"
	MetricForecastDate  = "forecast_date"
	MetricPlantDemand   = "plant_demand"
	MetricEffectiveRain = "effective_rain"
	MetricTotalRain     = "total_rain"
	MetricSoilMoisture  = "soil_moisture"
)

// Recommendation is one piece of advice for a field, or for a whole farm
// when FieldID is empty.
type Recommendation struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id,omitempty"`
	Email            string             `json:"email,omitempty"`
	FarmID           string             `json:"farm_id"`
	FieldID          string             `json:"field_id,omitempty"`
	CropType         CropType           `json:"recommended_seed,omitempty"`
	Type             RecommendationType `json:"recommendation_type"`
	Advice           string             `json:"advice"`
	Reasoning        string             `json:"reasoning"`
	WeatherTimestamp time.Time          `json:"weather_timestamp"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// NewRecommendation stamps a recommendation with a fresh ID and creation time.
func NewRecommendation(farmID, fieldID string, crop CropType, typ RecommendationType) Recommendation {
	return Recommendation{
		ID:        uuid.NewString(),
		FarmID:    farmID,
		FieldID:   fieldID,
		CropType:  crop,
		Type:      typ,
		Metrics:   map[string]float64{},
		CreatedAt: clock.Now().UTC(),
	}
}

// FarmWide reports whether the recommendation targets the whole farm.
func (r Recommendation) FarmWide() bool { return r.FieldID == "" }
