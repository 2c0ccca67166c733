package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Granularity is the time resolution of a weather snapshot.
type Granularity string

const (
	GranularityCurrent Granularity = "CURRENT"
	GranularityHourly  Granularity = "HOURLY"
	GranularityDaily   Granularity = "DAILY"
)

// ParseGranularity resolves a snapshot type case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToUpper(strings.TrimSpace(s))); g {
	case GranularityCurrent, GranularityHourly, GranularityDaily:
		return g, nil
	default:
		return "", fmt.Errorf("%w: invalid weather type %q", ErrMalformedMessage, s)
	}
}

// Observation is one point of a weather snapshot. Hourly and current points
// use the instantaneous fields; daily points use the Max/Min/Sum fields.
// Missing values are zero.
type Observation struct {
	Time          time.Time `json:"time"`
	Temperature   float64   `json:"temperature"`
	Rain          float64   `json:"rain"`
	Precipitation float64   `json:"precipitation"`
	WindSpeed     float64   `json:"wind_speed"`
	SoilMoisture  float64   `json:"soil_moisture"`
	ET0           float64   `json:"et0"`
	TempMax       float64   `json:"temp_max"`
	TempMin       float64   `json:"temp_min"`
	RainSum       float64   `json:"rain_sum"`
	WindSpeedMax  float64   `json:"wind_speed_max"`
}

// WeatherSnapshot is a forecast or observation for one farm.
type WeatherSnapshot struct {
	FarmID      string
	UserID      string
	Email       string
	Crops       []string
	Fields      []FieldState
	SoilType    SoilType
	Granularity Granularity
	ObservedAt  time.Time
	Forecast    []Observation
}

// DailyAggregate condenses an hourly forecast into the water-balance inputs.
type DailyAggregate struct {
	TotalET0       float64
	TotalRain      float64
	AvgTemperature float64
	SoilMoisture   float64
}

// Aggregate sums ET0 and precipitation across the forecast, averages the
// temperature and takes soil moisture from the first point.
func (s WeatherSnapshot) Aggregate() DailyAggregate {
	var agg DailyAggregate
	if len(s.Forecast) == 0 {
		return agg
	}
	var tempSum float64
	for _, o := range s.Forecast {
		agg.TotalET0 += o.ET0
		agg.TotalRain += o.Precipitation
		tempSum += o.Temperature
	}
	agg.AvgTemperature = tempSum / float64(len(s.Forecast))
	agg.SoilMoisture = s.Forecast[0].SoilMoisture
	return agg
}

type weatherMessage struct {
	UserID   string          `json:"user_id"`
	Email    string          `json:"email"`
	FarmID   string          `json:"farm_id"`
	Type     string          `json:"type"`
	SoilType string          `json:"soil_type"`
	Crops    []string        `json:"crops"`
	Fields   []fieldEntry    `json:"fields"`
	Forecast []forecastPoint `json:"forecast"`
}

// fieldEntry is the field list the ingestion service attaches to a snapshot.
type fieldEntry struct {
	FieldID     string `json:"field_id"`
	SeedType    string `json:"seed_type"`
	GrowthStage string `json:"growth_stage"`
}

// forecastPoint uses Open-Meteo variable names.
type forecastPoint struct {
	Time          string   `json:"time"`
	Temperature   *float64 `json:"temperature_2m"`
	Rain          *float64 `json:"rain"`
	Precipitation *float64 `json:"precipitation"`
	WindSpeed     *float64 `json:"wind_speed_10m"`
	SoilMoisture  *float64 `json:"soil_moisture_3_to_9cm"`
	ET0           *float64 `json:"et0_fao_evapotranspiration"`
	TempMax       *float64 `json:"temperature_2m_max"`
	TempMin       *float64 `json:"temperature_2m_min"`
	RainSum       *float64 `json:"rain_sum"`
	WindSpeedMax  *float64 `json:"wind_speed_10m_max"`
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// ParseWeatherMessage decodes a raw weather message into a WeatherSnapshot.
// A message without a farm, with an unknown type, or with no forecast points
// is rejected with ErrMalformedMessage.
func ParseWeatherMessage(raw RawEvent) (WeatherSnapshot, error) {
	var msg weatherMessage
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		return WeatherSnapshot{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if msg.FarmID == "" {
		return WeatherSnapshot{}, fmt.Errorf("%w: missing farm_id", ErrMalformedMessage)
	}
	granularity, err := ParseGranularity(msg.Type)
	if err != nil {
		return WeatherSnapshot{}, err
	}
	if len(msg.Forecast) == 0 {
		return WeatherSnapshot{}, fmt.Errorf("%w: empty forecast", ErrMalformedMessage)
	}

	snap := WeatherSnapshot{
		FarmID:      msg.FarmID,
		UserID:      msg.UserID,
		Email:       msg.Email,
		Crops:       msg.Crops,
		SoilType:    ParseSoilType(msg.SoilType),
		Granularity: granularity,
		ObservedAt:  raw.Timestamp.UTC(),
		Forecast:    make([]Observation, 0, len(msg.Forecast)),
	}
	for _, p := range msg.Forecast {
		snap.Forecast = append(snap.Forecast, p.observation())
	}
	for _, f := range msg.Fields {
		if f.FieldID == "" {
			continue
		}
		snap.Fields = append(snap.Fields, FieldState{
			FarmID:      msg.FarmID,
			FieldID:     f.FieldID,
			CropType:    CropType(strings.ToUpper(strings.TrimSpace(f.SeedType))),
			GrowthStage: ParseGrowthStage(f.GrowthStage),
			Status:      FieldPlanted,
		})
	}
	if first := snap.Forecast[0].Time; !first.IsZero() {
		snap.ObservedAt = first
	}
	return snap, nil
}

func (p forecastPoint) observation() Observation {
	o := Observation{
		Time:         parseForecastTime(p.Time),
		Temperature:  valueOrZero(p.Temperature),
		Rain:         valueOrZero(p.Rain),
		WindSpeed:    valueOrZero(p.WindSpeed),
		SoilMoisture: valueOrZero(p.SoilMoisture),
		ET0:          valueOrZero(p.ET0),
		TempMax:      valueOrZero(p.TempMax),
		TempMin:      valueOrZero(p.TempMin),
		RainSum:      valueOrZero(p.RainSum),
		WindSpeedMax: valueOrZero(p.WindSpeedMax),
	}
	if p.Precipitation != nil {
		o.Precipitation = *p.Precipitation
	} else {
		o.Precipitation = o.Rain
	}
	return o
}

func parseForecastTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
