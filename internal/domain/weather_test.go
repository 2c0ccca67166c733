package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFarmID = "farm-1"

func TestParseWeatherMessage(t *testing.T) {
	received := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)

	t.Run("hourly snapshot", func(t *testing.T) {
		data := []byte(`{
			"user_id":"user-1","email":"grower@example.com","farm_id":"farm-1",
			"type":"hourly","soil_type":"loam","crops":["CORN"],
			"forecast":[
				{"time":"2025-06-01T06:00","temperature_2m":20,"precipitation":1.5,"et0_fao_evapotranspiration":0.4,"soil_moisture_3_to_9cm":0.21},
				{"time":"2025-06-01T07:00","temperature_2m":22,"rain":2.0,"et0_fao_evapotranspiration":0.6,"soil_moisture_3_to_9cm":0.19}
			]}`)

		snap, err := ParseWeatherMessage(RawEvent{Value: data, Timestamp: received})
		require.NoError(t, err)

		assert.Equal(t, testFarmID, snap.FarmID)
		assert.Equal(t, "user-1", snap.UserID)
		assert.Equal(t, "grower@example.com", snap.Email)
		assert.Equal(t, SoilLoam, snap.SoilType)
		assert.Equal(t, GranularityHourly, snap.Granularity)
		assert.Equal(t, time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC), snap.ObservedAt)
		require.Len(t, snap.Forecast, 2)
		assert.Equal(t, 2.0, snap.Forecast[1].Precipitation, "rain stands in for missing precipitation")
	})

	t.Run("daily snapshot keeps max min and sums", func(t *testing.T) {
		data := []byte(`{"farm_id":"farm-1","type":"DAILY","forecast":[{"time":"2025-06-02","temperature_2m_max":31.5,"temperature_2m_min":12,"rain_sum":7,"wind_speed_10m_max":44}]}`)

		snap, err := ParseWeatherMessage(RawEvent{Value: data, Timestamp: received})
		require.NoError(t, err)

		obs := snap.Forecast[0]
		assert.Equal(t, 31.5, obs.TempMax)
		assert.Equal(t, 12.0, obs.TempMin)
		assert.Equal(t, 7.0, obs.RainSum)
		assert.Equal(t, 44.0, obs.WindSpeedMax)
		assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), obs.Time)
	})

	t.Run("attached fields", func(t *testing.T) {
		data := []byte(`{"farm_id":"farm-1","type":"hourly","forecast":[{"time":"2025-06-01T06:00"}],
			"fields":[{"field_id":"north","seed_type":"corn","growth_stage":"2"},{"field_id":"","seed_type":"WHEAT"},{"field_id":"south","seed_type":"Wheat"}]}`)

		snap, err := ParseWeatherMessage(RawEvent{Value: data, Timestamp: received})
		require.NoError(t, err)

		require.Len(t, snap.Fields, 2)
		assert.Equal(t, FieldState{FarmID: testFarmID, FieldID: "north", CropType: CropCorn, GrowthStage: StageMature, Status: FieldPlanted}, snap.Fields[0])
		assert.Equal(t, CropWheat, snap.Fields[1].CropType)
		assert.Equal(t, StageYoung, snap.Fields[1].GrowthStage)
	})

	t.Run("missing values default to zero", func(t *testing.T) {
		data := []byte(`{"farm_id":"farm-1","type":"current","forecast":[{"time":"garbage"}]}`)

		snap, err := ParseWeatherMessage(RawEvent{Value: data, Timestamp: received})
		require.NoError(t, err)

		assert.Zero(t, snap.Forecast[0].Temperature)
		assert.Zero(t, snap.Forecast[0].Precipitation)
		assert.Equal(t, received, snap.ObservedAt)
	})

	rejects := []struct {
		name string
		data string
	}{
		{"invalid json", `{not json`},
		{"missing farm", `{"type":"current","forecast":[{"temperature_2m":1}]}`},
		{"unknown type", `{"farm_id":"farm-1","type":"weekly","forecast":[{"temperature_2m":1}]}`},
		{"empty forecast", `{"farm_id":"farm-1","type":"current","forecast":[]}`},
	}
	for _, tc := range rejects {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseWeatherMessage(RawEvent{Value: []byte(tc.data)})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedMessage))
		})
	}
}

func TestWeatherSnapshot_Aggregate(t *testing.T) {
	snap := WeatherSnapshot{Forecast: []Observation{
		{Temperature: 18, Precipitation: 1, ET0: 4, SoilMoisture: 0.3},
		{Temperature: 22, Precipitation: 2, ET0: 5, SoilMoisture: 0.1},
		{Temperature: 26, Precipitation: 0, ET0: 2, SoilMoisture: 0.2},
	}}

	agg := snap.Aggregate()

	assert.InDelta(t, 11.0, agg.TotalET0, 1e-9)
	assert.InDelta(t, 3.0, agg.TotalRain, 1e-9)
	assert.InDelta(t, 22.0, agg.AvgTemperature, 1e-9)
	assert.InDelta(t, 0.3, agg.SoilMoisture, 1e-9)
	assert.Equal(t, DailyAggregate{}, WeatherSnapshot{}.Aggregate())
}

func TestParseFarmEvent(t *testing.T) {
	t.Run("harvest with answers", func(t *testing.T) {
		data := []byte(`{"event":"field.harvested","farmId":"farm-1","fieldId":"f-1","answers":[{"questionId":"q1","multiplier":1.2,"targetParameter":"allowedWaterDeficit"}]}`)

		ev, err := ParseFarmEvent(RawEvent{Value: data})
		require.NoError(t, err)
		assert.Equal(t, EventFieldHarvested, ev.Event)
		require.Len(t, ev.Answers, 1)
		assert.Equal(t, 1.2, ev.Answers[0].Multiplier)
	})

	t.Run("planted date parsed with fallback", func(t *testing.T) {
		fallback := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		ev := FarmEvent{PlantedDate: "2025-03-10"}
		assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), ev.PlantedOn(fallback))
		assert.Equal(t, fallback, FarmEvent{}.PlantedOn(fallback))
	})

	for _, data := range []string{
		`{"event":"field.harvested","farmId":"farm-1"}`,
		`{"event":"field.renamed","farmId":"farm-1","fieldId":"f-1"}`,
		`[]`,
	} {
		_, err := ParseFarmEvent(RawEvent{Value: []byte(data)})
		assert.ErrorIs(t, err, ErrMalformedMessage, data)
	}
}
