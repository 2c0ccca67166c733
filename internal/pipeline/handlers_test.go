package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/crop"
	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"github.com/couchcryptid/crop-advisory-service/internal/notify"
	"github.com/couchcryptid/crop-advisory-service/internal/observability"
	"github.com/couchcryptid/crop-advisory-service/internal/pipeline"
	"github.com/couchcryptid/crop-advisory-service/internal/rules"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeStore struct {
	fields      []domain.FieldState
	fieldsErr   error
	factors     map[string]float64
	factorsErr  error
	planted     []domain.FieldState
	harvested   [][]domain.FeedbackAnswer
	harvestErr  error
	plantCalled int
}

func (f *fakeStore) FieldsForFarm(context.Context, string) ([]domain.FieldState, error) {
	return f.fields, f.fieldsErr
}

func (f *fakeStore) FeedbackFactors(context.Context, string) (map[string]float64, error) {
	return f.factors, f.factorsErr
}

func (f *fakeStore) UpsertPlanted(_ context.Context, farmID, fieldID string, ct domain.CropType, planted time.Time) error {
	f.plantCalled++
	f.planted = append(f.planted, domain.FieldState{FarmID: farmID, FieldID: fieldID, CropType: ct, PlantedDate: &planted})
	return nil
}

func (f *fakeStore) MarkHarvested(_ context.Context, _, _ string, answers []domain.FeedbackAnswer) error {
	if f.harvestErr != nil {
		return f.harvestErr
	}
	f.harvested = append(f.harvested, answers)
	return nil
}

type fakeNotifier struct {
	recs []domain.Recommendation
}

func (f *fakeNotifier) Process(_ context.Context, rec domain.Recommendation) notify.Outcome {
	f.recs = append(f.recs, rec)
	return notify.OutcomeEmitted
}

func (f *fakeNotifier) types() []domain.RecommendationType {
	out := make([]domain.RecommendationType, 0, len(f.recs))
	for _, r := range f.recs {
		out = append(out, r.Type)
	}
	return out
}

type fakeClearer struct {
	cleared []string
}

func (f *fakeClearer) ClearField(farmID, fieldID string) int {
	f.cleared = append(f.cleared, farmID+"/"+fieldID)
	return 2
}

type weatherHarness struct {
	handler  *pipeline.WeatherHandler
	store    *fakeStore
	notifier *fakeNotifier
	metrics  *observability.Metrics
}

func newWeatherHarness(t *testing.T, store *fakeStore) weatherHarness {
	t.Helper()
	profiles, err := crop.LoadStore("")
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	engine := rules.NewEngine(slog.Default(), metrics)
	n := &fakeNotifier{}
	return weatherHarness{
		handler:  pipeline.NewWeatherHandler(store, store, profiles, engine, n, slog.Default(), metrics),
		store:    store,
		notifier: n,
		metrics:  metrics,
	}
}

func cornField(fieldID string) domain.FieldState {
	return domain.FieldState{
		FarmID:      "farm-1",
		FieldID:     fieldID,
		CropType:    domain.CropCorn,
		GrowthStage: domain.StageYoung,
		Status:      domain.FieldPlanted,
	}
}

const coldCurrentSnapshot = `{"farm_id":"farm-1","user_id":"u-1","email":"grower@example.com","type":"current",
	"forecast":[{"time":"2025-06-01T06:00","temperature_2m":5,"rain":0,"wind_speed_10m":10}]}`

// --- weather handler ---

func TestWeatherHandler_FrostForStoredField(t *testing.T) {
	h := newWeatherHarness(t, &fakeStore{fields: []domain.FieldState{cornField("north")}})

	err := h.handler.Handle(context.Background(), domain.RawEvent{Value: []byte(coldCurrentSnapshot)})
	require.NoError(t, err)

	require.Len(t, h.notifier.recs, 1)
	rec := h.notifier.recs[0]
	assert.Equal(t, domain.FrostAlert, rec.Type)
	assert.Equal(t, "north", rec.FieldID)
	assert.Equal(t, "grower@example.com", rec.Email)
	assert.InDelta(t, 5.0, rec.Metrics[domain.MetricTemperature], 1e-9)
}

func TestWeatherHandler_FeedbackFactorsAdjustThresholds(t *testing.T) {
	store := &fakeStore{
		fields:  []domain.FieldState{cornField("north")},
		factors: map[string]float64{"min_temperature": 0.5},
	}
	h := newWeatherHarness(t, store)

	require.NoError(t, h.handler.Handle(context.Background(), domain.RawEvent{Value: []byte(coldCurrentSnapshot)}))
	assert.Empty(t, h.notifier.recs, "minimum lowered from 8 to 4 degrees")
}

func TestWeatherHandler_FeedbackErrorFallsBack(t *testing.T) {
	store := &fakeStore{
		fields:     []domain.FieldState{cornField("north")},
		factorsErr: errors.New("no such table"),
	}
	h := newWeatherHarness(t, store)

	require.NoError(t, h.handler.Handle(context.Background(), domain.RawEvent{Value: []byte(coldCurrentSnapshot)}))
	assert.Equal(t, []domain.RecommendationType{domain.FrostAlert}, h.notifier.types())
	assert.InDelta(t, 1.0, testutil.ToFloat64(h.metrics.FeedbackErrors), 1e-9)
}

func TestWeatherHandler_UnknownCropSkipped(t *testing.T) {
	odd := cornField("south")
	odd.CropType = "RICE"
	h := newWeatherHarness(t, &fakeStore{fields: []domain.FieldState{odd, cornField("north")}})

	require.NoError(t, h.handler.Handle(context.Background(), domain.RawEvent{Value: []byte(coldCurrentSnapshot)}))
	require.Len(t, h.notifier.recs, 1)
	assert.Equal(t, "north", h.notifier.recs[0].FieldID)
	assert.InDelta(t, 1.0, testutil.ToFloat64(h.metrics.UnknownCrops), 1e-9)
}

func TestWeatherHandler_FallsBackToMessageFields(t *testing.T) {
	h := newWeatherHarness(t, &fakeStore{})
	msg := `{"farm_id":"farm-1","type":"current",
		"fields":[{"field_id":"east","seed_type":"PUMPKIN","growth_stage":"1"}],
		"forecast":[{"time":"2025-06-01T06:00","temperature_2m":5}]}`

	require.NoError(t, h.handler.Handle(context.Background(), domain.RawEvent{Value: []byte(msg)}))
	require.Len(t, h.notifier.recs, 1)
	assert.Equal(t, "east", h.notifier.recs[0].FieldID)
	assert.Equal(t, domain.CropPumpkin, h.notifier.recs[0].CropType)
}

func TestWeatherHandler_FallsBackToCropList(t *testing.T) {
	h := newWeatherHarness(t, &fakeStore{})
	msg := `{"farm_id":"farm-1","type":"current","crops":["corn","rice"],
		"forecast":[{"time":"2025-06-01T06:00","temperature_2m":5}]}`

	require.NoError(t, h.handler.Handle(context.Background(), domain.RawEvent{Value: []byte(msg)}))
	require.Len(t, h.notifier.recs, 1)
	assert.True(t, h.notifier.recs[0].FarmWide())
	assert.Equal(t, domain.CropCorn, h.notifier.recs[0].CropType)
}

func TestWeatherHandler_SafetyAlertWithoutFields(t *testing.T) {
	h := newWeatherHarness(t, &fakeStore{})
	msg := `{"farm_id":"farm-1","type":"hourly","forecast":[
		{"time":"2025-06-01T06:00","wind_speed_10m":30},
		{"time":"2025-06-01T07:00","wind_speed_10m":75}]}`

	require.NoError(t, h.handler.Handle(context.Background(), domain.RawEvent{Value: []byte(msg)}))
	assert.Equal(t, []domain.RecommendationType{domain.SafetyAlert}, h.notifier.types())
}

func TestWeatherHandler_Errors(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		h := newWeatherHarness(t, &fakeStore{})
		err := h.handler.Handle(context.Background(), domain.RawEvent{Value: []byte(`{"type":"current"}`)})
		assert.ErrorIs(t, err, domain.ErrMalformedMessage)
	})

	t.Run("field lookup failure is retryable", func(t *testing.T) {
		h := newWeatherHarness(t, &fakeStore{fieldsErr: errors.New("database is locked")})
		err := h.handler.Handle(context.Background(), domain.RawEvent{Value: []byte(coldCurrentSnapshot)})
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrMalformedMessage)
		assert.Empty(t, h.notifier.recs)
	})
}

// --- farm event handler ---

func newFarmHandler(store *fakeStore, clearer *fakeClearer) *pipeline.FarmEventHandler {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	return pipeline.NewFarmEventHandler(store, clearer, clock, slog.Default(), observability.NewMetricsForTesting())
}

func TestFarmEventHandler_Planted(t *testing.T) {
	store := &fakeStore{}
	h := newFarmHandler(store, &fakeClearer{})

	ev := `{"event":"field.planted","farmId":"farm-1","fieldId":"north","cropType":"wheat","plantedDate":"2025-03-20"}`
	require.NoError(t, h.Handle(context.Background(), domain.RawEvent{Value: []byte(ev)}))

	require.Len(t, store.planted, 1)
	assert.Equal(t, domain.CropWheat, store.planted[0].CropType)
	assert.Equal(t, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), *store.planted[0].PlantedDate)
}

func TestFarmEventHandler_PlantedWithoutDateUsesNow(t *testing.T) {
	store := &fakeStore{}
	h := newFarmHandler(store, &fakeClearer{})

	ev := `{"event":"field.planted","farmId":"farm-1","fieldId":"north","cropType":"CORN"}`
	require.NoError(t, h.Handle(context.Background(), domain.RawEvent{Value: []byte(ev)}))
	assert.Equal(t, time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC), *store.planted[0].PlantedDate)
}

func TestFarmEventHandler_PlantedUnknownCrop(t *testing.T) {
	store := &fakeStore{}
	h := newFarmHandler(store, &fakeClearer{})

	ev := `{"event":"field.planted","farmId":"farm-1","fieldId":"north","cropType":"RICE"}`
	err := h.Handle(context.Background(), domain.RawEvent{Value: []byte(ev)})
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
	assert.Zero(t, store.plantCalled)
}

func TestFarmEventHandler_Harvested(t *testing.T) {
	store := &fakeStore{}
	clearer := &fakeClearer{}
	h := newFarmHandler(store, clearer)

	ev := `{"event":"field.harvested","farmId":"farm-1","fieldId":"north",
		"answers":[{"questionId":"q1","answerLabel":"Too dry","multiplier":1.2,"targetParameter":"allowed_water_deficit"}]}`
	require.NoError(t, h.Handle(context.Background(), domain.RawEvent{Value: []byte(ev)}))

	require.Len(t, store.harvested, 1)
	assert.Equal(t, "allowed_water_deficit", store.harvested[0][0].TargetParameter)
	assert.Equal(t, []string{"farm-1/north"}, clearer.cleared)
}

func TestFarmEventHandler_HarvestFailureKeepsCache(t *testing.T) {
	store := &fakeStore{harvestErr: errors.New("disk I/O error")}
	clearer := &fakeClearer{}
	h := newFarmHandler(store, clearer)

	ev := `{"event":"field.harvested","farmId":"farm-1","fieldId":"north"}`
	require.Error(t, h.Handle(context.Background(), domain.RawEvent{Value: []byte(ev)}))
	assert.Empty(t, clearer.cleared)
}
