package growth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/crop-advisory-service/internal/domain"
	"github.com/couchcryptid/crop-advisory-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type update struct {
	farmID, fieldID string
	stage           domain.GrowthStage
	status          domain.FieldStatus
}

type fakeFieldStore struct {
	mu      sync.Mutex
	fields  []domain.FieldState
	updates []update
	listErr error
	failFor string

	// afterList runs once the planted fields have been returned.
	afterList func(f *fakeFieldStore)
}

func (f *fakeFieldStore) ListPlanted(_ context.Context) ([]domain.FieldState, error) {
	f.mu.Lock()
	if f.listErr != nil {
		f.mu.Unlock()
		return nil, f.listErr
	}
	out := append([]domain.FieldState(nil), f.fields...)
	f.mu.Unlock()

	if f.afterList != nil {
		f.afterList(f)
	}
	return out, nil
}

// UpdateGrowth applies the same guard as the SQL store: the stored field must
// still be PLANTED with the listed crop and planting date.
func (f *fakeFieldStore) UpdateGrowth(_ context.Context, listed domain.FieldState, stage domain.GrowthStage, status domain.FieldStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if listed.FieldID == f.failFor {
		return errors.New("write conflict")
	}
	for i := range f.fields {
		cur := &f.fields[i]
		if cur.FarmID != listed.FarmID || cur.FieldID != listed.FieldID {
			continue
		}
		if cur.Status != domain.FieldPlanted || cur.CropType != listed.CropType ||
			cur.PlantedDate == nil || listed.PlantedDate == nil || !cur.PlantedDate.Equal(*listed.PlantedDate) {
			return domain.ErrFieldChanged
		}
		f.updates = append(f.updates, update{listed.FarmID, listed.FieldID, stage, status})
		cur.GrowthStage = stage
		cur.Status = status
		return nil
	}
	return domain.ErrFieldChanged
}

// set replaces the stored state of a field.
func (f *fakeFieldStore) set(state domain.FieldState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.fields {
		if f.fields[i].FarmID == state.FarmID && f.fields[i].FieldID == state.FieldID {
			f.fields[i] = state
		}
	}
}

func (f *fakeFieldStore) snapshot() []domain.FieldState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.FieldState(nil), f.fields...)
}

func (f *fakeFieldStore) recorded() []update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]update(nil), f.updates...)
}

type profiles map[domain.CropType]domain.CropProfile

func (p profiles) Profile(ct domain.CropType) (domain.CropProfile, bool) {
	prof, ok := p[ct]
	return prof, ok
}

var (
	today       = time.Date(2025, 6, 12, 9, 30, 0, 0, time.UTC)
	testProfile = profiles{domain.CropCorn: {CropType: domain.CropCorn, DaysToYoung: 2, DaysToMature: 5, DaysToReady: 10}}
)

func plantedDaysAgo(fieldID string, days int, stage domain.GrowthStage) domain.FieldState {
	planted := today.AddDate(0, 0, -days)
	return domain.FieldState{
		FarmID:      "farm-1",
		FieldID:     fieldID,
		CropType:    domain.CropCorn,
		GrowthStage: stage,
		PlantedDate: &planted,
		Status:      domain.FieldPlanted,
	}
}

func newTestScheduler(store FieldStore, clock clockwork.Clock) *Scheduler {
	return NewScheduler(store, testProfile, clock, time.UTC, time.Hour, slog.Default(), observability.NewMetricsForTesting())
}

func TestRunOnce_Transitions(t *testing.T) {
	store := &fakeFieldStore{fields: []domain.FieldState{
		plantedDaysAgo("ready", 11, domain.StageSeedling),
		plantedDaysAgo("mature", 6, domain.StageYoung),
		plantedDaysAgo("unchanged", 3, domain.StageYoung),
		plantedDaysAgo("day-one", 1, domain.StageSeedling),
	}}
	s := newTestScheduler(store, clockwork.NewFakeClockAt(today))

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunResult{Scanned: 4, Transitioned: 2}, res)
	assert.ElementsMatch(t, []update{
		{"farm-1", "ready", domain.StageReady, domain.FieldReady},
		{"farm-1", "mature", domain.StageMature, domain.FieldPlanted},
	}, store.recorded())
}

func TestRunOnce_SkipsIneligibleFields(t *testing.T) {
	noDate := plantedDaysAgo("no-date", 30, domain.StageSeedling)
	noDate.PlantedDate = nil
	empty := plantedDaysAgo("empty", 30, domain.StageSeedling)
	empty.Status = domain.FieldEmpty
	unknown := plantedDaysAgo("wheat", 30, domain.StageSeedling)
	unknown.CropType = domain.CropWheat

	store := &fakeFieldStore{fields: []domain.FieldState{noDate, empty, unknown}}
	s := newTestScheduler(store, clockwork.NewFakeClockAt(today))

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunResult{Scanned: 1, Skipped: 1}, res)
	assert.Empty(t, store.recorded())
}

func TestRunOnce_NeverRegresses(t *testing.T) {
	store := &fakeFieldStore{fields: []domain.FieldState{plantedDaysAgo("f", 3, domain.StageMature)}}
	s := newTestScheduler(store, clockwork.NewFakeClockAt(today))

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Transitioned)
}

func TestRunOnce_CommitFailureContinues(t *testing.T) {
	store := &fakeFieldStore{
		fields: []domain.FieldState{
			plantedDaysAgo("broken", 11, domain.StageSeedling),
			plantedDaysAgo("fine", 11, domain.StageSeedling),
		},
		failFor: "broken",
	}
	s := newTestScheduler(store, clockwork.NewFakeClockAt(today))

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Transitioned)
	assert.Equal(t, "fine", store.recorded()[0].fieldID)
}

func TestRunOnce_SkipsFieldsChangedDuringScan(t *testing.T) {
	store := &fakeFieldStore{fields: []domain.FieldState{
		plantedDaysAgo("harvested", 11, domain.StageMature),
		plantedDaysAgo("replanted", 11, domain.StageMature),
		plantedDaysAgo("untouched", 11, domain.StageMature),
	}}
	store.afterList = func(f *fakeFieldStore) {
		harvested := domain.FieldState{FarmID: "farm-1", FieldID: "harvested", Status: domain.FieldEmpty}
		replanted := plantedDaysAgo("replanted", 0, domain.StageSeedling)
		replanted.CropType = domain.CropWheat
		f.set(harvested)
		f.set(replanted)
	}
	s := newTestScheduler(store, clockwork.NewFakeClockAt(today))

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunResult{Scanned: 3, Transitioned: 1, Skipped: 2}, res)
	assert.Equal(t, []update{{"farm-1", "untouched", domain.StageReady, domain.FieldReady}}, store.recorded())

	fields := store.snapshot()
	assert.Equal(t, domain.FieldEmpty, fields[0].Status)
	assert.Empty(t, fields[0].GrowthStage, "harvest is not overwritten")
	assert.Equal(t, domain.CropWheat, fields[1].CropType)
	assert.Equal(t, domain.StageSeedling, fields[1].GrowthStage, "replant is not overwritten")
	assert.Equal(t, domain.FieldPlanted, fields[1].Status)
}

func TestRunOnce_Idempotent(t *testing.T) {
	store := &fakeFieldStore{fields: []domain.FieldState{
		plantedDaysAgo("ready", 11, domain.StageSeedling),
		plantedDaysAgo("young", 3, domain.StageYoung),
	}}
	s := newTestScheduler(store, clockwork.NewFakeClockAt(today))

	first, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Transitioned)
	after := store.snapshot()

	second, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{Scanned: 1}, second, "the READY field is no longer scanned")

	assert.Len(t, store.recorded(), 1)
	assert.Equal(t, after, store.snapshot())
}

func TestRunOnce_ListError(t *testing.T) {
	store := &fakeFieldStore{listErr: errors.New("db offline")}
	s := newTestScheduler(store, clockwork.NewFakeClockAt(today))

	_, err := s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db offline")
}

func TestDaysBetween(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)

	planted := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC) // 2 June 01:30 in Berlin
	now := time.Date(2025, 6, 2, 0, 30, 0, 0, time.UTC)

	assert.Equal(t, 1, DaysBetween(planted, now, time.UTC))
	assert.Equal(t, 0, DaysBetween(planted, now, berlin))
	assert.Equal(t, 11, DaysBetween(today.AddDate(0, 0, -11), today, time.UTC))
}

func TestStart_RunsImmediatelyAndOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClockAt(today)
	store := &fakeFieldStore{fields: []domain.FieldState{plantedDaysAgo("f", 4, domain.StageYoung)}}
	s := newTestScheduler(store, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Empty(t, store.recorded(), "day 4 is still YOUNG")

	clock.Advance(24 * time.Hour)
	assert.Eventually(t, func() bool { return len(store.recorded()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.StageMature, store.recorded()[0].stage)

	cancel()
	<-done
}
