package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-wakeup/internal/config"
	"github.com/tartampluch/go-wakeup/internal/engine"
)

// -----------------------------------------------------------------------------
// Mocks
// -----------------------------------------------------------------------------

// MockSource simulates the calendar layer using `testify/mock`.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) ReadEvents(ctx context.Context, from, to time.Time) ([]engine.Event, error) {
	args := m.Called(ctx, from, to)
	if r := args.Get(0); r != nil {
		return r.([]engine.Event), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockSink records scheduling calls.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Schedule(ctx context.Context, alarm engine.Alarm) error {
	return m.Called(ctx, alarm).Error(0)
}

func (m *MockSink) Cancel(ctx context.Context, dayID int32) error {
	return m.Called(ctx, dayID).Error(0)
}

func (m *MockSink) CanScheduleExact() bool {
	return true
}

// MockClock controls time for deterministic testing.
type MockClock struct {
	CurrentTime time.Time
}

func (m MockClock) Now() time.Time {
	return m.CurrentTime
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

var (
	evening  = time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)
	tomorrow = engine.DayID(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC))
)

func event(id string, start time.Time, d time.Duration) engine.Event {
	return engine.Event{
		ID:         id,
		Title:      "Event " + id,
		Start:      start,
		End:        start.Add(d),
		CalendarID: "work",
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 11, hour, minute, 0, 0, time.UTC)
}

// baseConfig mirrors the defaults with a wide window so clamps stay out of the way.
func baseConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.EarliestAlarm = engine.NewTimeOfDay(0, 0)
	cfg.LatestAlarm = engine.NewTimeOfDay(23, 59)
	return cfg
}

func newScheduler(events []engine.Event) (*engine.Scheduler, *MockSource, *MockSink) {
	src := new(MockSource)
	src.On("ReadEvents", mock.Anything, mock.Anything, mock.Anything).Return(events, nil)
	sink := new(MockSink)
	sink.On("Schedule", mock.Anything, mock.Anything).Return(nil)
	sink.On("Cancel", mock.Anything, mock.Anything).Return(nil)
	return &engine.Scheduler{Source: src, Sink: sink}, src, sink
}

// -----------------------------------------------------------------------------
// Test Cases
// -----------------------------------------------------------------------------

func TestSynchronize_PrepTimeOnly(t *testing.T) {
	// Scenario: one event at 08:00 tomorrow, 75 minutes prep, no travel provider.
	s, src, sink := newScheduler([]engine.Event{event("a", at(8, 0), time.Hour)})
	cfg := baseConfig()
	cfg.PrepTime = 75 * time.Minute

	dec, err := s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusAlarmSet, dec.Status)
	require.NotNil(t, dec.Alarm)
	assert.Equal(t, at(6, 45), dec.Alarm.TriggerAt)
	assert.Equal(t, tomorrow, dec.Alarm.DayID)
	assert.Equal(t, "Wake up for: Event a", dec.Alarm.Label)
	assert.Equal(t, "a", dec.Alarm.Event.ID)

	// Travel was skipped because no provider is configured.
	require.NotNil(t, dec.Travel)
	assert.False(t, dec.Travel.Attempted())
	assert.Equal(t, config.ErrTravelNoProvider, dec.Travel.Error)

	src.AssertCalled(t, "ReadEvents", mock.Anything, evening, evening.Add(36*time.Hour))
	sink.AssertCalled(t, "Schedule", mock.Anything, *dec.Alarm)
	sink.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
}

func TestSynchronize_EarlyClamp(t *testing.T) {
	s, _, _ := newScheduler([]engine.Event{event("a", at(8, 0), time.Hour)})
	cfg := baseConfig()
	cfg.PrepTime = 75 * time.Minute
	cfg.EarliestAlarm = engine.NewTimeOfDay(7, 0)

	dec, err := s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusAlarmSet, dec.Status)
	require.NotNil(t, dec.Alarm)
	assert.Equal(t, at(7, 0), dec.Alarm.TriggerAt)
}

func TestSynchronize_TooLate(t *testing.T) {
	s, _, sink := newScheduler([]engine.Event{event("a", at(11, 30), time.Hour)})
	cfg := baseConfig()
	cfg.PrepTime = 75 * time.Minute
	cfg.LatestAlarm = engine.NewTimeOfDay(10, 0)

	dec, err := s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)

	// 11:30 - 1h15 = 10:15, after 10:00.
	assert.Equal(t, engine.StatusAlarmTooLate, dec.Status)
	assert.Nil(t, dec.Alarm)
	assert.Len(t, dec.Events, 1)
	assert.NotNil(t, dec.Travel)
	sink.AssertCalled(t, "Cancel", mock.Anything, tomorrow)
	sink.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything)
}

func TestSynchronize_LatestWindowShrinks(t *testing.T) {
	// 10:30 - 75min = 09:15.
	s, _, _ := newScheduler([]engine.Event{event("a", at(10, 30), time.Hour)})
	cfg := baseConfig()
	cfg.PrepTime = 75 * time.Minute
	cfg.LatestAlarm = engine.NewTimeOfDay(10, 0)

	dec, err := s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAlarmSet, dec.Status)

	cfg.LatestAlarm = engine.NewTimeOfDay(9, 0)
	dec, err = s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAlarmTooLate, dec.Status)
}

func TestSynchronize_LatestBoundaryIsInclusive(t *testing.T) {
	// A trigger exactly at latest is still allowed.
	s, _, _ := newScheduler([]engine.Event{event("a", at(11, 15), time.Hour)})
	cfg := baseConfig()
	cfg.PrepTime = 75 * time.Minute
	cfg.LatestAlarm = engine.NewTimeOfDay(10, 0)

	dec, err := s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAlarmSet, dec.Status)
	assert.Equal(t, at(10, 0), dec.Alarm.TriggerAt)
}

func TestSynchronize_WithTravel(t *testing.T) {
	ev := event("a", at(8, 0), time.Hour)
	ev.Location = "1 Main Street"

	s, _, _ := newScheduler([]engine.Event{ev})
	var gotDest string
	var gotLat, gotLng float64
	s.Travel = engine.EstimatorFunc(func(_ context.Context, lat, lng float64, dest string) (time.Duration, error) {
		gotLat, gotLng, gotDest = lat, lng, dest
		return 20 * time.Minute, nil
	})

	cfg := baseConfig()
	cfg.PrepTime = 75 * time.Minute
	origin := &engine.Coordinates{Lat: 48.85, Lng: 2.35}

	dec, err := s.Synchronize(context.Background(), evening, cfg, origin)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusAlarmSet, dec.Status)
	assert.Equal(t, at(6, 25), dec.Alarm.TriggerAt, "20 minutes earlier than prep-only")
	assert.Equal(t, "1 Main Street", gotDest)
	assert.Equal(t, 48.85, gotLat)
	assert.Equal(t, 2.35, gotLng)

	require.NotNil(t, dec.Travel)
	assert.True(t, dec.Travel.Attempted())
	assert.True(t, dec.Travel.Succeeded())
	assert.Equal(t, 20*time.Minute, *dec.Travel.Duration)
	assert.Empty(t, dec.Travel.Error)
}

func TestSynchronize_TravelPreconditions(t *testing.T) {
	tests := []struct {
		name     string
		provider bool
		origin   *engine.Coordinates
		location string
		wantErr  string
	}{
		{"No provider", false, &engine.Coordinates{}, "Office", config.ErrTravelNoProvider},
		{"No origin", true, nil, "Office", config.ErrTravelNoOrigin},
		{"Blank location", true, &engine.Coordinates{}, "   ", config.ErrTravelNoLocation},
		{"Empty location", true, &engine.Coordinates{}, "", config.ErrTravelNoLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := event("a", at(8, 0), time.Hour)
			ev.Location = tt.location
			s, _, _ := newScheduler([]engine.Event{ev})

			calls := 0
			if tt.provider {
				s.Travel = engine.EstimatorFunc(func(context.Context, float64, float64, string) (time.Duration, error) {
					calls++
					return time.Hour, nil
				})
			}

			dec, err := s.Synchronize(context.Background(), evening, baseConfig(), tt.origin)
			require.NoError(t, err)

			assert.Zero(t, calls, "estimator must not be called")
			assert.False(t, dec.Travel.Attempted())
			assert.False(t, dec.Travel.Succeeded())
			assert.Equal(t, tt.wantErr, dec.Travel.Error)
			assert.Equal(t, at(8, 0).Add(-75*time.Minute), dec.Alarm.TriggerAt)
		})
	}
}

func TestSynchronize_TravelFailureDegrades(t *testing.T) {
	tests := []struct {
		name      string
		estimator engine.EstimatorFunc
		wantErr   string
	}{
		{
			name: "Error",
			estimator: func(context.Context, float64, float64, string) (time.Duration, error) {
				return 0, errors.New("No routes returned")
			},
			wantErr: "No routes returned",
		},
		{
			name: "Panic",
			estimator: func(context.Context, float64, float64, string) (time.Duration, error) {
				panic("boom")
			},
			wantErr: config.ErrEstimatorPanic,
		},
		{
			name: "Negative",
			estimator: func(context.Context, float64, float64, string) (time.Duration, error) {
				return -time.Minute, nil
			},
			wantErr: config.ErrNegativeTravel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := event("a", at(8, 0), time.Hour)
			ev.Location = "Office"
			s, _, _ := newScheduler([]engine.Event{ev})
			s.Travel = tt.estimator

			dec, err := s.Synchronize(context.Background(), evening, baseConfig(), &engine.Coordinates{})
			require.NoError(t, err)

			assert.Equal(t, engine.StatusAlarmSet, dec.Status)
			assert.Equal(t, at(6, 45), dec.Alarm.TriggerAt)
			assert.True(t, dec.Travel.Attempted())
			assert.False(t, dec.Travel.Succeeded())
			assert.Contains(t, dec.Travel.Error, tt.wantErr)
		})
	}
}

func TestSynchronize_Disabled(t *testing.T) {
	src := new(MockSource)
	sink := new(MockSink)
	sink.On("Cancel", mock.Anything, tomorrow).Return(nil)

	s := &engine.Scheduler{Source: src, Sink: sink}
	cfg := baseConfig()
	cfg.Enabled = false

	dec, err := s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusDisabled, dec.Status)
	assert.NotNil(t, dec.Events)
	assert.Empty(t, dec.Events)
	assert.Nil(t, dec.Alarm)
	assert.Nil(t, dec.Travel)

	src.AssertNotCalled(t, "ReadEvents", mock.Anything, mock.Anything, mock.Anything)
	sink.AssertExpectations(t)
	sink.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything)
}

func TestSynchronize_NoEvents(t *testing.T) {
	tests := []struct {
		name   string
		events []engine.Event
		want   int
	}{
		{"Empty source", []engine.Event{}, 0},
		// Later tonight: inside the look-ahead window but not on the target day.
		{"Only tonight", []engine.Event{event("a", evening.Add(2*time.Hour), time.Hour)}, 1},
		// Exactly at target end is excluded by the half-open interval.
		{"Day after", []engine.Event{event("b", time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), time.Hour)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, sink := newScheduler(tt.events)

			dec, err := s.Synchronize(context.Background(), evening, baseConfig(), nil)
			require.NoError(t, err)

			assert.Equal(t, engine.StatusNoEvents, dec.Status)
			assert.Nil(t, dec.Alarm)
			assert.Nil(t, dec.Travel)
			assert.Len(t, dec.Events, tt.want)
			sink.AssertCalled(t, "Cancel", mock.Anything, tomorrow)
			sink.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything)
		})
	}
}

func TestSynchronize_EventAtMidnightIsTargeted(t *testing.T) {
	// Target start is inclusive. 00:00 - 75min lands on the previous day at
	// 22:45 which is after latest, so the pass reports TOO_LATE rather than NO_EVENTS.
	s, _, _ := newScheduler([]engine.Event{event("a", at(0, 0), time.Hour)})
	cfg := baseConfig()
	cfg.LatestAlarm = engine.NewTimeOfDay(10, 0)

	dec, err := s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAlarmTooLate, dec.Status)
}

func TestSynchronize_InPast(t *testing.T) {
	now := time.Date(2024, 3, 10, 23, 50, 0, 0, time.UTC)
	s, _, sink := newScheduler([]engine.Event{event("a", at(0, 30), time.Hour)})
	cfg := baseConfig()
	cfg.PrepTime = 45 * time.Minute

	dec, err := s.Synchronize(context.Background(), now, cfg, nil)
	require.NoError(t, err)

	// 00:30 - 45min = 23:45 on the 10th, before now.
	assert.Equal(t, engine.StatusAlarmInPast, dec.Status)
	assert.Nil(t, dec.Alarm)
	sink.AssertCalled(t, "Cancel", mock.Anything, tomorrow)
	sink.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything)
}

func TestSynchronize_FiltersAllDayAndCalendars(t *testing.T) {
	allDay := engine.Event{
		ID: "holiday", Title: "Holiday", AllDay: true, CalendarID: "work",
		Start: at(0, 0), End: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
	}
	personal := event("p", at(7, 0), time.Hour)
	personal.CalendarID = "personal"
	work := event("w", at(9, 0), time.Hour)

	s, _, _ := newScheduler([]engine.Event{allDay, personal, work})
	cfg := baseConfig()
	cfg.CalendarIDs = []string{"work"}

	dec, err := s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusAlarmSet, dec.Status)
	assert.Equal(t, "w", dec.Alarm.Event.ID)
	assert.Len(t, dec.Events, 1)

	// Keeping all-day events makes the holiday the anchor.
	cfg.SkipAllDayEvents = false
	dec, err = s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "holiday", dec.Alarm.Event.ID)
}

func TestSynchronize_Idempotent(t *testing.T) {
	s, _, sink := newScheduler([]engine.Event{event("a", at(8, 0), time.Hour)})
	cfg := baseConfig()

	first, err := s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)
	second, err := s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Alarm.TriggerAt, second.Alarm.TriggerAt)
	assert.Equal(t, first.Alarm.DayID, second.Alarm.DayID)
	sink.AssertNumberOfCalls(t, "Schedule", 2)
}

func TestSynchronize_MonotonicLead(t *testing.T) {
	s, _, _ := newScheduler([]engine.Event{event("a", at(9, 0), time.Hour)})
	cfg := baseConfig()

	for _, delta := range []time.Duration{0, 5 * time.Minute, 30 * time.Minute, 90 * time.Minute} {
		cfg.PrepTime = 60*time.Minute + delta
		dec, err := s.Synchronize(context.Background(), evening, cfg, nil)
		require.NoError(t, err)
		assert.Equal(t, at(8, 0).Add(-delta), dec.Alarm.TriggerAt, "delta %s", delta)
	}
}

func TestSynchronize_BlockAnchor(t *testing.T) {
	// Back-to-back events merge into one block; the first one labels the alarm.
	events := []engine.Event{
		event("a", at(8, 0), 15*time.Minute),
		event("b", at(8, 20), time.Hour),
		event("c", at(14, 0), time.Hour),
	}
	s, _, _ := newScheduler(events)
	cfg := baseConfig()

	dec, err := s.Synchronize(context.Background(), evening, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, at(6, 45), dec.Alarm.TriggerAt)
	assert.Equal(t, "a", dec.Alarm.Event.ID)
	assert.Len(t, dec.Events, 3)
}

func TestSynchronize_CivilZone(t *testing.T) {
	// The target day and the clamp are evaluated in now's zone, not UTC.
	zone := time.FixedZone("UTC+9", 9*60*60)
	now := time.Date(2024, 3, 10, 20, 0, 0, 0, zone)
	start := time.Date(2024, 3, 11, 8, 0, 0, 0, zone)

	s, _, _ := newScheduler([]engine.Event{event("a", start, time.Hour)})
	cfg := baseConfig()
	cfg.EarliestAlarm = engine.NewTimeOfDay(7, 0)

	dec, err := s.Synchronize(context.Background(), now, cfg, nil)
	require.NoError(t, err)

	assert.True(t, time.Date(2024, 3, 11, 7, 0, 0, 0, zone).Equal(dec.Alarm.TriggerAt))
	assert.Equal(t, engine.DayID(start), dec.Alarm.DayID)
}

func TestSynchronize_AcrossDSTChange(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// Clocks go forward at 02:00 on 2024-03-31.
	now := time.Date(2024, 3, 30, 21, 0, 0, 0, loc)
	start := time.Date(2024, 3, 31, 8, 0, 0, 0, loc)

	s, _, _ := newScheduler([]engine.Event{event("a", start, time.Hour)})
	cfg := baseConfig()
	cfg.PrepTime = 75 * time.Minute

	dec, err := s.Synchronize(context.Background(), now, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "06:45", dec.Alarm.TriggerAt.In(loc).Format(config.TimeOfDayLayout))
}

func TestSynchronize_CustomLabel(t *testing.T) {
	s, _, _ := newScheduler([]engine.Event{event("a", at(8, 0), time.Hour)})
	s.FormatLabel = func(title string) string { return "Réveil : " + title }

	dec, err := s.Synchronize(context.Background(), evening, baseConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Réveil : Event a", dec.Alarm.Label)
}

func TestSynchronize_Errors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("Source failure propagates", func(t *testing.T) {
		src := new(MockSource)
		src.On("ReadEvents", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)
		s := &engine.Scheduler{Source: src, Sink: new(MockSink)}

		_, err := s.Synchronize(context.Background(), evening, baseConfig(), nil)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), config.ErrReadEvents)
	})

	t.Run("Schedule failure propagates", func(t *testing.T) {
		src := new(MockSource)
		src.On("ReadEvents", mock.Anything, mock.Anything, mock.Anything).
			Return([]engine.Event{event("a", at(8, 0), time.Hour)}, nil)
		sink := new(MockSink)
		sink.On("Schedule", mock.Anything, mock.Anything).Return(boom)
		s := &engine.Scheduler{Source: src, Sink: sink}

		_, err := s.Synchronize(context.Background(), evening, baseConfig(), nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Cancel failure propagates", func(t *testing.T) {
		sink := new(MockSink)
		sink.On("Cancel", mock.Anything, mock.Anything).Return(boom)
		s := &engine.Scheduler{Source: new(MockSource), Sink: sink}
		cfg := baseConfig()
		cfg.Enabled = false

		_, err := s.Synchronize(context.Background(), evening, cfg, nil)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), config.ErrCancelAlarm)
	})

	t.Run("Missing collaborators", func(t *testing.T) {
		_, err := (&engine.Scheduler{}).Synchronize(context.Background(), evening, baseConfig(), nil)
		assert.EqualError(t, err, config.ErrSinkMissing)

		_, err = (&engine.Scheduler{Sink: new(MockSink)}).Synchronize(context.Background(), evening, baseConfig(), nil)
		assert.EqualError(t, err, config.ErrSourceMissing)
	})
}

func TestRealClock(t *testing.T) {
	var c engine.Clock = engine.RealClock{}
	assert.WithinDuration(t, time.Now(), c.Now(), time.Second)

	var m engine.Clock = MockClock{CurrentTime: evening}
	assert.Equal(t, evening, m.Now())
}
