package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tartampluch/go-wakeup/internal/config"
)

// EventSource supplies calendar events whose start lies in [from, to),
// sorted ascending by start time, without duplicate occurrences.
type EventSource interface {
	ReadEvents(ctx context.Context, from, to time.Time) ([]Event, error)
}

// TravelEstimator estimates the travel duration from an origin to a free-text
// destination. The call blocks; implementations bound it with their own timeout.
type TravelEstimator interface {
	Estimate(ctx context.Context, originLat, originLng float64, destination string) (time.Duration, error)
}

// EstimatorFunc adapts a plain function to TravelEstimator.
type EstimatorFunc func(ctx context.Context, originLat, originLng float64, destination string) (time.Duration, error)

// Estimate calls f.
func (f EstimatorFunc) Estimate(ctx context.Context, originLat, originLng float64, destination string) (time.Duration, error) {
	return f(ctx, originLat, originLng, destination)
}

// AlarmSink performs the actual scheduling. Schedule replaces any alarm
// holding the same DayID; Cancel is a no-op when nothing is scheduled.
type AlarmSink interface {
	Schedule(ctx context.Context, alarm Alarm) error
	Cancel(ctx context.Context, dayID int32) error
	CanScheduleExact() bool
}

// Scheduler turns upcoming events into at most one wake-up alarm for the next day.
// It holds no state between calls and is safe for concurrent use when its
// collaborators are.
type Scheduler struct {
	Source EventSource
	Sink   AlarmSink

	// Travel is optional; nil disables travel-time compensation.
	Travel TravelEstimator

	// FormatLabel allows the caller to inject localized labels.
	FormatLabel func(title string) string
}

// Synchronize runs one pass: read events, pick the first block of the next
// civil day (in now's location), compute the alarm and push it to the sink.
// origin may be nil when no location is known.
//
// Event source and sink errors are returned; travel estimation failures are
// recorded in the decision and never fail the pass.
func (s *Scheduler) Synchronize(ctx context.Context, now time.Time, cfg Config, origin *Coordinates) (Decision, error) {
	if s.Sink == nil {
		return Decision{}, errors.New(config.ErrSinkMissing)
	}
	log := slog.With(config.LogKeyComponent, config.CompEngine)

	targetStart, targetEnd := TargetDay(now)
	dayID := DayID(targetStart)

	if !cfg.Enabled {
		log.InfoContext(ctx, config.MsgDisabled, config.LogKeyDayID, dayID)
		if err := s.cancel(ctx, dayID); err != nil {
			return Decision{}, err
		}
		return Decision{Status: StatusDisabled, Events: []Event{}}, nil
	}

	if s.Source == nil {
		return Decision{}, errors.New(config.ErrSourceMissing)
	}
	read, err := s.Source.ReadEvents(ctx, now, now.Add(cfg.LookAhead()))
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", config.ErrReadEvents, err)
	}

	candidates := make([]Event, 0, len(read))
	var targetEvents []Event
	for _, ev := range read {
		if !cfg.admits(ev) {
			continue
		}
		candidates = append(candidates, ev)
		if !ev.Start.Before(targetStart) && ev.Start.Before(targetEnd) {
			targetEvents = append(targetEvents, ev)
		}
	}

	if len(targetEvents) == 0 {
		log.InfoContext(ctx, config.MsgNoEvents,
			config.LogKeyDayID, dayID,
			config.LogKeyCandidates, len(candidates))
		if err := s.cancel(ctx, dayID); err != nil {
			return Decision{}, err
		}
		return Decision{Status: StatusNoEvents, Events: candidates}, nil
	}

	blocks := MergeBlocks(targetEvents, cfg.EventMergeThreshold)
	first := blocks[0]
	anchor := first.Start
	target := first.Events[0]

	travel := s.estimateTravel(ctx, target, origin)

	lead := cfg.PrepTime + travel.lead()
	trigger := anchor.Add(-lead)
	triggerTOD := TimeOfDayOf(trigger.In(now.Location()))

	log = log.With(
		config.LogKeyDayID, dayID,
		config.LogKeyAnchor, anchor,
		config.LogKeyLead, lead.String(),
		config.LogKeyBlocks, len(blocks),
	)

	if triggerTOD.After(cfg.LatestAlarm) {
		log.InfoContext(ctx, config.MsgTooLate, config.LogKeyTrigger, trigger)
		if err := s.cancel(ctx, dayID); err != nil {
			return Decision{}, err
		}
		return Decision{Status: StatusAlarmTooLate, Events: candidates, Travel: travel}, nil
	}

	if triggerTOD.Before(cfg.EarliestAlarm) {
		trigger = cfg.EarliestAlarm.On(targetStart, now.Location())
		log.DebugContext(ctx, config.MsgClamped, config.LogKeyTrigger, trigger)
	}

	if trigger.Before(now) {
		log.InfoContext(ctx, config.MsgInPast, config.LogKeyTrigger, trigger)
		if err := s.cancel(ctx, dayID); err != nil {
			return Decision{}, err
		}
		return Decision{Status: StatusAlarmInPast, Events: candidates, Travel: travel}, nil
	}

	alarm := &Alarm{
		TriggerAt: trigger,
		Event:     target,
		Label:     s.label(target.Title),
		DayID:     dayID,
	}
	if err := s.Sink.Schedule(ctx, *alarm); err != nil {
		return Decision{}, fmt.Errorf("%s: %w", config.ErrScheduleAlarm, err)
	}

	log.InfoContext(ctx, config.MsgAlarmSet,
		config.LogKeyTrigger, trigger,
		config.LogKeyEvent, target.Title)

	return Decision{Status: StatusAlarmSet, Events: candidates, Alarm: alarm, Travel: travel}, nil
}

// estimateTravel calls the estimator at most once, when provider, origin and
// event location are all present.
func (s *Scheduler) estimateTravel(ctx context.Context, target Event, origin *Coordinates) *TravelEstimate {
	log := slog.With(config.LogKeyComponent, config.CompEngine)

	est := &TravelEstimate{
		HasProvider:      s.Travel != nil,
		HasOrigin:        origin != nil,
		HasEventLocation: strings.TrimSpace(target.Location) != "",
		EventLocation:    target.Location,
	}

	switch {
	case !est.HasProvider:
		est.Error = config.ErrTravelNoProvider
	case !est.HasOrigin:
		est.Error = config.ErrTravelNoOrigin
	case !est.HasEventLocation:
		est.Error = config.ErrTravelNoLocation
	}
	if !est.Attempted() {
		log.DebugContext(ctx, config.MsgTravelSkipped, config.LogKeyReason, est.Error)
		return est
	}

	d, err := s.callEstimator(ctx, *origin, target.Location)
	if err == nil && d < 0 {
		err = errors.New(config.ErrNegativeTravel)
	}
	if err != nil {
		est.Error = err.Error()
		log.WarnContext(ctx, config.MsgTravelFailed,
			config.LogKeyLocation, target.Location,
			config.LogKeyError, err)
		return est
	}

	est.Duration = &d
	log.InfoContext(ctx, config.MsgTravelOK,
		config.LogKeyLocation, target.Location,
		config.LogKeyTravel, d.String())
	return est
}

// callEstimator converts a panicking estimator into an error.
func (s *Scheduler) callEstimator(ctx context.Context, origin Coordinates, destination string) (d time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = 0, fmt.Errorf("%s: %v", config.ErrEstimatorPanic, r)
		}
	}()
	return s.Travel.Estimate(ctx, origin.Lat, origin.Lng, destination)
}

func (s *Scheduler) cancel(ctx context.Context, dayID int32) error {
	if err := s.Sink.Cancel(ctx, dayID); err != nil {
		return fmt.Errorf("%s: %w", config.ErrCancelAlarm, err)
	}
	return nil
}

func (s *Scheduler) label(title string) string {
	if s.FormatLabel != nil {
		if l := s.FormatLabel(title); l != "" {
			return l
		}
	}
	return fmt.Sprintf(config.FallbackLabel, title)
}
