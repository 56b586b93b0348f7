package engine

import "time"

// Event is a single concrete calendar occurrence as supplied by an EventSource.
// Recurring events arrive already expanded, one Event per occurrence.
type Event struct {
	// ID identifies the occurrence; unique within one ReadEvents call.
	ID string

	Title string

	// Start and End bound the occurrence. Start is never after End.
	Start time.Time
	End   time.Time

	AllDay bool

	// CalendarID names the calendar the event was read from.
	CalendarID string

	// Location is the free-text location, empty when the event has none.
	Location string
}

// Coordinates is the origin used for travel estimation.
type Coordinates struct {
	Lat float64
	Lng float64
}

// TravelEstimate records what happened while estimating travel time for the
// target event. It is diagnostic only: the engine reads nothing from it except
// Duration.
type TravelEstimate struct {
	// HasProvider reports whether a travel estimator was configured.
	HasProvider bool

	// HasOrigin reports whether an origin location was available.
	HasOrigin bool

	// HasEventLocation reports whether the target event carries a non-blank location.
	HasEventLocation bool

	// EventLocation is the target event's location string, if any.
	EventLocation string

	// Duration is set only when the estimate succeeded.
	Duration *time.Duration

	// Error describes why the estimate failed or was skipped.
	Error string
}

// Attempted reports whether all preconditions were met to call the estimator.
func (t TravelEstimate) Attempted() bool {
	return t.HasProvider && t.HasOrigin && t.HasEventLocation
}

// Succeeded reports whether a travel duration was resolved.
func (t TravelEstimate) Succeeded() bool {
	return t.Duration != nil
}

// lead returns the travel contribution to the total lead time.
func (t *TravelEstimate) lead() time.Duration {
	if t == nil || t.Duration == nil {
		return 0
	}
	return *t.Duration
}

// Alarm is the payload handed to the AlarmSink when the engine decides to wake the user.
type Alarm struct {
	// TriggerAt is the instant the alarm should fire.
	TriggerAt time.Time

	// Event is the calendar event the alarm is based on.
	Event Event

	// Label is the human-readable text, e.g. "Wake up for: Team Standup".
	Label string

	// DayID is derived from the target date so that re-synchronizing the same
	// day replaces the previous alarm instead of adding a second one.
	DayID int32
}

// Status is the outcome of a synchronization pass.
type Status string

const (
	// StatusAlarmSet means an alarm was scheduled.
	StatusAlarmSet Status = "ALARM_SET"

	// StatusNoEvents means no event starts on the target day.
	StatusNoEvents Status = "NO_EVENTS"

	// StatusAlarmTooLate means the computed alarm falls after the latest allowed time.
	StatusAlarmTooLate Status = "ALARM_TOO_LATE"

	// StatusAlarmInPast means the computed alarm is already in the past.
	StatusAlarmInPast Status = "ALARM_IN_PAST"

	// StatusDisabled means the engine is switched off.
	StatusDisabled Status = "DISABLED"
)

// Decision is the result of one synchronization pass.
type Decision struct {
	Status Status

	// Events holds every candidate read from the look-ahead window, for display.
	Events []Event

	// Alarm is set only when Status is StatusAlarmSet.
	Alarm *Alarm

	// Travel is nil for StatusDisabled and StatusNoEvents.
	Travel *TravelEstimate
}
