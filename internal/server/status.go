package server

import (
	"time"

	"github.com/tartampluch/go-wakeup/internal/engine"
)

// Status is the JSON document served on the status route: the outcome of the
// latest synchronization pass.
type Status struct {
	RunID    string    `json:"run_id"`
	Reason   string    `json:"reason"`
	SyncedAt time.Time `json:"synced_at"`

	// Decision is empty when the pass failed; Error then holds the cause.
	Decision engine.Status `json:"decision,omitempty"`
	Error    string        `json:"error,omitempty"`

	Alarm            *AlarmView  `json:"alarm,omitempty"`
	Travel           *TravelView `json:"travel,omitempty"`
	Events           []EventView `json:"events"`
	CanScheduleExact bool        `json:"can_schedule_exact"`
}

// AlarmView is the scheduled alarm, present for ALARM_SET.
type AlarmView struct {
	DayID     int32     `json:"day_id"`
	TriggerAt time.Time `json:"trigger_at"`
	Label     string    `json:"label"`
	EventID   string    `json:"event_id"`
}

// TravelView reports the travel estimate; Minutes is rounded to the nearest minute.
type TravelView struct {
	Attempted     bool   `json:"attempted"`
	Succeeded     bool   `json:"succeeded"`
	EventLocation string `json:"event_location,omitempty"`
	Minutes       *int   `json:"minutes,omitempty"`
	Error         string `json:"error,omitempty"`
}

// EventView is one candidate event of the look-ahead window.
type EventView struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	AllDay     bool      `json:"all_day,omitempty"`
	CalendarID string    `json:"calendar_id"`
	Location   string    `json:"location,omitempty"`
}

// NewStatus flattens a decision into its JSON view.
func NewStatus(d engine.Decision) Status {
	s := Status{
		Decision: d.Status,
		Events:   make([]EventView, 0, len(d.Events)),
	}
	for _, ev := range d.Events {
		s.Events = append(s.Events, EventView{
			ID:         ev.ID,
			Title:      ev.Title,
			Start:      ev.Start,
			End:        ev.End,
			AllDay:     ev.AllDay,
			CalendarID: ev.CalendarID,
			Location:   ev.Location,
		})
	}
	if a := d.Alarm; a != nil {
		s.Alarm = &AlarmView{
			DayID:     a.DayID,
			TriggerAt: a.TriggerAt,
			Label:     a.Label,
			EventID:   a.Event.ID,
		}
	}
	if t := d.Travel; t != nil {
		tv := &TravelView{
			Attempted:     t.Attempted(),
			Succeeded:     t.Succeeded(),
			EventLocation: t.EventLocation,
			Error:         t.Error,
		}
		if t.Duration != nil {
			m := int(t.Duration.Round(time.Minute) / time.Minute)
			tv.Minutes = &m
		}
		s.Travel = tv
	}
	return s
}
