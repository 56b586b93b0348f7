package calendar

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/tartampluch/go-wakeup/internal/config"
	"github.com/tartampluch/go-wakeup/internal/engine"
)

// Expand turns parsed VEVENTs into concrete occurrences starting in [from, to).
// Recurring events are expanded with their RRULE and EXDATEs; an instance that
// has a RECURRENCE-ID override is replaced by the override. Occurrences are
// converted to loc and tagged with calendarID.
func Expand(events []VEvent, calendarID string, from, to time.Time, loc *time.Location) ([]engine.Event, error) {
	if to.Before(from) {
		return nil, errors.New(config.ErrExpandRange)
	}
	log := slog.With(config.LogKeyComponent, config.CompCalendar, config.LogKeyCalendar, calendarID)

	overrides := make(map[string][]VEvent)
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	var out []engine.Event
	for _, ev := range events {
		// Overrides are emitted as standalone occurrences below.
		if ev.RecurrenceID != nil {
			if inWindow(ev.Start, from, to) {
				out = append(out, occurrence(ev, ev.Start, ev.End, calendarID, loc))
			}
			continue
		}

		if ev.RRule == "" {
			if inWindow(ev.Start, from, to) {
				out = append(out, occurrence(ev, ev.Start, ev.End, calendarID, loc))
			}
			continue
		}

		starts, err := recurrences(ev, from, to)
		if err != nil {
			log.Warn(config.MsgSkippedEvent,
				config.LogKeyUID, ev.UID,
				config.LogKeyRRule, ev.RRule,
				config.LogKeyError, err)
			continue
		}
		if len(starts) > config.MaxOccurrencesPerEvent {
			log.Warn(config.MsgTruncated,
				config.LogKeyUID, ev.UID,
				config.LogKeyCap, config.MaxOccurrencesPerEvent)
			starts = starts[:config.MaxOccurrencesPerEvent]
		}

		length := ev.End.Sub(ev.Start)
		for _, start := range starts {
			if overridden(overrides[ev.UID], start) {
				continue
			}
			end := start.Add(length)
			if ev.AllDay {
				// Keep whole civil days across DST changes.
				y, m, d := start.Date()
				days := int(length.Round(24*time.Hour) / (24 * time.Hour))
				end = time.Date(y, m, d+days, 0, 0, 0, 0, start.Location())
			}
			out = append(out, occurrence(ev, start, end, calendarID, loc))
		}
	}
	return out, nil
}

// recurrences lists the RRULE instants whose start lies in [from, to).
func recurrences(ev VEvent, from, to time.Time) ([]time.Time, error) {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrRRuleParse, err)
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	all := set.Between(from.In(loc), to.In(loc), true)

	out := all[:0]
	for _, t := range all {
		if inWindow(t, from, to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func overridden(overrides []VEvent, start time.Time) bool {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return true
		}
	}
	return false
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func occurrence(ev VEvent, start, end time.Time, calendarID string, loc *time.Location) engine.Event {
	title := ev.Summary
	if title == "" {
		title = config.FallbackEventTitle
	}
	return engine.Event{
		ID:         fmt.Sprintf(config.OccurrenceIDFormat, ev.UID, start.UTC().Format(time.RFC3339)),
		Title:      title,
		Start:      start.In(loc),
		End:        end.In(loc),
		AllDay:     ev.AllDay,
		CalendarID: calendarID,
		Location:   ev.Location,
	}
}
