package calendar

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tartampluch/go-wakeup/internal/config"
)

// VEvent is a VEVENT reduced to what expansion needs. Recurrences are kept as
// the raw RRULE; expansion happens in expand.go.
type VEvent struct {
	UID      string
	Summary  string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time

	// RecurrenceID is set on overrides of a single recurring instance.
	RecurrenceID *time.Time
}

// Parse decodes every VCALENDAR in r. Floating times and dates resolve in loc.
// Malformed events are logged and skipped; only a malformed stream fails.
func Parse(r io.Reader, loc *time.Location) ([]VEvent, error) {
	log := slog.With(config.LogKeyComponent, config.CompCalendar)

	var out []VEvent
	dec := ical.NewDecoder(r)
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrCalendarParse, err)
		}

		for _, ev := range cal.Events() {
			v, err := parseEvent(ev, loc)
			if err != nil {
				log.Warn(config.MsgSkippedEvent, config.LogKeyError, err)
				continue
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func parseEvent(ev ical.Event, loc *time.Location) (VEvent, error) {
	var v VEvent

	uid, err := ev.Props.Text(config.PropUID)
	if err != nil || uid == "" {
		return v, errors.New(config.ErrEventNoUID)
	}
	v.UID = uid

	startProp := ev.Props.Get(config.PropDTStart)
	if startProp == nil {
		return v, fmt.Errorf("%s: %s", config.ErrEventNoStart, uid)
	}
	if v.Start, err = ev.DateTimeStart(loc); err != nil {
		return v, fmt.Errorf("%s: %w", uid, err)
	}
	if v.End, err = ev.DateTimeEnd(loc); err != nil {
		return v, fmt.Errorf("%s: %w", uid, err)
	}
	v.AllDay = startProp.ValueType() == ical.ValueDate

	v.Summary, _ = ev.Props.Text(config.PropSummary)
	v.Location, _ = ev.Props.Text(config.PropLocation)

	if p := ev.Props.Get(config.PropRRule); p != nil {
		v.RRule = p.Value
	}

	for _, p := range ev.Props.Values(config.PropExDate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			// Reuse the property so TZID and VALUE parameters still apply.
			single := p
			single.Value = part
			if t, err := single.DateTime(loc); err == nil {
				v.ExDates = append(v.ExDates, t)
			}
		}
	}

	if p := ev.Props.Get(config.PropRecurrence); p != nil {
		if t, err := p.DateTime(loc); err == nil {
			v.RecurrenceID = &t
		}
	}

	return v, nil
}
