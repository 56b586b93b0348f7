package alarm

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/tartampluch/go-wakeup/internal/config"
)

// Export renders the stored alarms as an iCalendar feed, one VEVENT with an
// audio VALARM per alarm, so any calendar client can ring them too.
// An empty list yields a minimal valid VCALENDAR.
func Export(records []Record, now time.Time) ([]byte, error) {
	if len(records) == 0 {
		return []byte(config.StubVCalendar), nil
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(config.PropVersion, config.ICalVersion)
	cal.Props.SetText(config.PropProdid, config.ICalProdid)
	cal.Props.SetText(config.PropXWRCalName, config.ICalCalName)
	cal.Props.SetText(config.PropCalScale, config.ICalScale)
	cal.Props.SetText(config.PropMethod, config.ICalMethod)

	refreshProp := ical.NewProp(config.PropRefresh)
	refreshProp.SetDuration(config.DefaultICalRefresh)
	cal.Props.Set(refreshProp)

	dtStampProp := ical.NewProp(config.PropDTStamp)
	dtStampProp.SetDateTime(now.UTC())

	for _, rec := range records {
		event := ical.NewEvent()
		event.Props.SetText(config.PropUID, fmt.Sprintf(config.FormatAlarmUID, rec.DayID, config.ICalDomain))
		event.Props.SetText(config.PropSummary, rec.Label)
		event.Props.SetDateTime(config.PropDTStart, rec.TriggerAt.UTC())
		event.Props.SetDateTime(config.PropDTEnd, rec.TriggerAt.UTC())
		if rec.Event.Location != "" {
			event.Props.SetText(config.PropLocation, rec.Event.Location)
		}
		event.Props.Set(dtStampProp)
		addAlarm(event, config.ICalTrigger, rec.Label)

		cal.Children = append(cal.Children, event.Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrICalEncode, err)
	}
	return buf.Bytes(), nil
}

// addAlarm appends an AUDIO alarm ringing at the event start.
func addAlarm(event *ical.Event, trigger, description string) {
	alarm := ical.NewComponent(config.ICalComponent)
	alarm.Props.SetText(config.PropAction, config.ICalAction)
	alarm.Props.SetText(config.PropDescription, description)

	// Set the raw value to avoid a VALUE=TEXT parameter.
	triggerProp := ical.NewProp(config.PropTrigger)
	triggerProp.Value = trigger
	alarm.Props.Set(triggerProp)

	event.Children = append(event.Children, alarm)
}
