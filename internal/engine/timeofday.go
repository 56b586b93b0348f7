package engine

import (
	"fmt"
	"time"

	"github.com/tartampluch/go-wakeup/internal/config"
)

// TimeOfDay is a civil wall-clock time, independent of any date or zone.
type TimeOfDay struct {
	sinceMidnight time.Duration
}

// NewTimeOfDay builds a TimeOfDay from an hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{sinceMidnight: time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute}
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	for _, layout := range []string{config.TimeOfDayLayout, config.TimeOfDayLayoutSeconds} {
		if t, err := time.Parse(layout, value); err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("%s: %q", config.ErrTimeOfDay, value)
}

// TimeOfDayOf extracts the wall-clock part of t in t's own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	d := time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond())
	return TimeOfDay{sinceMidnight: d}
}

// On returns the instant at this time of day on the civil date of day, in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	h := int(t.sinceMidnight / time.Hour)
	rest := t.sinceMidnight % time.Hour
	return time.Date(y, m, d, h, int(rest/time.Minute), int(rest%time.Minute/time.Second), int(rest%time.Second), loc)
}

// Before reports whether t is strictly earlier in the day than u.
func (t TimeOfDay) Before(u TimeOfDay) bool {
	return t.sinceMidnight < u.sinceMidnight
}

// After reports whether t is strictly later in the day than u.
func (t TimeOfDay) After(u TimeOfDay) bool {
	return t.sinceMidnight > u.sinceMidnight
}

// String formats as HH:MM, or HH:MM:SS when seconds are set.
func (t TimeOfDay) String() string {
	ref := time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(t.sinceMidnight)
	if t.sinceMidnight%time.Minute != 0 {
		return ref.Format(config.TimeOfDayLayoutSeconds)
	}
	return ref.Format(config.TimeOfDayLayout)
}
