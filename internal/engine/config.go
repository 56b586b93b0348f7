package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tartampluch/go-wakeup/internal/config"
)

// Config holds the scheduling parameters for one synchronization pass.
// Callers build a fresh value per pass; the engine never keeps one around.
type Config struct {
	// PrepTime is subtracted from the first event's start (shower, breakfast, ...).
	PrepTime time.Duration

	// EarliestAlarm clamps alarms computed before it up to this time.
	EarliestAlarm TimeOfDay

	// LatestAlarm drops alarms computed after it; the user is presumably awake.
	LatestAlarm TimeOfDay

	SnoozeDuration time.Duration
	MaxSnoozeCount int

	// SkipAllDayEvents ignores all-day events (holidays, birthdays).
	SkipAllDayEvents bool

	// EventMergeThreshold merges events closer than this into one block.
	EventMergeThreshold time.Duration

	// LookAheadHours is how far past now events are read.
	LookAheadHours int

	// CalendarIDs restricts events to these calendars. Empty means all.
	CalendarIDs []string

	Enabled bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	earliest, _ := ParseTimeOfDay(config.DefaultEarliestAlarm)
	latest, _ := ParseTimeOfDay(config.DefaultLatestAlarm)
	return Config{
		PrepTime:            config.DefaultPrepMinutes * time.Minute,
		EarliestAlarm:       earliest,
		LatestAlarm:         latest,
		SnoozeDuration:      config.DefaultSnoozeMinutes * time.Minute,
		MaxSnoozeCount:      config.DefaultMaxSnoozeCount,
		SkipAllDayEvents:    config.DefaultSkipAllDay,
		EventMergeThreshold: config.DefaultMergeMinutes * time.Minute,
		LookAheadHours:      config.DefaultLookAheadHours,
		Enabled:             config.DefaultEnabled,
	}
}

// NewConfig converts persisted settings into a validated Config.
func NewConfig(s *config.Settings) (Config, error) {
	if s == nil {
		return Config{}, errors.New(config.ErrConfigNil)
	}
	earliest, err := ParseTimeOfDay(s.EarliestAlarm)
	if err != nil {
		return Config{}, err
	}
	latest, err := ParseTimeOfDay(s.LatestAlarm)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		PrepTime:            time.Duration(s.PrepMinutes) * time.Minute,
		EarliestAlarm:       earliest,
		LatestAlarm:         latest,
		SnoozeDuration:      time.Duration(s.SnoozeMinutes) * time.Minute,
		MaxSnoozeCount:      s.MaxSnoozeCount,
		SkipAllDayEvents:    s.SkipAllDayEvents,
		EventMergeThreshold: time.Duration(s.EventMergeMinutes) * time.Minute,
		LookAheadHours:      s.LookAheadHours,
		CalendarIDs:         slices.Clone(s.CalendarIDs),
		Enabled:             s.Enabled,
	}
	return cfg, cfg.Validate()
}

// Validate checks the window ordering and that no duration is negative.
func (c Config) Validate() error {
	if c.EarliestAlarm.After(c.LatestAlarm) {
		return fmt.Errorf("%s: %s > %s", config.ErrEarliestAfter, c.EarliestAlarm, c.LatestAlarm)
	}
	if c.PrepTime < 0 || c.SnoozeDuration < 0 || c.EventMergeThreshold < 0 || c.LookAheadHours < 0 || c.MaxSnoozeCount < 0 {
		return errors.New(config.ErrNegativeDuration)
	}
	return nil
}

// LookAhead returns the read window length.
func (c Config) LookAhead() time.Duration {
	return time.Duration(c.LookAheadHours) * time.Hour
}

// admits applies the all-day and calendar allow-list filters.
func (c Config) admits(ev Event) bool {
	if c.SkipAllDayEvents && ev.AllDay {
		return false
	}
	return len(c.CalendarIDs) == 0 || slices.Contains(c.CalendarIDs, ev.CalendarID)
}
