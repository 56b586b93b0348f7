package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// CalendarSettings describes one iCalendar source. Exactly one of URL or Path is set.
// The password for URL sources is kept in the OS keyring under Username.
type CalendarSettings struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name,omitempty"`
	URL      string `yaml:"url,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Username string `yaml:"username,omitempty"`
}

// TravelSettings configures travel-time compensation.
type TravelSettings struct {
	Enabled bool `yaml:"enabled"`

	// OriginLat/OriginLng take precedence over OriginVCard.
	OriginLat   *float64 `yaml:"origin_lat,omitempty"`
	OriginLng   *float64 `yaml:"origin_lng,omitempty"`
	OriginVCard string   `yaml:"origin_vcard,omitempty"`

	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	TravelMode        string `yaml:"travel_mode"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// AlarmSettings configures the local alarm store and the ringer.
type AlarmSettings struct {
	// StorePath defaults to alarms.db next to the settings file.
	StorePath   string `yaml:"store_path,omitempty"`
	PollSeconds int    `yaml:"poll_seconds"`
}

// MQTTSettings enables the MQTT alarm sink when Broker is set.
type MQTTSettings struct {
	Broker      string `yaml:"broker,omitempty"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// ServerSettings configures the local HTTP status server.
type ServerSettings struct {
	Port string `yaml:"port"`
}

// Settings is the persisted user preferences file. It is read at the start of
// every synchronization pass; nothing keeps a live copy between passes.
type Settings struct {
	Enabled           bool     `yaml:"enabled"`
	Timezone          string   `yaml:"timezone,omitempty"`
	PrepMinutes       int      `yaml:"prep_minutes"`
	EarliestAlarm     string   `yaml:"earliest_alarm"`
	LatestAlarm       string   `yaml:"latest_alarm"`
	SnoozeMinutes     int      `yaml:"snooze_minutes"`
	MaxSnoozeCount    int      `yaml:"max_snooze_count"`
	SkipAllDayEvents  bool     `yaml:"skip_all_day_events"`
	EventMergeMinutes int      `yaml:"event_merge_minutes"`
	LookAheadHours    int      `yaml:"look_ahead_hours"`
	CalendarIDs       []string `yaml:"calendar_ids,omitempty"`

	Calendars []CalendarSettings `yaml:"calendars"`
	Travel    TravelSettings     `yaml:"travel"`
	Alarm     AlarmSettings      `yaml:"alarm"`
	MQTT      MQTTSettings       `yaml:"mqtt"`
	Server    ServerSettings     `yaml:"server"`

	RefreshCron    string `yaml:"refresh_cron"`
	DebounceMillis int    `yaml:"debounce_ms"`
	Language       string `yaml:"language"`
}

// DefaultSettings returns the settings written on first run.
func DefaultSettings() *Settings {
	return &Settings{
		Enabled:           DefaultEnabled,
		PrepMinutes:       DefaultPrepMinutes,
		EarliestAlarm:     DefaultEarliestAlarm,
		LatestAlarm:       DefaultLatestAlarm,
		SnoozeMinutes:     DefaultSnoozeMinutes,
		MaxSnoozeCount:    DefaultMaxSnoozeCount,
		SkipAllDayEvents:  DefaultSkipAllDay,
		EventMergeMinutes: DefaultMergeMinutes,
		LookAheadHours:    DefaultLookAheadHours,
		Calendars:         []CalendarSettings{},
		Travel: TravelSettings{
			TimeoutSeconds:    DefaultTravelTimeoutSec,
			TravelMode:        DefaultTravelMode,
			RequestsPerMinute: DefaultTravelPerMinute,
		},
		Alarm: AlarmSettings{
			PollSeconds: DefaultAlarmPollSeconds,
		},
		MQTT: MQTTSettings{
			TopicPrefix: DefaultMQTTTopicPrefix,
			ClientID:    DefaultMQTTClientID,
		},
		Server:         ServerSettings{Port: DefaultPort},
		RefreshCron:    DefaultRefreshCron,
		DebounceMillis: DefaultDebounceMillis,
		Language:       DefaultLanguage,
	}
}

// Load reads the settings file at path. A missing file is created with the
// defaults. Keys absent from the file keep their default values.
func Load(fsys afero.Fs, path string) (*Settings, error) {
	if path == "" {
		return nil, errors.New(ErrConfigPathEmpty)
	}

	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info(MsgSettingsCreate,
			slog.String(LogKeyComponent, CompSettings),
			slog.String(LogKeyFile, path))
		s := DefaultSettings()
		if err := s.Save(fsys, path); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrConfigParse, err)
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%s: %w", ErrConfigParse, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the settings atomically (temp file + rename) with owner-only permissions.
func (s *Settings) Save(fsys afero.Fs, path string) error {
	if path == "" {
		return errors.New(ErrConfigPathEmpty)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}
	if err := fsys.MkdirAll(filepath.Dir(path), DirPermUserRWX); err != nil {
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fsys, tmp, data, FilePermUserRW); err != nil {
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("%s: %w", ErrConfigWrite, err)
	}
	return nil
}

// Validate checks the fields the engine does not validate itself.
// Alarm window and durations are checked when building the engine configuration.
func (s *Settings) Validate() error {
	if _, err := s.Location(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(s.RefreshCron); err != nil {
		return fmt.Errorf("%s: %w", ErrRefreshCron, err)
	}
	for _, c := range s.Calendars {
		hasURL := strings.TrimSpace(c.URL) != ""
		hasPath := strings.TrimSpace(c.Path) != ""
		if hasURL == hasPath || c.ID == "" {
			return fmt.Errorf("%s: %q", ErrCalendarSource, c.ID)
		}
	}
	if s.Travel.TimeoutSeconds <= 0 {
		return errors.New(ErrTravelTimeout)
	}
	if s.Server.Port == "" {
		return errors.New(ErrPortRequired)
	}
	return nil
}

// Location resolves the configured civil time zone, falling back to the host's.
func (s *Settings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrTimezone, err)
	}
	return loc, nil
}

// Debounce returns the quiet period applied to change notifications.
func (s *Settings) Debounce() time.Duration {
	return time.Duration(s.DebounceMillis) * time.Millisecond
}

// TravelTimeout returns the bound applied to a single travel estimate.
func (s *Settings) TravelTimeout() time.Duration {
	return time.Duration(s.Travel.TimeoutSeconds) * time.Second
}

// AlarmStorePath resolves the alarm database path relative to the settings file.
func (s *Settings) AlarmStorePath(settingsPath string) string {
	if s.Alarm.StorePath != "" {
		return s.Alarm.StorePath
	}
	return filepath.Join(filepath.Dir(settingsPath), AlarmDBFileName)
}
