package config_test

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-wakeup/internal/config"
)

const settingsPath = "/home/user/.config/go-wakeup/config.yaml"

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()

	s, err := config.Load(fs, settingsPath)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSettings(), s)

	info, err := fs.Stat(settingsPath)
	require.NoError(t, err)
	assert.Equal(t, config.FilePermUserRW, info.Mode().Perm())

	exists, err := afero.Exists(fs, settingsPath+".tmp")
	require.NoError(t, err)
	assert.False(t, exists, "Temporary file must be renamed away")
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	yaml := `
prep_minutes: 45
latest_alarm: "09:30"
calendars:
  - id: work
    url: https://example.com/work.ics
    username: alice
travel:
  enabled: true
  origin_lat: 48.8566
  origin_lng: 2.3522
`
	require.NoError(t, afero.WriteFile(fs, settingsPath, []byte(yaml), 0o600))

	s, err := config.Load(fs, settingsPath)
	require.NoError(t, err)

	assert.Equal(t, 45, s.PrepMinutes)
	assert.Equal(t, "09:30", s.LatestAlarm)
	assert.Equal(t, config.DefaultEarliestAlarm, s.EarliestAlarm)
	assert.True(t, s.Enabled, "Absent bool keeps its default")
	assert.True(t, s.SkipAllDayEvents)
	assert.Equal(t, config.DefaultTravelMode, s.Travel.TravelMode)

	require.Len(t, s.Calendars, 1)
	assert.Equal(t, "alice", s.Calendars[0].Username)
	require.NotNil(t, s.Travel.OriginLat)
	assert.InDelta(t, 48.8566, *s.Travel.OriginLat, 1e-9)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"Malformed YAML", "prep_minutes: [", config.ErrConfigParse},
		{"Bad cron", "refresh_cron: every now and then", config.ErrRefreshCron},
		{"Bad timezone", "timezone: Mars/Olympus", config.ErrTimezone},
		{"Calendar without source", "calendars:\n  - id: x\n", config.ErrCalendarSource},
		{"Calendar with both sources", "calendars:\n  - id: x\n    url: https://a\n    path: /b.ics\n", config.ErrCalendarSource},
		{"Empty port", "server:\n  port: \"\"\n", config.ErrPortRequired},
		{"Zero travel timeout", "travel:\n  timeout_seconds: 0\n", config.ErrTravelTimeout},
		{"Negative travel timeout", "travel:\n  timeout_seconds: -5\n", config.ErrTravelTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, settingsPath, []byte(tt.content), 0o600))

			_, err := config.Load(fs, settingsPath)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := config.Load(afero.NewMemMapFs(), "")
	assert.EqualError(t, err, config.ErrConfigPathEmpty)
}

func TestSave_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := config.DefaultSettings()
	s.Enabled = false
	s.Timezone = "UTC"
	s.CalendarIDs = []string{"work"}

	require.NoError(t, s.Save(fs, settingsPath))

	loaded, err := config.Load(fs, settingsPath)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestSettings_Helpers(t *testing.T) {
	s := config.DefaultSettings()

	loc, err := s.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	s.Timezone = "UTC"
	loc, err = s.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	assert.Equal(t, 2*time.Second, s.Debounce())
	assert.Equal(t, 10*time.Second, s.TravelTimeout())

	assert.Equal(t, "/etc/wakeup/alarms.db", s.AlarmStorePath("/etc/wakeup/config.yaml"))
	s.Alarm.StorePath = "/var/lib/alarms.db"
	assert.Equal(t, "/var/lib/alarms.db", s.AlarmStorePath("/etc/wakeup/config.yaml"))
}
