package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP client.
var UserAgent = "Go-Wakeup/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName           = "Go Wakeup"
	AppID             = "com.github.tartampluch.go-wakeup"
	AppCommand        = "go-wakeup"
	KeyringService    = "com.github.tartampluch.go-wakeup"
	KeyringRoutesUser = "google-routes-api-key"
	LocalhostBindAddr = "127.0.0.1"
	LocalesDir        = "locales"
	LocalePrefix      = "active."
	LocaleSuffix      = ".json"
	LogFileName       = "app.log"
	SettingsFileName  = "config.yaml"
	AlarmDBFileName   = "alarms.db"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	// Used for sensitive files like logs, settings and the alarm store.
	FilePermUserRW fs.FileMode = 0600

	// DirPermUserRWX represents drwx------ (Read/Write/Exec for owner only).
	DirPermUserRWX fs.FileMode = 0700

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1
)

// -----------------------------------------------------------------------------
// CLI Commands, Flags & Descriptions
// -----------------------------------------------------------------------------

const (
	CmdRun     = "run"
	CmdSync    = "sync"
	CmdKey     = "key"
	CmdKeySet  = "set"
	CmdKeyDel  = "delete"
	CmdVersion = "version"

	FlagConfig = "config"
	FlagDebug  = "debug"
	FlagDryRun = "dry-run"

	FlagDescConfig = "Path to the YAML settings file"
	FlagDescDebug  = "Enable debug logging"
	FlagDescDryRun = "Compute the decision without touching the alarm store"

	UsageApp     = "Sets tomorrow's wake-up alarm from your calendars"
	UsageRun     = "run the synchronization daemon"
	UsageSync    = "run a single synchronization pass and print the decision"
	UsageKey     = "manage the Google Routes API key in the OS keyring"
	UsageKeySet  = "store the API key read from the first argument"
	UsageKeyDel  = "remove the stored API key"
	UsageVersion = "print version information"

	MsgVersionOutput = "%s version %s (%s/%s)\n"
)

// -----------------------------------------------------------------------------
// Default Values & Business Logic
// -----------------------------------------------------------------------------

const (
	DefaultPrepMinutes       = 75
	DefaultEarliestAlarm     = "05:00"
	DefaultLatestAlarm       = "10:00"
	DefaultSnoozeMinutes     = 10
	DefaultMaxSnoozeCount    = 3
	DefaultSkipAllDay        = true
	DefaultMergeMinutes      = 30
	DefaultLookAheadHours    = 36
	DefaultEnabled           = true
	DefaultPort              = "18081"
	DefaultRefreshCron       = "0 */3 * * *"
	DefaultDebounceMillis    = 2000
	DefaultLanguage          = "en"
	DefaultTravelMode        = "DRIVE"
	DefaultTravelTimeoutSec  = 10
	DefaultTravelPerMinute   = 6
	DefaultAlarmPollSeconds  = 15
	DefaultMQTTTopicPrefix   = "wakeup/alarms"
	DefaultMQTTClientID      = "go-wakeup"
	MQTTTopicFired           = "fired"
	MQTTTopicSeparator       = "/"
	MQTTQoS                  = 1
	TimeOfDayLayout          = "15:04"
	TimeOfDayLayoutSeconds   = "15:04:05"
	FallbackEventTitle       = "(No title)"
	OccurrenceIDFormat       = "%s/%s"
	SnoozedSuffix            = " (snoozed)"
	SyncRetryAttempts        = 3
	SyncRetryBackoff         = 5 * time.Second
	MaxOccurrencesPerEvent   = 5000
	RoutesDurationSuffix     = "s"
	RoutesErrorBodyMaxLength = 200
	AlarmGraceWindow         = 30 * time.Minute
	AlarmRetention           = 24 * time.Hour
)

// SupportedLanguages defines the list of available label languages (ISO 639-1).
var SupportedLanguages = []string{"en", "fr"}

// -----------------------------------------------------------------------------
// Translation Keys (I18n)
// -----------------------------------------------------------------------------

const (
	TKeyAlarmLabel   = "alarm_label"   // Requires Title
	TKeyAlarmSnoozed = "alarm_snoozed" // Requires Label
)

// -----------------------------------------------------------------------------
// Standards: iCalendar & vCard
// -----------------------------------------------------------------------------

const (
	ICalVersion   = "2.0"
	ICalProdid    = "-//Go Wakeup//Engine//EN"
	ICalCalName   = "Wake-up alarms"
	ICalMethod    = "PUBLISH"
	ICalScale     = "GREGORIAN"
	ICalComponent = "VALARM"
	ICalAction    = "AUDIO"
	ICalDomain    = "gowakeup"
	ICalTrigger   = "PT0S"

	PropUID         = "UID"
	PropSummary     = "SUMMARY"
	PropDTStart     = "DTSTART"
	PropDTEnd       = "DTEND"
	PropDTStamp     = "DTSTAMP"
	PropLocation    = "LOCATION"
	PropRRule       = "RRULE"
	PropExDate      = "EXDATE"
	PropRecurrence  = "RECURRENCE-ID"
	PropRefresh     = "REFRESH-INTERVAL"
	PropAction      = "ACTION"
	PropDescription = "DESCRIPTION"
	PropTrigger     = "TRIGGER"
	PropVersion     = "VERSION"
	PropProdid      = "PRODID"
	PropXWRCalName  = "X-WR-CALNAME"
	PropCalScale    = "CALSCALE"
	PropMethod      = "METHOD"
	ParamValue      = "VALUE"
	ValueDate       = "DATE"

	VCardGEO = "GEO"
	GeoURI   = "geo:"

	FormatAlarmUID     = "%d@%s"
	DefaultICalRefresh = 1 * time.Hour

	// StubVCalendar is the minimal valid iCalendar object used when no alarm is scheduled.
	StubVCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ICalProdid + "\r\nEND:VCALENDAR\r\n"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	HTTPTimeout          = 30 * time.Second
	ShutdownTimeout      = 5 * time.Second
	ServerReadTimeout    = 10 * time.Second
	ServerWriteTimeout   = 30 * time.Second
	ServerIdleTimeout    = 60 * time.Second
	MQTTConnectTimeout   = 10 * time.Second
	MQTTPublishTimeout   = 5 * time.Second
	MQTTRetryInterval    = 5 * time.Second
	MQTTDisconnectMillis = 1000
	RetryAfterSeconds    = "10"
	AllowedMethods       = "GET, HEAD"
	AllowedMethodsPost   = "POST"
	MaxHTTPResponseSize  = 32 * 1024 * 1024 // 32MB
	SchemeHTTP           = "http"
	SchemeHTTPS          = "https"
	AddrSeparator        = ":"
	RoutesURL            = "https://routes.googleapis.com/directions/v2:computeRoutes"
	RoutesFieldMask      = "routes.duration"

	RouteHealth   = "/health"
	RouteStatus   = "/api/status"
	RouteSync     = "/api/sync"
	RouteSnooze   = "/api/alarms/{day}/snooze"
	RouteDismiss  = "/api/alarms/{day}/dismiss"
	RouteCalendar = "/calendar.ics"
	PathDayParam  = "day"
)

// -----------------------------------------------------------------------------
// HTTP Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	HeaderContentType     = "Content-Type"
	HeaderCacheControl    = "Cache-Control"
	HeaderETag            = "ETag"
	HeaderLastModified    = "Last-Modified"
	HeaderRetryAfter      = "Retry-After"
	HeaderAllow           = "Allow"
	HeaderXContentType    = "X-Content-Type-Options"
	HeaderUserAgent       = "User-Agent"
	HeaderIfNoneMatch     = "If-None-Match"
	HeaderIfModifiedSince = "If-Modified-Since"
	HeaderGoogAPIKey      = "X-Goog-Api-Key"
	HeaderGoogFieldMask   = "X-Goog-FieldMask"

	MimeTextCalendar    = "text/calendar; charset=utf-8"
	MimeJSON            = "application/json; charset=utf-8"
	MimeJSONRequest     = "application/json"
	MimeTextPlain       = "text/plain; charset=utf-8"
	MimeNoSniff         = "nosniff"
	CacheControlPrivate = "private, no-cache"

	// FormatETag expects a string argument.
	FormatETag = `"%s"`
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs)
// -----------------------------------------------------------------------------

const (
	ErrConfigPathEmpty   = "configuration error: settings path is empty"
	ErrConfigNil         = "configuration error: settings are nil"
	ErrConfigParse       = "configuration error: failed to parse settings"
	ErrConfigWrite       = "configuration error: failed to write settings"
	ErrEarliestAfter     = "configuration error: earliest alarm is after latest alarm"
	ErrNegativeDuration  = "configuration error: durations must not be negative"
	ErrTimeOfDay         = "configuration error: invalid time of day"
	ErrTimezone          = "configuration error: unknown timezone"
	ErrRefreshCron       = "configuration error: invalid refresh schedule"
	ErrCalendarSource    = "configuration error: calendar needs exactly one of url or path"
	ErrTravelTimeout     = "configuration error: travel timeout must be positive"
	ErrSourceMissing     = "internal error: event source is not initialized"
	ErrSinkMissing       = "internal error: alarm sink is not initialized"
	ErrReadEvents        = "failed to read calendar events"
	ErrScheduleAlarm     = "failed to schedule alarm"
	ErrCancelAlarm       = "failed to cancel alarm"
	ErrAllCalendars      = "every calendar source failed"
	ErrCalendarParse     = "failed to parse iCalendar data"
	ErrICalEncode        = "failed to encode iCalendar data"
	ErrRRuleParse        = "failed to parse recurrence rule"
	ErrInvalidURL        = "invalid URL structure"
	ErrFetchRequest      = "failed to create request"
	ErrFetchNetwork      = "network error during fetch"
	ErrFetchStatus       = "server returned unexpected status"
	ErrEventNoUID        = "event has no UID"
	ErrEventNoStart      = "event has no start"
	ErrExpandRange       = "expansion range end is before start"
	ErrProtocol          = "unsupported protocol scheme (http/https only)"
	ErrUnauthorized      = "calendar access denied"
	ErrEstimatorPanic    = "travel estimator panicked"
	ErrEstimatorNil      = "provider returned no duration"
	ErrNegativeTravel    = "travel estimator returned a negative duration"
	ErrTravelNoProvider  = "no travel time provider configured"
	ErrTravelNoOrigin    = "origin location unavailable"
	ErrTravelNoLocation  = "event has no location"
	ErrRateLimited       = "travel estimate skipped: rate limited"
	ErrAPIKeyMissing     = "travel estimator has no API key"
	ErrRoutesHTTP        = "HTTP %d: %s"
	ErrRoutesEmpty       = "Empty response body"
	ErrRoutesNone        = "No routes returned"
	ErrRoutesNoDuration  = "No duration in route response"
	ErrRoutesUnparseable = "Unparseable duration"
	ErrVCardParse        = "failed to parse vCard"
	ErrVCardNoGeo        = "vCard has no GEO property"
	ErrGeoParse          = "invalid GEO coordinates"
	ErrOriginSource      = "no origin configured"
	ErrStoreOpen         = "failed to open alarm store"
	ErrStoreMigrate      = "failed to migrate alarm store"
	ErrStorePathEmpty    = "alarm store path is empty"
	ErrAlarmNotFound     = "alarm not found"
	ErrAlarmNotFired     = "alarm has not fired yet"
	ErrSnoozeExhausted   = "maximum snooze count reached"
	ErrMQTTConnect       = "failed to connect to MQTT broker"
	ErrMQTTTimeout       = "MQTT operation timed out"
	ErrMQTTPublish       = "failed to publish MQTT message"
	ErrMQTTPayload       = "failed to format MQTT payload"
	ErrPublisherMissing  = "internal error: MQTT publisher is not initialized"
	ErrStoreQuery        = "alarm store query failed"
	ErrServerStartup     = "server startup failed"
	ErrServerShutdown    = "server shutdown failed"
	ErrPortRequired      = "server port is required"
	ErrWriteResp         = "failed to write response body"
	ErrInvalidDay        = "invalid day identifier"
	ErrSyncFailed        = "synchronization pass failed"
	ErrWatcher           = "failed to watch files"
	ErrTriggerReload     = "failed to rebuild sync triggers, keeping previous ones"
	ErrKeyring           = "keyring access failed"
	ErrKeyArgMissing     = "API key argument is required"
	ErrLogFile           = "failed to open log file"
	ErrCacheDir          = "could not determine user cache dir"
	ErrConfigDir         = "could not determine user config dir"
	ErrCreateDir         = "could not create app directory"
	ErrAppFailed         = "application failed unexpectedly"
	ErrLocalesAccess     = "failed to access embedded locales"
	ErrLocaleLoad        = "failed to load locale file"
)

// -----------------------------------------------------------------------------
// HTTP Server Responses
// -----------------------------------------------------------------------------

const (
	HTTPMsgInitializing = "No synchronization has completed yet, please try again shortly."
	HTTPMsgMethodNotAll = "Method Not Allowed"
	HTTPMsgInternalErr  = "Internal Server Error"
	HTTPMsgSyncQueued   = "Synchronization requested"
	HTTPMsgOK           = "OK"
	HTTPMsgBadDay       = "Invalid day identifier"
	HTTPMsgNotFound     = "No alarm for this day"
	HTTPMsgSyncDisabled = "Manual synchronization is not available"
)

// -----------------------------------------------------------------------------
// Fallbacks & Log Messages
// -----------------------------------------------------------------------------

const (
	FallbackLabel = "Wake up for: %s"

	MsgAppStarting    = "Starting application"
	MsgAppStop        = "Application stopped gracefully"
	MsgSyncStarted    = "Synchronization started"
	MsgSyncDone       = "Synchronization finished"
	MsgSyncRetry      = "Synchronization failed, retrying"
	MsgSyncReq        = "Sync requested"
	MsgSyncDebounced  = "Change detected, synchronization deferred"
	MsgSyncCoalesced  = "Synchronization already queued"
	MsgCronAdded      = "Periodic synchronization scheduled"
	MsgExportFailed   = "Alarm feed export failed"
	MsgDisabled       = "Engine disabled, cancelling tomorrow's alarm"
	MsgNoEvents       = "No events on target day"
	MsgTooLate        = "Computed alarm is after the latest allowed time"
	MsgInPast         = "Computed alarm is in the past"
	MsgAlarmSet       = "Alarm scheduled"
	MsgClamped        = "Alarm clamped to earliest allowed time"
	MsgTravelSkipped  = "Travel estimate not attempted"
	MsgTravelFailed   = "Travel estimate failed"
	MsgTravelOK       = "Travel estimate succeeded"
	MsgRouteRequest   = "Requesting route"
	MsgRouteError     = "Routes API error"
	MsgCalendarFailed = "Calendar source failed, skipping"
	MsgFetchStart     = "Initiating calendar download"
	MsgFetchStatus    = "Server returned error status"
	MsgFetchOK        = "Calendar downloading"
	MsgCalendarRead   = "Calendar source read"
	MsgCalendarDenied = "Calendar access denied, treating as empty"
	MsgSkippedEvent   = "Skipping malformed event"
	MsgTruncated      = "Recurrence expansion truncated"
	MsgWorkerStart    = "Background worker started"
	MsgWorkerStop     = "Worker stopping due to context cancellation"
	MsgTriggersReload = "Settings changed, sync triggers rebuilt"
	MsgWatchAdded     = "Watching file for changes"
	MsgWatchEvent     = "File change detected"
	MsgServerListen   = "HTTP server listening"
	MsgServerStop     = "Shutting down HTTP server..."
	MsgCacheUpdated   = "Calendar cache updated"
	MsgStatusUpdated  = "Status cache updated"
	MsgAlarmAction    = "Alarm action rejected"
	MsgAlarmFired     = "Alarm fired"
	MsgAlarmExpired   = "Alarm missed its ring window, dropped"
	MsgAlarmsPruned   = "Old alarms pruned"
	MsgAlarmStored    = "Alarm stored"
	MsgAlarmCancelled = "Alarm cancelled"
	MsgAlarmPublished = "Alarm published"
	MsgStoreOpened    = "Alarm store opened"
	MsgRingerStop     = "Alarm ringer stopping"
	MsgAlarmSnoozed   = "Alarm snoozed"
	MsgAlarmDismissed = "Alarm dismissed"
	MsgRingerStart    = "Alarm ringer started"
	MsgSettingsCreate = "Settings file not found, writing defaults"
	MsgOriginFailed   = "Origin location unavailable"
	MsgKeyStored      = "API key stored in keyring"
	MsgKeyDeleted     = "API key removed from keyring"
	MsgKeyMissing     = "No API key in keyring, travel estimation disabled"
	MsgLocaleSkip     = "Skipping non-locale file"
	MsgLocaleBadName  = "Skipping locale file with empty language code"
	MsgLocaleLoaded   = "Locale loaded successfully"
	MsgTransMissing   = "Missing translation key"
	MsgMQTTConnected  = "Connected to MQTT broker"
	MsgMQTTDisabled   = "MQTT broker unavailable, alarms stay local"
	MsgCtxCancel      = "Context cancelled, shutting down"
	MsgLogWarning     = "Warning: %s at %s: %v\n"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent   = "component"
	LogKeyError       = "error"
	LogKeyURL         = "url"
	LogKeyStatus      = "status_code"
	LogKeyFile        = "file"
	LogKeyLang        = "lang"
	LogKeyKey         = "key"
	LogKeyPort        = "port"
	LogKeyReason      = "reason"
	LogKeyRunID       = "run_id"
	LogKeyAttempt     = "attempt"
	LogKeyOutcome     = "outcome"
	LogKeyDayID       = "day_id"
	LogKeyTrigger     = "trigger_at"
	LogKeyAnchor      = "anchor"
	LogKeyEvent       = "event"
	LogKeyEvents      = "events"
	LogKeyCandidates  = "candidates"
	LogKeyBlocks      = "blocks"
	LogKeyLead        = "lead"
	LogKeyTravel      = "travel"
	LogKeyLocation    = "location"
	LogKeyCalendar    = "calendar"
	LogKeyCount       = "count"
	LogKeyUID         = "uid"
	LogKeySchedule    = "schedule"
	LogKeyDelay       = "delay"
	LogKeySnoozeCount = "snooze_count"
	LogKeyTopic       = "topic"
	LogKeySizeBytes   = "size_bytes"
	LogKeyETag        = "etag"
	LogKeyDuration    = "duration_ms"
	LogKeyLength      = "content_length"
	LogKeyCap         = "cap"
	LogKeyRRule       = "rrule"
	LogKeyLabel       = "label"
	LogKeyPath        = "path"

	// Startup Info Keys
	LogKeyBuild   = "build"
	LogKeyApp     = "app"
	LogKeyVersion = "version"
	LogKeyGoVer   = "go_version"
	LogKeyEnv     = "env"
	LogKeyOS      = "os"
	LogKeyArch    = "arch"
	LogKeyPID     = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompEngine   = "engine"
	CompCalendar = "calendar"
	CompFetcher  = "fetcher"
	CompWatcher  = "watcher"
	CompTravel   = "travel"
	CompAlarm    = "alarm"
	CompRinger   = "ringer"
	CompMQTT     = "mqtt"
	CompServer   = "server"
	CompWorker   = "worker"
	CompSettings = "settings"
	CompMain     = "main"
	CompI18n     = "i18n"
)

// -----------------------------------------------------------------------------
// Sync Trigger Reasons
// -----------------------------------------------------------------------------

const (
	ReasonStartup  = "startup"
	ReasonPeriodic = "periodic"
	ReasonChange   = "change"
	ReasonManual   = "manual"
	ReasonCLI      = "cli"
)
