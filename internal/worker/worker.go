// Package worker is the caller layer around the scheduling engine: it decides
// when a synchronization pass runs, assembles its inputs from the settings
// file and the keyring, and retries failed passes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"github.com/zalando/go-keyring"

	"github.com/tartampluch/go-wakeup/internal/alarm"
	"github.com/tartampluch/go-wakeup/internal/calendar"
	"github.com/tartampluch/go-wakeup/internal/config"
	"github.com/tartampluch/go-wakeup/internal/engine"
	"github.com/tartampluch/go-wakeup/internal/i18n"
	"github.com/tartampluch/go-wakeup/internal/server"
	"github.com/tartampluch/go-wakeup/internal/travel"
)

// AlarmLister lists the alarms currently held by the sink, for the calendar feed.
type AlarmLister interface {
	List(ctx context.Context) ([]alarm.Record, error)
}

// Runner executes synchronization passes. Settings are re-read on every pass;
// when they change, Run rebuilds its periodic, debounce and file-watch triggers.
type Runner struct {
	SettingsPath string
	Fs           afero.Fs

	Fetcher calendar.Fetcher
	Sink    engine.AlarmSink
	Clock   engine.Clock

	// Travel overrides the Routes client built from the keyring API key.
	Travel engine.TravelEstimator

	// Feed and Server are optional: when set, each pass publishes its outcome.
	Feed   AlarmLister
	Server *server.Server

	Attempts int
	Backoff  time.Duration

	// OnSettings, when set, receives the settings loaded by each pass.
	OnSettings func(*config.Settings)

	requests chan string

	mu        sync.Mutex
	routes    *travel.RoutesEstimator
	routesKey string
	latest    *config.Settings
}

// NewRunner returns a Runner with the default retry policy.
func NewRunner(settingsPath string, fsys afero.Fs, fetcher calendar.Fetcher, sink engine.AlarmSink) *Runner {
	return &Runner{
		SettingsPath: settingsPath,
		Fs:           fsys,
		Fetcher:      fetcher,
		Sink:         sink,
		Clock:        engine.RealClock{},
		Attempts:     config.SyncRetryAttempts,
		Backoff:      config.SyncRetryBackoff,
		requests:     make(chan string, config.ChannelBufferSize),
	}
}

// Trigger queues a pass. Requests arriving while one is already queued are
// merged into it; the return value reports whether this call queued a new pass.
func (r *Runner) Trigger(reason string) bool {
	select {
	case r.requests <- reason:
		return true
	default:
		slog.Debug(config.MsgSyncCoalesced,
			config.LogKeyComponent, config.CompWorker,
			config.LogKeyReason, reason)
		return false
	}
}

// Run performs a startup pass, then serves periodic, change and manual
// requests until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	log := slog.With(config.LogKeyComponent, config.CompWorker)

	settings, err := config.Load(r.Fs, r.SettingsPath)
	if err != nil {
		return err
	}
	trig, err := r.startTriggers(ctx, settings)
	if err != nil {
		return err
	}
	defer func() { trig.stop() }()

	log.Info(config.MsgWorkerStart)
	r.Trigger(config.ReasonStartup)

	for {
		select {
		case <-ctx.Done():
			log.Info(config.MsgWorkerStop)
			return nil
		case reason := <-r.requests:
			if _, err := r.SyncOnce(ctx, reason); err != nil && ctx.Err() == nil {
				log.Error(config.ErrSyncFailed,
					config.LogKeyReason, reason,
					config.LogKeyError, err)
			}

			s := r.latestSettings()
			if s == nil || triggerKey(r.SettingsPath, s) == trig.key || ctx.Err() != nil {
				continue
			}
			next, err := r.startTriggers(ctx, s)
			if err != nil {
				log.Error(config.ErrTriggerReload, config.LogKeyError, err)
				continue
			}
			trig.stop()
			trig = next
			log.Info(config.MsgTriggersReload)
		}
	}
}

// triggers holds the periodic, debounce and file-watch sources built from one
// version of the settings.
type triggers struct {
	key      string
	cron     *cron.Cron
	debounce *Debouncer
	cancel   context.CancelFunc
	done     chan struct{}
}

func (r *Runner) startTriggers(ctx context.Context, s *config.Settings) (*triggers, error) {
	log := slog.With(config.LogKeyComponent, config.CompWorker)

	loc, err := s.Location()
	if err != nil {
		return nil, err
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(s.RefreshCron, func() { r.Trigger(config.ReasonPeriodic) }); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrRefreshCron, err)
	}

	delay := s.Debounce()
	wctx, cancel := context.WithCancel(ctx)
	t := &triggers{
		key:      triggerKey(r.SettingsPath, s),
		cron:     c,
		debounce: NewDebouncer(delay, func() { r.Trigger(config.ReasonChange) }),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	w := &calendar.Watcher{
		Paths: watchedPaths(r.SettingsPath, s),
		OnChange: func(path string) {
			log.Debug(config.MsgSyncDebounced,
				config.LogKeyFile, path,
				config.LogKeyDelay, delay.String())
			t.debounce.Trigger()
		},
	}
	go func() {
		defer close(t.done)
		if err := w.Run(wctx); err != nil {
			log.Error(config.ErrWatcher, config.LogKeyError, err)
		}
	}()

	c.Start()
	log.Info(config.MsgCronAdded, config.LogKeySchedule, s.RefreshCron)
	return t, nil
}

func (t *triggers) stop() {
	t.cancel()
	<-t.done
	<-t.cron.Stop().Done()
	t.debounce.Stop()
}

// triggerKey identifies the settings that shape the triggers.
func triggerKey(settingsPath string, s *config.Settings) string {
	return fmt.Sprintf("%s|%s|%d|%s", s.Timezone, s.RefreshCron, s.DebounceMillis,
		strings.Join(watchedPaths(settingsPath, s), "|"))
}

// SyncOnce runs one pass: load settings, build the engine inputs, synchronize
// with bounded retries and publish the outcome.
func (r *Runner) SyncOnce(ctx context.Context, reason string) (engine.Decision, error) {
	runID := uuid.NewString()
	log := slog.With(
		config.LogKeyComponent, config.CompWorker,
		config.LogKeyRunID, runID,
		config.LogKeyReason, reason)
	start := time.Now()
	log.Info(config.MsgSyncStarted)

	decision, err := r.sync(ctx, log)

	status := server.NewStatus(decision)
	status.RunID = runID
	status.Reason = reason
	status.SyncedAt = r.now()
	if r.Sink != nil {
		status.CanScheduleExact = r.Sink.CanScheduleExact()
	}
	if err != nil {
		status.Error = err.Error()
	}
	r.publish(ctx, log, status)

	if err != nil {
		return decision, fmt.Errorf("%s: %w", config.ErrSyncFailed, err)
	}
	log.Info(config.MsgSyncDone,
		config.LogKeyOutcome, decision.Status,
		config.LogKeyDuration, time.Since(start).Milliseconds())
	return decision, nil
}

func (r *Runner) sync(ctx context.Context, log *slog.Logger) (engine.Decision, error) {
	settings, err := config.Load(r.Fs, r.SettingsPath)
	if err != nil {
		return engine.Decision{}, err
	}
	r.remember(settings)

	cfg, err := engine.NewConfig(settings)
	if err != nil {
		return engine.Decision{}, err
	}
	loc, err := settings.Location()
	if err != nil {
		return engine.Decision{}, err
	}

	sched := &engine.Scheduler{
		Source: &calendar.Source{
			Calendars: settings.Calendars,
			Fetcher:   r.Fetcher,
			Fs:        r.Fs,
			Password:  keyringPassword,
			Location:  loc,
		},
		Sink:        r.Sink,
		FormatLabel: i18n.New(settings.Language).Label,
	}

	var origin *engine.Coordinates
	if settings.Travel.Enabled {
		sched.Travel = r.estimator(log, settings.Travel)
		if origin, err = travel.ResolveOrigin(r.Fs, settings.Travel); err != nil {
			log.Warn(config.MsgOriginFailed, config.LogKeyError, err)
			origin = nil
		}
	}

	attempts := max(r.Attempts, 1)
	var decision engine.Decision
	for attempt := 1; ; attempt++ {
		decision, err = sched.Synchronize(ctx, r.now().In(loc), cfg, origin)
		if err == nil || attempt >= attempts || ctx.Err() != nil {
			return decision, err
		}
		log.Warn(config.MsgSyncRetry,
			config.LogKeyAttempt, attempt,
			config.LogKeyDelay, r.Backoff.String(),
			config.LogKeyError, err)

		select {
		case <-ctx.Done():
			return decision, errors.Join(err, ctx.Err())
		case <-time.After(r.Backoff):
		}
	}
}

// estimator returns the configured travel estimator, or nil when travel
// estimation is unavailable. The Routes client is kept between passes so that
// its rate limiter spans them.
func (r *Runner) estimator(log *slog.Logger, s config.TravelSettings) engine.TravelEstimator {
	if r.Travel != nil {
		return r.Travel
	}

	apiKey, err := keyring.Get(config.KeyringService, config.KeyringRoutesUser)
	if err != nil {
		log.Info(config.MsgKeyMissing, config.LogKeyError, err)
		return nil
	}

	key := fmt.Sprintf("%s|%d|%s|%d", apiKey, s.TimeoutSeconds, s.TravelMode, s.RequestsPerMinute)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.routes == nil || r.routesKey != key {
		r.routes = travel.NewRoutesEstimator(apiKey, s)
		r.routesKey = key
	}
	return r.routes
}

// publish refreshes the status document and the alarm feed on the server.
func (r *Runner) publish(ctx context.Context, log *slog.Logger, status server.Status) {
	if r.Server == nil {
		return
	}
	if err := r.Server.UpdateStatus(status); err != nil {
		log.Error(config.ErrWriteResp, config.LogKeyError, err)
	}
	if r.Feed == nil {
		return
	}
	records, err := r.Feed.List(ctx)
	if err != nil {
		log.Error(config.MsgExportFailed, config.LogKeyError, err)
		return
	}
	data, err := alarm.Export(records, r.now())
	if err != nil {
		log.Error(config.MsgExportFailed, config.LogKeyError, err)
		return
	}
	r.Server.UpdateCalendar(data)
}

func (r *Runner) remember(s *config.Settings) {
	r.mu.Lock()
	r.latest = s
	r.mu.Unlock()
	if r.OnSettings != nil {
		r.OnSettings(s)
	}
}

func (r *Runner) latestSettings() *config.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

func (r *Runner) now() time.Time {
	if r.Clock == nil {
		return time.Now()
	}
	return r.Clock.Now()
}

func keyringPassword(user string) (string, error) {
	return keyring.Get(config.KeyringService, user)
}

// watchedPaths lists the settings file and every local calendar file.
func watchedPaths(settingsPath string, s *config.Settings) []string {
	paths := []string{settingsPath}
	for _, c := range s.Calendars {
		if c.Path != "" {
			paths = append(paths, c.Path)
		}
	}
	return paths
}
