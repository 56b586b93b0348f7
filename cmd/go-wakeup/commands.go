package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/zalando/go-keyring"

	"github.com/tartampluch/go-wakeup/internal/alarm"
	"github.com/tartampluch/go-wakeup/internal/calendar"
	"github.com/tartampluch/go-wakeup/internal/config"
	"github.com/tartampluch/go-wakeup/internal/engine"
	"github.com/tartampluch/go-wakeup/internal/i18n"
	"github.com/tartampluch/go-wakeup/internal/server"
	"github.com/tartampluch/go-wakeup/internal/worker"
)

// runDaemon wires the alarm store, the optional MQTT sink, the HTTP server,
// the ringer and the sync worker, and runs them until ctx is cancelled.
// The store path, MQTT broker, server port and poll interval are read once;
// changing them takes a restart. Everything else follows the settings file.
func runDaemon(ctx context.Context, path string) error {
	log := slog.With(config.LogKeyComponent, config.CompMain)
	fsys := afero.NewOsFs()

	settings, err := config.Load(fsys, path)
	if err != nil {
		return err
	}

	store, err := alarm.Open(settings.AlarmStorePath(path))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var sink engine.AlarmSink = store
	var publisher alarm.Publisher
	if settings.MQTT.Broker != "" {
		pub, err := alarm.NewPahoPublisher(settings.MQTT)
		if err != nil {
			log.Warn(config.MsgMQTTDisabled, config.LogKeyError, err)
		} else {
			defer func() { _ = pub.Close() }()
			publisher = pub
			sink = alarm.Fanout{store, &alarm.MQTTSink{Publisher: pub, Prefix: settings.MQTT.TopicPrefix}}
		}
	}

	srv := server.New(settings.Server.Port)

	runner := worker.NewRunner(path, fsys, calendar.NewHTTPFetcher(), sink)
	runner.Feed = store
	runner.Server = srv

	ringer := &alarm.Ringer{
		Store:          store,
		Publisher:      publisher,
		Prefix:         settings.MQTT.TopicPrefix,
		Poll:           time.Duration(settings.Alarm.PollSeconds) * time.Second,
		SnoozeDuration: time.Duration(settings.SnoozeMinutes) * time.Minute,
		MaxSnoozeCount: settings.MaxSnoozeCount,
		SnoozeLabel:    i18n.New(settings.Language).Snoozed,
	}

	runner.OnSettings = func(s *config.Settings) {
		ringer.SetSnoozePolicy(
			time.Duration(s.SnoozeMinutes)*time.Minute,
			s.MaxSnoozeCount,
			i18n.New(s.Language).Snoozed)
	}

	srv.Actions = ringer
	srv.RequestSync = func() bool { return runner.Trigger(config.ReasonManual) }

	return runAll(ctx, srv.Start, ringer.Run, runner.Run)
}

// runAll runs every fn concurrently and returns once all of them have
// returned. The first failure cancels the others.
func runAll(ctx context.Context, fns ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				cancel()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		slog.Info(config.MsgCtxCancel, config.LogKeyComponent, config.CompMain)
		<-done
	case <-done:
	}
	return errors.Join(errs...)
}

// syncOnce runs a single pass and writes the resulting status as JSON to w.
// A dry run schedules into memory and leaves the alarm store untouched.
func syncOnce(ctx context.Context, w io.Writer, path string, dryRun bool) error {
	fsys := afero.NewOsFs()
	settings, err := config.Load(fsys, path)
	if err != nil {
		return err
	}

	var sink engine.AlarmSink
	if dryRun {
		sink = alarm.NewMemorySink()
	} else {
		store, err := alarm.Open(settings.AlarmStorePath(path))
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		sink = store
	}

	runner := worker.NewRunner(path, fsys, calendar.NewHTTPFetcher(), sink)
	return writeDecision(ctx, w, runner, sink)
}

type syncer interface {
	SyncOnce(ctx context.Context, reason string) (engine.Decision, error)
}

func writeDecision(ctx context.Context, w io.Writer, s syncer, sink engine.AlarmSink) error {
	decision, syncErr := s.SyncOnce(ctx, config.ReasonCLI)

	status := server.NewStatus(decision)
	status.Reason = config.ReasonCLI
	status.SyncedAt = time.Now()
	status.CanScheduleExact = sink.CanScheduleExact()
	if syncErr != nil {
		status.Error = syncErr.Error()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		return errors.Join(syncErr, err)
	}
	return syncErr
}

func setKey(apiKey string) error {
	if apiKey == "" {
		return errors.New(config.ErrKeyArgMissing)
	}
	if err := keyring.Set(config.KeyringService, config.KeyringRoutesUser, apiKey); err != nil {
		return fmt.Errorf("%s: %w", config.ErrKeyring, err)
	}
	slog.Info(config.MsgKeyStored, config.LogKeyComponent, config.CompMain)
	return nil
}

func deleteKey() error {
	err := keyring.Delete(config.KeyringService, config.KeyringRoutesUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%s: %w", config.ErrKeyring, err)
	}
	slog.Info(config.MsgKeyDeleted, config.LogKeyComponent, config.CompMain)
	return nil
}
