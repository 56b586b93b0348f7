package alarm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tartampluch/go-wakeup/internal/config"
	"github.com/tartampluch/go-wakeup/internal/engine"
)

var (
	// ErrNotFired is returned when snoozing an alarm that has not rung.
	ErrNotFired = errors.New(config.ErrAlarmNotFired)

	// ErrSnoozeExhausted is returned once the snooze budget is spent.
	ErrSnoozeExhausted = errors.New(config.ErrSnoozeExhausted)
)

// Ringer fires stored alarms when their trigger instant is reached and
// handles the snooze and dismiss actions on fired alarms.
type Ringer struct {
	Store *Store

	// Publisher receives fired alarms on <Prefix>/fired. Optional.
	Publisher Publisher
	Prefix    string

	Clock engine.Clock
	Poll  time.Duration

	SnoozeDuration time.Duration
	MaxSnoozeCount int

	// Grace bounds how late an alarm may still ring, e.g. after downtime.
	// Older unfired alarms are dropped. Zero means config.AlarmGraceWindow.
	Grace time.Duration

	// SnoozeLabel decorates the label of a snoozed alarm when it rings again.
	SnoozeLabel func(label string) string

	// mu guards the snooze fields once Run or the HTTP actions are live.
	mu sync.Mutex
}

// SetSnoozePolicy replaces the snooze settings of a running ringer.
func (r *Ringer) SetSnoozePolicy(d time.Duration, maxCount int, label func(string) string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SnoozeDuration = d
	r.MaxSnoozeCount = maxCount
	r.SnoozeLabel = label
}

func (r *Ringer) snoozePolicy() (time.Duration, int, func(string) string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.SnoozeDuration, r.MaxSnoozeCount, r.SnoozeLabel
}

// Run polls the store until ctx is cancelled.
func (r *Ringer) Run(ctx context.Context) error {
	log := slog.With(config.LogKeyComponent, config.CompRinger)
	poll := r.Poll
	if poll <= 0 {
		poll = config.DefaultAlarmPollSeconds * time.Second
	}
	log.Info(config.MsgRingerStart, config.LogKeyDelay, poll.String())

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			log.Error(config.ErrStoreQuery, config.LogKeyError, err)
		}
		select {
		case <-ctx.Done():
			log.Info(config.MsgRingerStop)
			return nil
		case <-ticker.C:
		}
	}
}

// Tick fires every due alarm once and returns them.
// A failed publication is logged; the alarm still counts as fired.
// Alarms overdue by more than the grace window are dropped without ringing,
// and fired alarms older than config.AlarmRetention are pruned.
func (r *Ringer) Tick(ctx context.Context) ([]Record, error) {
	now := r.now()
	due, err := r.Store.Due(ctx, now)
	if err != nil {
		return nil, err
	}

	log := slog.With(config.LogKeyComponent, config.CompRinger)
	grace := r.Grace
	if grace <= 0 {
		grace = config.AlarmGraceWindow
	}

	fired := make([]Record, 0, len(due))
	for _, rec := range due {
		if now.Sub(rec.TriggerAt) > grace {
			if err := r.Store.Cancel(ctx, rec.DayID); err != nil {
				return fired, err
			}
			log.Warn(config.MsgAlarmExpired,
				config.LogKeyDayID, rec.DayID,
				config.LogKeyTrigger, rec.TriggerAt)
			continue
		}
		if err := r.Store.MarkFired(ctx, rec.DayID); err != nil {
			return fired, err
		}
		rec.Fired = true
		rec.Label = r.ringLabel(rec)

		log.Info(config.MsgAlarmFired,
			config.LogKeyDayID, rec.DayID,
			config.LogKeyLabel, rec.Label,
			config.LogKeySnoozeCount, rec.SnoozeCount)

		if r.Publisher != nil {
			if err := r.publish(rec); err != nil {
				log.Warn(config.ErrMQTTPublish, config.LogKeyError, err)
			}
		}
		fired = append(fired, rec)
	}

	pruned, err := r.Store.PruneFired(ctx, now.Add(-config.AlarmRetention))
	if err != nil {
		return fired, err
	}
	if pruned > 0 {
		log.Debug(config.MsgAlarmsPruned, config.LogKeyCount, pruned)
	}
	return fired, nil
}

// Snooze re-arms a fired alarm SnoozeDuration from now.
func (r *Ringer) Snooze(ctx context.Context, dayID int32) (Record, error) {
	rec, err := r.Store.Get(ctx, dayID)
	if err != nil {
		return Record{}, err
	}
	if !rec.Fired {
		return Record{}, ErrNotFired
	}
	snooze, maxCount, _ := r.snoozePolicy()
	if rec.SnoozeCount >= maxCount {
		return Record{}, ErrSnoozeExhausted
	}

	at := r.now().Add(snooze)
	count := rec.SnoozeCount + 1
	if err := r.Store.Rearm(ctx, dayID, at, count); err != nil {
		return Record{}, err
	}

	slog.Info(config.MsgAlarmSnoozed,
		config.LogKeyComponent, config.CompRinger,
		config.LogKeyDayID, dayID,
		config.LogKeyTrigger, at,
		config.LogKeySnoozeCount, count)

	rec.TriggerAt = at
	rec.SnoozeCount = count
	rec.Fired = false
	return rec, nil
}

// Dismiss removes the alarm for dayID.
func (r *Ringer) Dismiss(ctx context.Context, dayID int32) error {
	if _, err := r.Store.Get(ctx, dayID); err != nil {
		return err
	}
	if err := r.Store.Cancel(ctx, dayID); err != nil {
		return err
	}
	slog.Info(config.MsgAlarmDismissed,
		config.LogKeyComponent, config.CompRinger,
		config.LogKeyDayID, dayID)
	return nil
}

func (r *Ringer) publish(rec Record) error {
	payload, err := FormatPayload(rec.Alarm, rec.SnoozeCount)
	if err != nil {
		return err
	}
	return r.Publisher.Publish(Topic(r.Prefix, config.MQTTTopicFired), false, payload)
}

// ringLabel keeps the stored label and decorates it only for snoozed rings.
func (r *Ringer) ringLabel(rec Record) string {
	if rec.SnoozeCount == 0 {
		return rec.Label
	}
	if _, _, label := r.snoozePolicy(); label != nil {
		return label(rec.Label)
	}
	return strings.TrimSuffix(rec.Label, config.SnoozedSuffix) + config.SnoozedSuffix
}

func (r *Ringer) now() time.Time {
	if r.Clock == nil {
		return time.Now()
	}
	return r.Clock.Now()
}
