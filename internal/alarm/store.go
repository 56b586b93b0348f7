// Package alarm holds the Alarm Sinks that receive the engine's decisions and
// the ringer that fires them.
package alarm

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tartampluch/go-wakeup/internal/config"
	"github.com/tartampluch/go-wakeup/internal/engine"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when no alarm is stored under a day identifier.
var ErrNotFound = errors.New(config.ErrAlarmNotFound)

// Record is a stored alarm with its firing state.
type Record struct {
	engine.Alarm

	SnoozeCount int
	Fired       bool
	UpdatedAt   time.Time
}

// Store persists alarms in SQLite, one row per day identifier.
// It implements engine.AlarmSink: Schedule replaces, Cancel deletes.
type Store struct {
	db *sql.DB

	// Clock stamps updated_at. Defaults to engine.RealClock.
	Clock engine.Clock
}

// Open creates the database file if needed and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New(config.ErrStorePathEmpty)
	}
	if err := os.MkdirAll(filepath.Dir(path), config.DirPermUserRWX); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreOpen, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreOpen, err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", config.ErrStoreMigrate, err)
	}

	slog.Debug(config.MsgStoreOpened,
		config.LogKeyComponent, config.CompAlarm,
		config.LogKeyPath, path)

	return &Store{db: db, Clock: engine.RealClock{}}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Schedule upserts the alarm for its day. Firing and snooze state are reset.
func (s *Store) Schedule(ctx context.Context, a engine.Alarm) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alarms(day_id, trigger_at, label, event_id, event_title, event_location, event_start, event_end, calendar_id, snooze_count, fired, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)
ON CONFLICT(day_id) DO UPDATE SET
  trigger_at=excluded.trigger_at,
  label=excluded.label,
  event_id=excluded.event_id,
  event_title=excluded.event_title,
  event_location=excluded.event_location,
  event_start=excluded.event_start,
  event_end=excluded.event_end,
  calendar_id=excluded.calendar_id,
  snooze_count=0,
  fired=0,
  updated_at=excluded.updated_at
`,
		a.DayID,
		a.TriggerAt.UnixMilli(),
		a.Label,
		a.Event.ID,
		a.Event.Title,
		a.Event.Location,
		a.Event.Start.UnixMilli(),
		a.Event.End.UnixMilli(),
		a.Event.CalendarID,
		s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreQuery, err)
	}

	slog.Debug(config.MsgAlarmStored,
		config.LogKeyComponent, config.CompAlarm,
		config.LogKeyDayID, a.DayID,
		config.LogKeyTrigger, a.TriggerAt)
	return nil
}

// Cancel deletes the alarm for dayID. Missing rows are not an error.
func (s *Store) Cancel(ctx context.Context, dayID int32) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE day_id=?`, dayID); err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreQuery, err)
	}
	return nil
}

// CanScheduleExact is always true: the ringer fires at the stored instant.
func (s *Store) CanScheduleExact() bool { return true }

const selectColumns = `SELECT day_id, trigger_at, label, event_id, event_title, event_location, event_start, event_end, calendar_id, snooze_count, fired, updated_at FROM alarms`

// Get returns the alarm stored for dayID or ErrNotFound.
func (s *Store) Get(ctx context.Context, dayID int32) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE day_id=?`, dayID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", config.ErrStoreQuery, err)
	}
	return rec, nil
}

// List returns every stored alarm ordered by trigger time.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	return s.query(ctx, selectColumns+` ORDER BY trigger_at ASC, day_id ASC`)
}

// Due returns the unfired alarms whose trigger is at or before now.
func (s *Store) Due(ctx context.Context, now time.Time) ([]Record, error) {
	return s.query(ctx, selectColumns+` WHERE fired=0 AND trigger_at<=? ORDER BY trigger_at ASC`, now.UnixMilli())
}

// PruneFired deletes fired alarms that triggered before cutoff and returns how many were removed.
func (s *Store) PruneFired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE fired=1 AND trigger_at<?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", config.ErrStoreQuery, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", config.ErrStoreQuery, err)
	}
	return n, nil
}

// MarkFired flags the alarm as rung so the ringer does not fire it again.
func (s *Store) MarkFired(ctx context.Context, dayID int32) error {
	return s.update(ctx, `UPDATE alarms SET fired=1, updated_at=? WHERE day_id=?`, s.now().UnixMilli(), dayID)
}

// Rearm moves the alarm to at, records the snooze count and clears the fired flag.
func (s *Store) Rearm(ctx context.Context, dayID int32, at time.Time, snoozeCount int) error {
	return s.update(ctx, `UPDATE alarms SET trigger_at=?, snooze_count=?, fired=0, updated_at=? WHERE day_id=?`,
		at.UnixMilli(), snoozeCount, s.now().UnixMilli(), dayID)
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreQuery, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreQuery, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreQuery, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrStoreQuery, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreQuery, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec                          Record
		trigger, start, end, updated int64
		fired                        int
	)
	err := sc.Scan(
		&rec.DayID,
		&trigger,
		&rec.Label,
		&rec.Event.ID,
		&rec.Event.Title,
		&rec.Event.Location,
		&start,
		&end,
		&rec.Event.CalendarID,
		&rec.SnoozeCount,
		&fired,
		&updated,
	)
	if err != nil {
		return Record{}, err
	}
	rec.TriggerAt = time.UnixMilli(trigger).UTC()
	rec.Event.Start = time.UnixMilli(start).UTC()
	rec.Event.End = time.UnixMilli(end).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	rec.Fired = fired != 0
	return rec, nil
}

func (s *Store) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}
