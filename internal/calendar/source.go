package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/afero"

	"github.com/tartampluch/go-wakeup/internal/config"
	"github.com/tartampluch/go-wakeup/internal/engine"
)

// PasswordFunc resolves the password of a calendar account.
type PasswordFunc func(user string) (string, error)

// Source reads events from every configured calendar, remote or local.
// It implements engine.EventSource.
type Source struct {
	Calendars []config.CalendarSettings

	Fetcher Fetcher
	Fs      afero.Fs

	// Password is consulted for URL calendars with a username. Nil means anonymous.
	Password PasswordFunc

	// Location resolves floating times and all-day dates. Nil means time.Local.
	Location *time.Location
}

// ReadEvents returns occurrences starting in [from, to), sorted by start and
// without duplicate occurrence IDs.
//
// A calendar that fails is logged and skipped. The call only fails when every
// configured calendar failed. Access denied counts as an empty calendar.
func (s *Source) ReadEvents(ctx context.Context, from, to time.Time) ([]engine.Event, error) {
	log := slog.With(config.LogKeyComponent, config.CompCalendar)
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	events := []engine.Event{}
	var errs []error
	for _, cal := range s.Calendars {
		got, err := s.readCalendar(ctx, cal, from, to, loc)
		switch {
		case errors.Is(err, ErrUnauthorized):
			log.WarnContext(ctx, config.MsgCalendarDenied, config.LogKeyCalendar, cal.ID)
		case err != nil:
			log.ErrorContext(ctx, config.MsgCalendarFailed,
				config.LogKeyCalendar, cal.ID,
				config.LogKeyError, err)
			errs = append(errs, err)
		default:
			log.DebugContext(ctx, config.MsgCalendarRead,
				config.LogKeyCalendar, cal.ID,
				config.LogKeyCount, len(got))
			events = append(events, got...)
		}
	}
	if len(errs) > 0 && len(errs) == len(s.Calendars) {
		return nil, fmt.Errorf("%s: %w", config.ErrAllCalendars, errors.Join(errs...))
	}

	return normalize(events), nil
}

func (s *Source) readCalendar(ctx context.Context, cal config.CalendarSettings, from, to time.Time, loc *time.Location) ([]engine.Event, error) {
	rc, err := s.open(ctx, cal)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	parsed, err := Parse(rc, loc)
	if err != nil {
		return nil, err
	}
	return Expand(parsed, cal.ID, from, to, loc)
}

func (s *Source) open(ctx context.Context, cal config.CalendarSettings) (io.ReadCloser, error) {
	if cal.Path != "" {
		fsys := s.Fs
		if fsys == nil {
			fsys = afero.NewOsFs()
		}
		return fsys.Open(cal.Path)
	}

	fetcher := s.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher()
	}
	var pass string
	if cal.Username != "" && s.Password != nil {
		p, err := s.Password(cal.Username)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrKeyring, err)
		}
		pass = p
	}
	return fetcher.Fetch(ctx, cal.URL, cal.Username, pass)
}

// normalize drops inverted events, sorts by start (stable) and keeps the first
// occurrence of each ID.
func normalize(events []engine.Event) []engine.Event {
	valid := slices.DeleteFunc(events, func(ev engine.Event) bool {
		return ev.End.Before(ev.Start)
	})
	slices.SortStableFunc(valid, func(a, b engine.Event) int {
		return a.Start.Compare(b.Start)
	})

	seen := make(map[string]struct{}, len(valid))
	out := valid[:0]
	for _, ev := range valid {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	return out
}
