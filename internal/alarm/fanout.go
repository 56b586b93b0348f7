package alarm

import (
	"context"
	"errors"

	"github.com/tartampluch/go-wakeup/internal/engine"
)

// Fanout forwards every call to each sink in order.
// All sinks are attempted; their errors are joined.
type Fanout []engine.AlarmSink

// Schedule hands a to every sink.
func (f Fanout) Schedule(ctx context.Context, a engine.Alarm) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.Schedule(ctx, a))
	}
	return errors.Join(errs...)
}

// Cancel removes dayID from every sink.
func (f Fanout) Cancel(ctx context.Context, dayID int32) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.Cancel(ctx, dayID))
	}
	return errors.Join(errs...)
}

// CanScheduleExact reports whether at least one sink fires at the exact instant.
func (f Fanout) CanScheduleExact() bool {
	for _, s := range f {
		if s.CanScheduleExact() {
			return true
		}
	}
	return false
}
