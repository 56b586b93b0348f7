package alarm

import (
	"context"
	"slices"
	"sync"

	"github.com/tartampluch/go-wakeup/internal/engine"
)

// MemorySink keeps alarms in a map keyed by day identifier.
// It backs dry runs, where nothing may leave the process.
type MemorySink struct {
	mu     sync.Mutex
	alarms map[int32]engine.Alarm
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{alarms: make(map[int32]engine.Alarm)}
}

// Schedule stores a, replacing any alarm for the same day.
func (m *MemorySink) Schedule(_ context.Context, a engine.Alarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarms[a.DayID] = a
	return nil
}

// Cancel forgets the alarm for dayID.
func (m *MemorySink) Cancel(_ context.Context, dayID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alarms, dayID)
	return nil
}

// CanScheduleExact is always true.
func (m *MemorySink) CanScheduleExact() bool { return true }

// Alarms returns a snapshot ordered by day identifier.
func (m *MemorySink) Alarms() []engine.Alarm {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]engine.Alarm, 0, len(m.alarms))
	for _, a := range m.alarms {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b engine.Alarm) int { return int(a.DayID) - int(b.DayID) })
	return out
}

// List returns the alarms as unfired records, ordered by trigger time.
func (m *MemorySink) List(_ context.Context) ([]Record, error) {
	alarms := m.Alarms()
	out := make([]Record, 0, len(alarms))
	for _, a := range alarms {
		out = append(out, Record{Alarm: a})
	}
	slices.SortStableFunc(out, func(a, b Record) int { return a.TriggerAt.Compare(b.TriggerAt) })
	return out, nil
}
