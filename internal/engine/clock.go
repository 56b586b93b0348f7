package engine

import "time"

// Clock abstracts time.Now() to allow deterministic testing.
// The caller reads it once per synchronization pass and hands the instant to
// Synchronize, already converted into the user's civil time zone.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current local time.
func (RealClock) Now() time.Time {
	return time.Now()
}
