package engine

import "time"

const secondsPerDay = 24 * 60 * 60

// TargetDay returns the half-open interval [start, end) covering the civil day
// that follows now, in now's location.
func TargetDay(now time.Time) (start, end time.Time) {
	y, m, d := now.Date()
	loc := now.Location()
	start = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	end = time.Date(y, m, d+2, 0, 0, 0, 0, loc)
	return start, end
}

// DayID maps the civil date of t to the number of days since 1970-01-01,
// truncated to 32 bits. Identical dates always yield the identical value,
// whatever the zone or time of day.
func DayID(t time.Time) int32 {
	y, m, d := t.Date()
	return int32(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay)
}

// DayFromID is the inverse of DayID, returning midnight UTC of that date.
func DayFromID(id int32) time.Time {
	return time.Unix(int64(id)*secondsPerDay, 0).UTC()
}
