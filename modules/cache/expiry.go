package cache

import "time"

const day = 24 * time.Hour

// WholeDays returns the number of whole days in d, rounded toward negative
// infinity. 23h59m is 0 days, 25h is 1 day, -1s is -1 day.
func WholeDays(d time.Duration) int {
	days := d / day
	if d%day < 0 {
		days--
	}
	return int(days)
}

// IsExpired reports whether an entry written at createdAt with a lifetime of
// ttlDays is stale at now. Age is truncated to whole days before comparing,
// so an entry is still fresh for the whole of its last day.
//
// Age is measured between wall-clock readings in createdAt's location, the
// same readings the on-disk timestamp records. A DST change therefore never
// moves a day boundary.
func IsExpired(createdAt time.Time, ttlDays int, now time.Time) bool {
	age := wallClock(now.In(createdAt.Location())).Sub(wallClock(createdAt))
	return WholeDays(age) > ttlDays
}

// wallClock drops the zone, keeping the date and clock reading.
func wallClock(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
}
