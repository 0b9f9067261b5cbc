package datetime

import "time"

// ISO formats t in UTC as RFC 3339 with millisecond precision. The zero time
// formats as an empty string.
func ISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ISOPtr is ISO for optional timestamps.
func ISOPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return ISO(*t)
}

// Since returns the elapsed time between start and now, or zero when start
// is unset.
func Since(start *time.Time, now time.Time) time.Duration {
	if start == nil {
		return 0
	}
	return now.Sub(*start)
}
