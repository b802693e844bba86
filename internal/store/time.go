package store

import "time"

// Timestamps are persisted as unix milliseconds so rows compare and sort
// identically across platforms. Sub-millisecond precision is dropped on
// the way in; reads always come back UTC.

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
