package engine

import "time"

// Clock supplies wall-clock timestamps for committed rows.
//
// Reducers never call time.Now directly: all timestamps flow through the
// engine's clock so tests and the harness can pin time and compare
// snapshots structurally. Implemented by SystemClock (production) and
// testutil.ManualClock (tests).
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock, truncated to millisecond
// precision to match what the store persists.
type SystemClock struct{}

// Now returns the current UTC time at millisecond precision.
func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
