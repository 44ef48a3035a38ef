package engine

import "time"

// Clock supplies wall-clock readings to the frame loop.
//
// The loop never sleeps or waits on the clock; it only measures. Tests swap
// in testutil.ManualClock so delta clamping and FPS snapshots are exact.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now. Readings carry the monotonic component, so
// deltas are unaffected by wall-clock adjustments.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
