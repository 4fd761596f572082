package engine

import "time"

// Clock supplies the wall time used for run and chunk durations.
// Durations are reported, never used for ordering.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }
