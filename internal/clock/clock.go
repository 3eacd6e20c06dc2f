// Package clock abstracts wall-clock reads and one-shot timers so timer
// behaviour can be driven deterministically in tests.
package clock

import "time"

// Timer is a pending AfterFunc callback.
type Timer interface {
	Stop() bool
}

// Clock provides the time operations used by the scheduler and ticker.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// System is the Clock backed by the time package.
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
