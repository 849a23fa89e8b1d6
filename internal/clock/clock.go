// ABOUTME: Clock interface with a real implementation backed by the time package.
// ABOUTME: Registries read time and schedule callbacks only through this seam.

package clock

import "time"

// Clock provides the current time and deferred callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a callback scheduled with AfterFunc.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or was already stopped.
	Stop() bool
}

type realClock struct{}

// Real returns a Clock backed by time.Now and time.AfterFunc.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
