package livesession

import "time"

// clock abstracts the scheduler's time source so playback ordering can be
// tested deterministically.
type clock interface {
	Now() time.Time
	// AfterFunc runs f after d elapses and returns a stop function. Stop
	// reports whether it prevented f from running.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) func() bool {
	timer := time.AfterFunc(d, f)
	return timer.Stop
}
