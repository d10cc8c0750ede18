package service

import "time"

// Timer is a cancellable alarm created by a Clock.
type Timer interface {
	Stop() bool
}

// Clock supplies wall-clock time and alarms to the dispatcher and presenters.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is backed by the time package.
var SystemClock Clock = systemClock{}
