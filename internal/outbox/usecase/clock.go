package usecase

import "time"

// realClock implements Clock with the system time.
type realClock struct{}

// NewClock returns a Clock backed by the system time in UTC.
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}
