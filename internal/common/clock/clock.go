package clock

import "time"

//go:generate mockgen -package=mocks -destination=mocks/mock_clock.go github.com/KirkDiggler/doodle/internal/common/clock Clock
type Clock interface {
	Now() time.Time

	// AfterFunc runs f once, after d has elapsed
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the handle returned by AfterFunc
type Timer interface {
	Stop() bool
}

// DefaultClock implements the Clock interface using the system clock
type DefaultClock struct{}

// Now returns the current time
func (c *DefaultClock) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f on a runtime timer
func (c *DefaultClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
