package lifecycle

import "time"

// Clock supplies the current instant to the resolver and the transition authority.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock returns a Clock reading wall-clock time in UTC.
func SystemClock() Clock {
	return ClockFunc(func() time.Time { return time.Now().UTC() })
}

// FixedClock returns a Clock that always reports the given instant.
func FixedClock(at time.Time) Clock {
	return ClockFunc(func() time.Time { return at })
}
