package amm

import "time"

// Clock supplies the current time. Tests inject a fixed or stepping clock.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func orSystemClock(c Clock) Clock {
	if c == nil {
		return systemClock
	}
	return c
}
