package usecase

import "time"

// Localizer resolves user-facing strings for a language.
type Localizer interface {
	T(lang, key string, args ...any) string
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
