// Package cadence resolves the progress window a mission event falls into.
//
// Windows are computed lazily from the event timestamp; there is no rollover
// job. All boundaries are taken in a single location fixed at the service
// boundary, so the same instant always maps to the same window regardless of
// the client's or the host's local clock.
package cadence

import (
	"fmt"
	"time"
)

type Cadence string

const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
	Yearly  Cadence = "yearly"
	Once    Cadence = "once"
)

// OnceKey is the single window key used by one-time missions.
const OnceKey = "once"

// All lists the cadences in display order.
var All = []Cadence{Daily, Weekly, Monthly, Yearly, Once}

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	switch c {
	case Daily, Weekly, Monthly, Yearly, Once:
		return true
	}
	return false
}

// Parse converts a string into a Cadence.
func Parse(s string) (Cadence, error) {
	c := Cadence(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown cadence %q", s)
	}
	return c, nil
}

// Window identifies one instance of a cadence period.
type Window struct {
	Key string
	// Start is the first instant of the window in the resolving location.
	// It is the zero time for one-time missions.
	Start time.Time
}

// IsOnce reports whether the window is the permanent one-time window.
func (w Window) IsOnce() bool {
	return w.Key == OnceKey
}

// Resolve returns the window containing t for cadence c, using loc for
// day, week, month and year boundaries. Weeks are ISO weeks starting Monday.
func Resolve(c Cadence, t time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)

	switch c {
	case Daily:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		return Window{Key: start.Format("2006-01-02"), Start: start}, nil
	case Weekly:
		offset := (int(t.Weekday()) + 6) % 7 // days since Monday
		start := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, loc)
		year, week := t.ISOWeek()
		return Window{Key: fmt.Sprintf("%04d-W%02d", year, week), Start: start}, nil
	case Monthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
		return Window{Key: start.Format("2006-01"), Start: start}, nil
	case Yearly:
		start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return Window{Key: start.Format("2006"), Start: start}, nil
	case Once:
		return Window{Key: OnceKey}, nil
	}
	return Window{}, fmt.Errorf("resolve window: unknown cadence %q", c)
}

// End returns the first instant after the window, or the zero time for
// one-time windows.
func End(c Cadence, w Window) time.Time {
	switch c {
	case Daily:
		return w.Start.AddDate(0, 0, 1)
	case Weekly:
		return w.Start.AddDate(0, 0, 7)
	case Monthly:
		return w.Start.AddDate(0, 1, 0)
	case Yearly:
		return w.Start.AddDate(1, 0, 0)
	}
	return time.Time{}
}
