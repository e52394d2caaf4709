package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidClock is returned for clock times outside 1-12 hours, 0-59 minutes or AM/PM
	ErrInvalidClock = errors.New("session: invalid clock time")

	// ErrWindowElapsed is returned when a window ends at or before the current time
	ErrWindowElapsed = errors.New("session: window has already ended")
)

// Meridiem values
const (
	AM = "AM"
	PM = "PM"
)

// ClockTime is a 12-hour wall clock reading as entered by a user
type ClockTime struct {
	Hour     int
	Minute   int
	Meridiem string
}

// Validate checks the clock time ranges
func (c ClockTime) Validate() error {
	if c.Hour < 1 || c.Hour > 12 {
		return fmt.Errorf("%w: hour must be 1-12, got %d", ErrInvalidClock, c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("%w: minute must be 0-59, got %d", ErrInvalidClock, c.Minute)
	}
	if c.Meridiem != AM && c.Meridiem != PM {
		return fmt.Errorf("%w: meridiem must be AM or PM, got %q", ErrInvalidClock, c.Meridiem)
	}
	return nil
}

// Hour24 converts the reading to a 0-23 hour
func (c ClockTime) Hour24() int {
	if c.Meridiem == AM {
		if c.Hour == 12 {
			return 0
		}
		return c.Hour
	}
	if c.Hour == 12 {
		return 12
	}
	return c.Hour + 12
}

// String formats the clock time as "3:04 PM"
func (c ClockTime) String() string {
	return fmt.Sprintf("%d:%02d %s", c.Hour, c.Minute, c.Meridiem)
}

// ClockOf returns the 12-hour reading of t
func ClockOf(t time.Time) ClockTime {
	h := t.Hour() % 12
	if h == 0 {
		h = 12
	}
	m := AM
	if t.Hour() >= 12 {
		m = PM
	}
	return ClockTime{Hour: h, Minute: t.Minute(), Meridiem: m}
}

// ParseClock parses "11:00 PM", "11:00pm" or "11 PM"
func ParseClock(s string) (ClockTime, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	var meridiem string
	switch {
	case strings.HasSuffix(s, AM):
		meridiem = AM
	case strings.HasSuffix(s, PM):
		meridiem = PM
	default:
		return ClockTime{}, fmt.Errorf("%w: missing AM/PM in %q", ErrInvalidClock, s)
	}
	digits := strings.TrimSpace(strings.TrimSuffix(s, meridiem))

	c := ClockTime{Meridiem: meridiem}
	var err error
	if strings.Contains(digits, ":") {
		_, err = fmt.Sscanf(digits, "%d:%d", &c.Hour, &c.Minute)
	} else {
		_, err = fmt.Sscanf(digits, "%d", &c.Hour)
	}
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	if err := c.Validate(); err != nil {
		return ClockTime{}, err
	}
	return c, nil
}

// Window is an absolute study window
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the window length
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// RolledOver reports whether the window crosses into the next day
func (w Window) RolledOver() bool {
	return w.End.YearDay() != w.Start.YearDay() || w.End.Year() != w.Start.Year()
}

// NormalizeWindow anchors both clock readings to the date of now in loc.
// An end not after the start rolls past midnight (end += 24h).
func NormalizeWindow(now time.Time, loc *time.Location, start, end ClockTime) (Window, error) {
	if err := start.Validate(); err != nil {
		return Window{}, fmt.Errorf("start time: %w", err)
	}
	if err := end.Validate(); err != nil {
		return Window{}, fmt.Errorf("end time: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}

	today := now.In(loc)
	startAt := time.Date(today.Year(), today.Month(), today.Day(), start.Hour24(), start.Minute, 0, 0, loc)
	endAt := time.Date(today.Year(), today.Month(), today.Day(), end.Hour24(), end.Minute, 0, 0, loc)

	return Window{Start: startAt, End: rollover(startAt, endAt)}, nil
}

// rollover applies the midnight rule: an end not after the start is the same
// wall-clock time on the next day, so DST changes overnight keep the chosen end
func rollover(start, end time.Time) time.Time {
	if !end.After(start) {
		return end.AddDate(0, 0, 1)
	}
	return end
}
