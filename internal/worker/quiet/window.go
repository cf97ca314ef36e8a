package quiet

import (
	"fmt"
	"time"
)

const clockLayout = "15:04"

// Window is a daily half-open interval [Start, End) measured from midnight.
// When Start is after End the window wraps past midnight; equal bounds make it empty.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// ParseWindow parses "HH:MM" bounds.
func ParseWindow(start, end string) (Window, error) {
	s, err := parseClock(start)
	if err != nil {
		return Window{}, err
	}

	e, err := parseClock(end)
	if err != nil {
		return Window{}, err
	}

	return Window{Start: s, End: e}, nil
}

// Contains reports whether the wall-clock time of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute

	switch {
	case w.Start == w.End:
		return false
	case w.Start < w.End:
		return offset >= w.Start && offset < w.End
	default:
		return offset >= w.Start || offset < w.End
	}
}

// IsQuiet reports whether now falls within the quiet window bounded by start and end.
func IsQuiet(now time.Time, start, end string) (bool, error) {
	w, err := ParseWindow(start, end)
	if err != nil {
		return false, err
	}

	return w.Contains(now), nil
}

func parseClock(value string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", value, err)
	}

	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
