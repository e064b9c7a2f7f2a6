package slot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the wall-clock format used for every time-point.
const TimeLayout = "15:04"

var ErrInvalidRange = errors.New("invalid slot range")

// clockLayouts are tried in order. The seconds form is what postgres TIME
// columns render.
var clockLayouts = []string{TimeLayout, "15:04:05"}

// ParseClock returns the minutes since midnight for an "HH:MM" clock time.
// "HH:MM:SS" is accepted when the seconds are zero.
func ParseClock(v string) (int, error) {
	v = strings.TrimSpace(v)
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		if t.Second() != 0 {
			return 0, fmt.Errorf("%w: clock time %q is not on a whole minute", ErrInvalidRange, v)
		}
		return t.Hour()*60 + t.Minute(), nil
	}
	return 0, fmt.Errorf("%w: bad clock time %q", ErrInvalidRange, v)
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeClock parses and re-renders a clock time so "9:00" and "09:00:00" both become "09:00".
func NormalizeClock(v string) (string, error) {
	m, err := ParseClock(v)
	if err != nil {
		return "", err
	}
	return FormatClock(m), nil
}

// Expand turns a window and a duration into its ordered time-points. The first
// point is start, each next point adds durationMinutes, and the last point is
// strictly before end. On invalid input it returns an empty, non-nil sequence
// together with an error wrapping ErrInvalidRange.
func Expand(start, end string, durationMinutes int) ([]string, error) {
	if durationMinutes <= 0 {
		return []string{}, fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidRange, durationMinutes)
	}

	from, err := ParseClock(start)
	if err != nil {
		return []string{}, err
	}
	to, err := ParseClock(end)
	if err != nil {
		return []string{}, err
	}
	if to <= from {
		return []string{}, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidRange, end, start)
	}

	points := make([]string, 0, (to-from+durationMinutes-1)/durationMinutes)
	for m := from; m < to; m += durationMinutes {
		points = append(points, FormatClock(m))
	}
	return points, nil
}

// Contains reports whether point is one of the time-points Expand yields for the window.
func Contains(start, end string, durationMinutes int, point string) bool {
	from, err := ParseClock(start)
	if err != nil {
		return false
	}
	to, err := ParseClock(end)
	if err != nil {
		return false
	}
	p, err := ParseClock(point)
	if err != nil || durationMinutes <= 0 {
		return false
	}
	return p >= from && p < to && (p-from)%durationMinutes == 0
}
