package schedule

import (
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tmacey/switchd/internal/astro"
)

// ErrUnresolvableTime is returned when a spec references a sun event that
// does not occur on the requested date (polar day or night). Callers treat
// the owning event as never firing that day.
var ErrUnresolvableTime = errors.New("time does not occur on this date")

// Anchor is the base an expression is relative to
type Anchor int

const (
	AnchorClock Anchor = iota
	AnchorDawn
	AnchorDusk
)

// TimeSpec is a parsed time expression: a fixed clock time, or dawn/dusk
// with a signed offset. Resolved to an instant only for a concrete date.
type TimeSpec struct {
	Raw    string
	Anchor Anchor
	Hour   int // fixed times only
	Min    int
	Offset time.Duration // solar anchors only
}

var (
	// Match "HH:MM"
	clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	// Match "Dawn", "Dusk", "Dawn+00:10", "Dusk-01:30" (case-insensitive)
	solarPattern = regexp.MustCompile(`(?i)^(dawn|dusk)(?:([+-])(\d{1,2}):(\d{2}))?$`)
)

// ParseTimeSpec parses a time expression string
func ParseTimeSpec(expr string) (TimeSpec, error) {
	trimmed := strings.TrimSpace(expr)

	if m := clockPattern.FindStringSubmatch(trimmed); m != nil {
		hour, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])

		if hour > 23 {
			return TimeSpec{}, fmt.Errorf("invalid hour in %q", expr)
		}
		if min > 59 {
			return TimeSpec{}, fmt.Errorf("invalid minute in %q", expr)
		}

		return TimeSpec{Raw: trimmed, Anchor: AnchorClock, Hour: hour, Min: min}, nil
	}

	if m := solarPattern.FindStringSubmatch(trimmed); m != nil {
		anchor := AnchorDawn
		if strings.EqualFold(m[1], "dusk") {
			anchor = AnchorDusk
		}

		var offset time.Duration
		if m[2] != "" {
			hours, _ := strconv.Atoi(m[3])
			mins, _ := strconv.Atoi(m[4])
			offset = time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute
			if m[2] == "-" {
				offset = -offset
			}
		}

		return TimeSpec{Raw: trimmed, Anchor: anchor, Offset: offset}, nil
	}

	return TimeSpec{}, fmt.Errorf("invalid time expression %q, expected HH:MM, Dawn±HH:MM or Dusk±HH:MM", expr)
}

// Resolve computes the instant this spec names on the calendar day of date.
// sun must carry the sun times for that same day.
func (ts TimeSpec) Resolve(date time.Time, sun astro.SunTimes) (time.Time, error) {
	switch ts.Anchor {
	case AnchorClock:
		return time.Date(date.Year(), date.Month(), date.Day(), ts.Hour, ts.Min, 0, 0, date.Location()), nil

	case AnchorDawn:
		if sun.Dawn.IsZero() {
			return time.Time{}, fmt.Errorf("%q: %w", ts.Raw, ErrUnresolvableTime)
		}
		return sun.Dawn.Add(ts.Offset), nil

	case AnchorDusk:
		if sun.Dusk.IsZero() {
			return time.Time{}, fmt.Errorf("%q: %w", ts.Raw, ErrUnresolvableTime)
		}
		return sun.Dusk.Add(ts.Offset), nil
	}

	return time.Time{}, fmt.Errorf("unknown anchor in %q", ts.Raw)
}

// IsSolar reports whether the spec depends on sun times
func (ts TimeSpec) IsSolar() bool {
	return ts.Anchor != AnchorClock
}

// String returns the original expression string
func (ts TimeSpec) String() string {
	return ts.Raw
}

// jitterFor derives the signed random offset for one event edge on one
// calendar day. The draw is uniform over [-maxMinutes, +maxMinutes] and
// stable for a given (key, date): re-evaluating during the same day yields
// the same offset, a new day yields an independent one. No per-day state is
// persisted.
func jitterFor(key string, date time.Time, maxMinutes int) time.Duration {
	if maxMinutes <= 0 {
		return 0
	}

	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s", key, date.Format("2006-01-02"))

	span := uint64(2*maxMinutes + 1)
	minutes := int(h.Sum64()%span) - maxMinutes
	return time.Duration(minutes) * time.Minute
}
