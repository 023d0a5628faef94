// Package schedule compiles schedule definitions and evaluates whether a
// schedule is ON or OFF at a given instant.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/tmacey/switchd/internal/config"
)

// WeekdaySet is a bitmask of weekdays, bit position = time.Weekday
type WeekdaySet uint8

// AllDays has every weekday set
const AllDays WeekdaySet = 0x7F

// Has reports whether the set contains d
func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseDays parses a DaysOfWeek expression: "All", empty (same as All), or a
// comma-separated list of three-letter day abbreviations.
func ParseDays(expr string) (WeekdaySet, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" || strings.EqualFold(trimmed, "all") {
		return AllDays, nil
	}

	var set WeekdaySet
	for _, tok := range strings.Split(trimmed, ",") {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(tok))]
		if !ok {
			return 0, fmt.Errorf("unknown day %q in %q", tok, expr)
		}
		set |= 1 << uint(day)
	}
	return set, nil
}

// Def is a compiled schedule definition
type Def struct {
	Name   string
	Events []Event
}

// Event is one compiled on/off window
type Event struct {
	On       TimeSpec
	Off      TimeSpec
	Jitter   int // max random offset magnitude, minutes
	Days     WeekdaySet
	DatesOff []config.DateRange
}

// Compile parses all schedule definitions into evaluable form. Any parse
// failure is a configuration error; evaluation never sees a malformed
// expression.
func Compile(defs []config.ScheduleDef) (map[string]*Def, error) {
	compiled := make(map[string]*Def, len(defs))

	for _, sd := range defs {
		def := &Def{Name: sd.Name}

		for i, ev := range sd.Events {
			on, err := ParseTimeSpec(ev.TurnOn)
			if err != nil {
				return nil, fmt.Errorf("%w: schedule %q event %d TurnOn: %v", config.ErrConfiguration, sd.Name, i, err)
			}
			off, err := ParseTimeSpec(ev.TurnOff)
			if err != nil {
				return nil, fmt.Errorf("%w: schedule %q event %d TurnOff: %v", config.ErrConfiguration, sd.Name, i, err)
			}
			days, err := ParseDays(ev.DaysOfWeek)
			if err != nil {
				return nil, fmt.Errorf("%w: schedule %q event %d DaysOfWeek: %v", config.ErrConfiguration, sd.Name, i, err)
			}

			def.Events = append(def.Events, Event{
				On:       on,
				Off:      off,
				Jitter:   ev.RandomOffset,
				Days:     days,
				DatesOff: ev.DatesOff,
			})
		}

		compiled[sd.Name] = def
	}

	return compiled, nil
}
