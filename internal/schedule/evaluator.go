package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tmacey/switchd/internal/astro"
	"github.com/tmacey/switchd/internal/config"
)

// Evaluator decides whether a schedule is ON at a given instant for a fixed
// location. Pure aside from debug logging; safe for concurrent use.
type Evaluator struct {
	lat float64
	lon float64
	tz  *time.Location
}

// NewEvaluator creates an evaluator for the given coordinates and timezone
func NewEvaluator(lat, lon float64, tz *time.Location) *Evaluator {
	return &Evaluator{lat: lat, lon: lon, tz: tz}
}

// Timezone returns the evaluator's timezone
func (e *Evaluator) Timezone() *time.Location {
	return e.tz
}

// Sun returns the sun event times for the calendar day of t
func (e *Evaluator) Sun(t time.Time) astro.SunTimes {
	local := t.In(e.tz)
	return astro.Times(local, e.lat, e.lon, e.tz)
}

// IsOn reports whether the schedule says ON at now. Events are checked in
// listed order and the first event whose window contains now wins.
func (e *Evaluator) IsOn(def *Def, now time.Time) bool {
	local := now.In(e.tz)
	today := config.DateOf(local)
	sun := e.Sun(local)

	for idx, ev := range def.Events {
		if !ev.Days.Has(local.Weekday()) {
			continue
		}

		if excluded(ev.DatesOff, today) {
			continue
		}

		on, off, err := e.resolveWindow(def.Name, idx, ev, local, sun)
		if err != nil {
			// Sun event missing today; the event never fires on this date.
			log.Debug().Err(err).Str("schedule", def.Name).Int("event", idx).Msg("Event skipped for today")
			continue
		}

		log.Debug().
			Str("schedule", def.Name).
			Int("event", idx).
			Str("on", on.Format("15:04")).
			Str("off", off.Format("15:04")).
			Str("now", local.Format("15:04")).
			Msg("Evaluated event window")

		if inWindow(local, on, off) {
			return true
		}
	}

	return false
}

// resolveWindow resolves the on and off instants of an event for the day of
// local, applying the event's daily jitter to each edge independently.
func (e *Evaluator) resolveWindow(schedName string, idx int, ev Event, local time.Time, sun astro.SunTimes) (on, off time.Time, err error) {
	on, err = ev.On.Resolve(local, sun)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	off, err = ev.Off.Resolve(local, sun)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	on = on.Add(jitterFor(fmt.Sprintf("%s|%d|on", schedName, idx), local, ev.Jitter))
	off = off.Add(jitterFor(fmt.Sprintf("%s|%d|off", schedName, idx), local, ev.Jitter))
	return on, off, nil
}

// inWindow reports whether now is inside [on, off). When off <= on the
// window spans midnight: on until the off time of the following morning.
func inWindow(now, on, off time.Time) bool {
	if off.After(on) {
		return !now.Before(on) && now.Before(off)
	}
	return !now.Before(on) || now.Before(off)
}

func excluded(ranges []config.DateRange, today config.Date) bool {
	for _, rng := range ranges {
		if rng.Contains(today) {
			return true
		}
	}
	return false
}

// IsUnresolvable reports whether err stems from a missing sun event
func IsUnresolvable(err error) bool {
	return errors.Is(err, ErrUnresolvableTime)
}
