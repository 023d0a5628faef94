// Package astro computes sun event times for a given location and date
// using the NOAA solar position equations.
package astro

import (
	"math"
	"time"
)

// Horizon angles in degrees below the geometric horizon.
const (
	horizonSunAngle   = -0.833 // sunrise/sunset, accounts for refraction and solar radius
	horizonCivilAngle = -6.0   // civil dawn/dusk
)

// SunTimes contains the sun event instants for one calendar day.
// A zero time means the event does not occur on that day (polar day or night).
type SunTimes struct {
	Dawn    time.Time
	Sunrise time.Time
	Noon    time.Time
	Sunset  time.Time
	Dusk    time.Time
}

// Times computes the sun events for the calendar day of date at the given
// coordinates. Results are expressed in tz. Pure and deterministic.
func Times(date time.Time, lat, lon float64, tz *time.Location) SunTimes {
	// The NOAA sunrise equation expects the Julian day at noon, not midnight.
	jd := toJulianDay(date) + 0.5

	return SunTimes{
		Dawn:    sunTime(jd, lat, lon, tz, horizonCivilAngle, true),
		Sunrise: sunTime(jd, lat, lon, tz, horizonSunAngle, true),
		Noon:    solarNoon(jd, lon, tz),
		Sunset:  sunTime(jd, lat, lon, tz, horizonSunAngle, false),
		Dusk:    sunTime(jd, lat, lon, tz, horizonCivilAngle, false),
	}
}

// toJulianDay converts a date to Julian day number
func toJulianDay(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())

	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
}

// solarNoon calculates solar noon
func solarNoon(jd, lon float64, tz *time.Location) time.Time {
	n := jd - 2451545.0 + 0.0008

	// Mean solar noon
	jStar := n - lon/360.0

	// Solar mean anomaly
	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := m * math.Pi / 180.0

	// Equation of center
	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)

	// Ecliptic longitude
	lambda := math.Mod(m+c+180+102.9372, 360.0)
	lambdaRad := lambda * math.Pi / 180.0

	// Solar transit
	jTransit := 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)

	return julianToTime(jTransit, tz)
}

// sunTime calculates the instant the sun crosses the given horizon angle.
// Returns the zero time when the sun never crosses that angle on this day.
func sunTime(jd, lat, lon float64, tz *time.Location, angle float64, rising bool) time.Time {
	n := jd - 2451545.0 + 0.0008
	jStar := n - lon/360.0

	// Solar mean anomaly
	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := m * math.Pi / 180.0

	// Equation of center
	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)

	// Ecliptic longitude
	lambda := math.Mod(m+c+180+102.9372, 360.0)
	lambdaRad := lambda * math.Pi / 180.0

	// Solar transit
	jTransit := 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)

	// Declination of the sun
	sinDec := math.Sin(lambdaRad) * math.Sin(23.44*math.Pi/180.0)
	dec := math.Asin(sinDec)

	// Hour angle
	latRad := lat * math.Pi / 180.0
	angleRad := angle * math.Pi / 180.0

	cosOmega := (math.Sin(angleRad) - math.Sin(latRad)*math.Sin(dec)) / (math.Cos(latRad) * math.Cos(dec))

	// |cosOmega| > 1 means the sun never reaches the angle on this day:
	// continuous day (< -1) or continuous night (> 1)
	if cosOmega > 1 || cosOmega < -1 {
		return time.Time{}
	}

	omega := math.Acos(cosOmega) * 180.0 / math.Pi

	var jTime float64
	if rising {
		jTime = jTransit - omega/360.0
	} else {
		jTime = jTransit + omega/360.0
	}

	return julianToTime(jTime, tz)
}

// julianToTime converts Julian day to an absolute instant in tz
func julianToTime(jd float64, tz *time.Location) time.Time {
	unixTime := (jd - 2440587.5) * 86400.0
	sec := math.Floor(unixTime)
	return time.Unix(int64(sec), int64((unixTime-sec)*1e9)).In(tz)
}
