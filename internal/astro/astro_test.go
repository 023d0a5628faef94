package astro

import (
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	tz, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%s): %v", name, err)
	}
	return tz
}

func assertNear(t *testing.T, name string, got time.Time, wantHour, wantMin int, tolerance time.Duration) {
	t.Helper()
	if got.IsZero() {
		t.Fatalf("%s: got zero time", name)
	}
	want := time.Date(got.Year(), got.Month(), got.Day(), wantHour, wantMin, 0, 0, got.Location())
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("%s = %s, want within %s of %02d:%02d", name, got.Format("15:04:05"), tolerance, wantHour, wantMin)
	}
}

func TestTimesRomeSummerSolstice(t *testing.T) {
	tz := mustLoad(t, "Europe/Rome")
	date := time.Date(2025, 6, 21, 0, 0, 0, 0, tz)

	// Rome: 41.9028N, 12.4964E. Reference values from the NOAA solar calculator.
	sun := Times(date, 41.9028, 12.4964, tz)

	tol := 5 * time.Minute
	assertNear(t, "sunrise", sun.Sunrise, 5, 35, tol)
	assertNear(t, "sunset", sun.Sunset, 20, 49, tol)
	assertNear(t, "dawn", sun.Dawn, 4, 59, tol)
	assertNear(t, "dusk", sun.Dusk, 21, 25, tol)
	assertNear(t, "noon", sun.Noon, 13, 12, tol)

	if !sun.Dawn.Before(sun.Sunrise) || !sun.Sunset.Before(sun.Dusk) {
		t.Error("expected dawn < sunrise and sunset < dusk")
	}
}

func TestTimesRomeWinter(t *testing.T) {
	tz := mustLoad(t, "Europe/Rome")
	date := time.Date(2025, 12, 21, 0, 0, 0, 0, tz)

	sun := Times(date, 41.9028, 12.4964, tz)

	tol := 5 * time.Minute
	assertNear(t, "sunrise", sun.Sunrise, 7, 34, tol)
	assertNear(t, "sunset", sun.Sunset, 16, 42, tol)
}

func TestTimesPolarDay(t *testing.T) {
	tz := mustLoad(t, "Europe/Oslo")
	// Tromso in midsummer: the sun never sets and never reaches civil twilight.
	date := time.Date(2025, 6, 21, 0, 0, 0, 0, tz)

	sun := Times(date, 69.6492, 18.9553, tz)

	if !sun.Sunrise.IsZero() || !sun.Sunset.IsZero() {
		t.Errorf("expected no sunrise/sunset during polar day, got %v / %v", sun.Sunrise, sun.Sunset)
	}
	if !sun.Dawn.IsZero() || !sun.Dusk.IsZero() {
		t.Errorf("expected no dawn/dusk during polar day, got %v / %v", sun.Dawn, sun.Dusk)
	}
	if sun.Noon.IsZero() {
		t.Error("solar noon is defined every day")
	}
}

func TestTimesPolarNight(t *testing.T) {
	tz := mustLoad(t, "Europe/Oslo")
	// Tromso in midwinter: the sun never rises.
	date := time.Date(2025, 12, 21, 0, 0, 0, 0, tz)

	sun := Times(date, 69.6492, 18.9553, tz)

	if !sun.Sunrise.IsZero() || !sun.Sunset.IsZero() {
		t.Errorf("expected no sunrise/sunset during polar night, got %v / %v", sun.Sunrise, sun.Sunset)
	}
	// Civil twilight still occurs at this latitude in winter.
	if sun.Dawn.IsZero() || sun.Dusk.IsZero() {
		t.Error("expected civil dawn/dusk during polar night at 69.6N")
	}
}

func TestTimesDeterministic(t *testing.T) {
	tz := mustLoad(t, "Europe/Rome")
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, tz)

	a := Times(date, 41.9028, 12.4964, tz)
	b := Times(date, 41.9028, 12.4964, tz)

	if !a.Dawn.Equal(b.Dawn) || !a.Dusk.Equal(b.Dusk) || !a.Noon.Equal(b.Noon) {
		t.Error("Times must be deterministic for identical inputs")
	}
}
