package schedule

import (
	"testing"
	"time"

	"github.com/tmacey/switchd/internal/config"
)

const (
	romeLat = 41.9028
	romeLon = 12.4964
)

func romeEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	tz, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Fatal(err)
	}
	return NewEvaluator(romeLat, romeLon, tz)
}

func compileOne(t *testing.T, sd config.ScheduleDef) *Def {
	t.Helper()
	defs, err := Compile([]config.ScheduleDef{sd})
	if err != nil {
		t.Fatal(err)
	}
	return defs[sd.Name]
}

func mustDate(t *testing.T, s string) config.Date {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatal(err)
	}
	return config.DateOf(parsed)
}

func TestFixedWindow(t *testing.T) {
	e := romeEvaluator(t)
	def := compileOne(t, config.ScheduleDef{
		Name: "morning",
		Events: []config.Event{
			{TurnOn: "08:00", TurnOff: "10:00", DaysOfWeek: "All"},
		},
	})

	tests := []struct {
		clock string
		want  bool
	}{
		{"07:59", false},
		{"08:00", true}, // on edge inclusive
		{"09:30", true},
		{"10:00", false}, // off edge exclusive
		{"15:00", false},
	}
	for _, tt := range tests {
		now := atClock(t, e, "2025-09-03", tt.clock) // a Wednesday
		if got := e.IsOn(def, now); got != tt.want {
			t.Errorf("IsOn at %s = %v, want %v", tt.clock, got, tt.want)
		}
	}
}

func TestOvernightWindow(t *testing.T) {
	e := romeEvaluator(t)
	def := compileOne(t, config.ScheduleDef{
		Name: "night",
		Events: []config.Event{
			{TurnOn: "22:00", TurnOff: "06:00", DaysOfWeek: "All"},
		},
	})

	tests := []struct {
		clock string
		want  bool
	}{
		{"21:30", false},
		{"22:00", true},
		{"23:59", true},
		{"02:00", true},
		{"05:59", true},
		{"06:00", false},
		{"12:00", false},
	}
	for _, tt := range tests {
		now := atClock(t, e, "2025-09-03", tt.clock)
		if got := e.IsOn(def, now); got != tt.want {
			t.Errorf("IsOn at %s = %v, want %v", tt.clock, got, tt.want)
		}
	}
}

func TestDayOfWeekFilter(t *testing.T) {
	e := romeEvaluator(t)
	def := compileOne(t, config.ScheduleDef{
		Name: "workdays",
		Events: []config.Event{
			{TurnOn: "08:00", TurnOff: "18:00", DaysOfWeek: "Mon,Tue,Wed,Thu,Fri"},
		},
	})

	// 2025-09-05 is a Friday, 2025-09-06 a Saturday.
	if !e.IsOn(def, atClock(t, e, "2025-09-05", "12:00")) {
		t.Error("expected ON on Friday noon")
	}
	if e.IsOn(def, atClock(t, e, "2025-09-06", "12:00")) {
		t.Error("expected OFF on Saturday noon")
	}
}

func TestDateExclusionSuppressesOnlyTheEvent(t *testing.T) {
	e := romeEvaluator(t)
	def := compileOne(t, config.ScheduleDef{
		Name: "holiday",
		Events: []config.Event{
			{
				TurnOn:     "08:00",
				TurnOff:    "18:00",
				DaysOfWeek: "All",
				DatesOff: []config.DateRange{
					{StartDate: mustDate(t, "2025-09-01"), EndDate: mustDate(t, "2025-09-10")},
				},
			},
			{TurnOn: "20:00", TurnOff: "21:00", DaysOfWeek: "All"},
		},
	})

	// Inside the excluded range the first event is suppressed.
	if e.IsOn(def, atClock(t, e, "2025-09-05", "12:00")) {
		t.Error("expected OFF during excluded dates")
	}
	// Endpoints are inclusive.
	if e.IsOn(def, atClock(t, e, "2025-09-10", "12:00")) {
		t.Error("expected OFF on the inclusive end date")
	}
	// The second event still fires on an excluded date.
	if !e.IsOn(def, atClock(t, e, "2025-09-05", "20:30")) {
		t.Error("expected ON from the other event during excluded dates")
	}
	// The day after the range the first event resumes.
	if !e.IsOn(def, atClock(t, e, "2025-09-11", "12:00")) {
		t.Error("expected ON after excluded dates")
	}
}

func TestFirstMatchingEventWins(t *testing.T) {
	e := romeEvaluator(t)
	def := compileOne(t, config.ScheduleDef{
		Name: "overlap",
		Events: []config.Event{
			{TurnOn: "08:00", TurnOff: "12:00", DaysOfWeek: "All"},
			{TurnOn: "10:00", TurnOff: "11:00", DaysOfWeek: "All"},
		},
	})

	if !e.IsOn(def, atClock(t, e, "2025-09-03", "10:30")) {
		t.Error("expected ON inside overlapping windows")
	}
	if e.IsOn(def, atClock(t, e, "2025-09-03", "13:00")) {
		t.Error("expected OFF outside both windows")
	}
}

func TestDuskToDawnSchedule(t *testing.T) {
	e := romeEvaluator(t)
	def := compileOne(t, config.ScheduleDef{
		Name: "outside",
		Events: []config.Event{
			{TurnOn: "Dusk", TurnOff: "Dawn-01:00", DaysOfWeek: "All"},
		},
	})

	day := atClock(t, e, "2025-06-21", "12:00")
	sun := e.Sun(day)
	dusk := sun.Dusk
	offAt := sun.Dawn.Add(-time.Hour)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before dusk", dusk.Add(-10 * time.Minute), false},
		{"after dusk", dusk.Add(10 * time.Minute), true},
		{"late night", atClock(t, e, "2025-06-21", "23:45"), true},
		{"early morning before off", offAt.Add(-10 * time.Minute), true},
		{"after off", offAt.Add(10 * time.Minute), false},
		{"midday", day, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.IsOn(def, tt.now); got != tt.want {
				t.Errorf("IsOn at %s = %v, want %v", tt.now.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestPolarDaySkipsSolarEvent(t *testing.T) {
	tz, err := time.LoadLocation("Europe/Oslo")
	if err != nil {
		t.Fatal(err)
	}
	// Tromsø in June: the sun never sets and civil dusk never happens.
	e := NewEvaluator(69.6492, 18.9553, tz)
	def := compileOne(t, config.ScheduleDef{
		Name: "evening",
		Events: []config.Event{
			{TurnOn: "Dusk", TurnOff: "23:30", DaysOfWeek: "All"},
		},
	})

	for _, clock := range []string{"00:30", "12:00", "22:00", "23:00"} {
		now := atClock(t, e, "2025-06-21", clock)
		if e.IsOn(def, now) {
			t.Errorf("expected OFF at %s during polar day", clock)
		}
	}
}

func TestJitterShiftsEdgesWithinBound(t *testing.T) {
	e := romeEvaluator(t)
	def := compileOne(t, config.ScheduleDef{
		Name: "jittered",
		Events: []config.Event{
			{TurnOn: "08:00", TurnOff: "18:00", DaysOfWeek: "All", RandomOffset: 15},
		},
	})

	// Well inside the window, beyond the maximum jitter, the answer cannot
	// depend on the draw.
	if !e.IsOn(def, atClock(t, e, "2025-09-03", "12:00")) {
		t.Error("expected ON well inside the jittered window")
	}
	if e.IsOn(def, atClock(t, e, "2025-09-03", "07:00")) {
		t.Error("expected OFF well before the jittered window")
	}
	if e.IsOn(def, atClock(t, e, "2025-09-03", "19:00")) {
		t.Error("expected OFF well after the jittered window")
	}
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		expr    string
		days    []time.Weekday
		notDays []time.Weekday
		wantErr bool
	}{
		{expr: "All", days: []time.Weekday{time.Sunday, time.Wednesday, time.Saturday}},
		{expr: "", days: []time.Weekday{time.Monday}},
		{expr: "Mon,Wed,Fri", days: []time.Weekday{time.Monday, time.Wednesday, time.Friday}, notDays: []time.Weekday{time.Tuesday, time.Sunday}},
		{expr: "sat, sun", days: []time.Weekday{time.Saturday, time.Sunday}, notDays: []time.Weekday{time.Monday}},
		{expr: "Mon,Funday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			set, err := ParseDays(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			for _, d := range tt.days {
				if !set.Has(d) {
					t.Errorf("%q should contain %v", tt.expr, d)
				}
			}
			for _, d := range tt.notDays {
				if set.Has(d) {
					t.Errorf("%q should not contain %v", tt.expr, d)
				}
			}
		})
	}
}

func TestCompileRejectsMalformedExpressions(t *testing.T) {
	tests := []struct {
		name string
		def  config.ScheduleDef
	}{
		{"bad TurnOn", config.ScheduleDef{Name: "s", Events: []config.Event{{TurnOn: "sunset", TurnOff: "23:00"}}}},
		{"bad TurnOff", config.ScheduleDef{Name: "s", Events: []config.Event{{TurnOn: "20:00", TurnOff: "25:00"}}}},
		{"bad days", config.ScheduleDef{Name: "s", Events: []config.Event{{TurnOn: "20:00", TurnOff: "23:00", DaysOfWeek: "Mon,Xyz"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile([]config.ScheduleDef{tt.def}); err == nil {
				t.Fatal("expected compile error")
			}
		})
	}
}

// atClock builds an instant on the given date at HH:MM in the evaluator's
// timezone.
func atClock(t *testing.T, e *Evaluator, date, clock string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, e.Timezone())
	if err != nil {
		t.Fatal(err)
	}
	return parsed
}
