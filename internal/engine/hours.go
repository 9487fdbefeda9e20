package engine

import "time"

// nyc resolves lazily so a missing tzdata entry degrades to UTC instead of
// failing startup.
var nyc = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// nyseOpen reports whether NYSE core trading hours (9:30-16:00 ET, weekdays)
// are in session. Exchange holidays are not modeled; the operator executes
// manually and will notice a closed market.
func nyseOpen(t time.Time) bool {
	et := t.In(nyc)
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := et.Hour()*60 + et.Minute()
	return minutes >= 9*60+30 && minutes < 16*60
}

// executionHint words when the operator should act on a switch.
func executionHint(t time.Time) string {
	if nyseOpen(t) {
		return "Execute now."
	}
	return "Execute at next NYSE open."
}
