package progress

import "time"

// DateLayout is how calendar dates are persisted
const DateLayout = "2006-01-02"

// CalendarDate drops the time of day, keeping t's year, month and day in its
// own location. The result is midnight UTC so dates compare by value.
func CalendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a persisted YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders the calendar date of t as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return CalendarDate(t).Format(DateLayout)
}

// DaysBetween returns the number of whole calendar days from `from` to `to`.
// Negative when `to` is before `from`.
func DaysBetween(from, to time.Time) int {
	return int(CalendarDate(to).Sub(CalendarDate(from)).Hours() / 24)
}

// NextStreak derives the daily streak after a completion made on `today`.
//
//	no previous activity  -> 1
//	same day              -> current
//	previous day          -> current + 1
//	anything else         -> 1
//
// A last-activity date after today (clock skew) also resets to 1.
func NextStreak(lastActivity *time.Time, current int, today time.Time) int {
	if lastActivity == nil {
		return 1
	}

	switch DaysBetween(*lastActivity, today) {
	case 0:
		return current
	case 1:
		return current + 1
	default:
		return 1
	}
}
