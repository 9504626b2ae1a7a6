package engine

import (
	"time"
)

// =============================================================================
// PERIOD BOUNDARIES - All computed in the location of the input time
// =============================================================================

// MonthLayout is the season key format.
const MonthLayout = "2006-01"

// EndOfDay returns 23:59:59.999 on t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// StartOfDay returns midnight on t's calendar day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// NextMonday returns the Monday strictly after t's day. On a Monday this is
// seven days ahead.
func NextMonday(t time.Time) time.Time {
	days := (8 - int(t.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	return StartOfDay(t).AddDate(0, 0, days)
}

// EndOfMonth returns 23:59:59.999 on the last day of t's month.
func EndOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	return EndOfDay(firstOfNext.AddDate(0, 0, -1))
}

// ExpiresAt returns the expiry for a challenge of the period generated at now.
func ExpiresAt(p Period, now time.Time) time.Time {
	switch p {
	case PeriodWeekly:
		return EndOfDay(NextMonday(now))
	case PeriodMonthly:
		return EndOfMonth(now)
	default:
		return EndOfDay(now)
	}
}

// =============================================================================
// SEASONS - A season is a calendar month
// =============================================================================

// MonthKey formats t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format(MonthLayout)
}

// PreviousMonthKey returns the YYYY-MM key of the month before t's month.
func PreviousMonthKey(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return MonthKey(first.AddDate(0, -1, 0))
}
