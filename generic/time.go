package generic

import (
	"time"
)

// =============================================================================
// HOLIDAY CALENDAR - Days that are not charged against leave
// =============================================================================

// Holiday is a non-working day. Recurring holidays repeat on the same
// month/day every year.
type Holiday struct {
	Date      time.Time
	Name      string
	Recurring bool
}

// HolidayCalendar provides holiday lookup functionality.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// StaticCalendar is a fixed list of holidays.
type StaticCalendar []Holiday

func (c StaticCalendar) IsHoliday(date time.Time) bool {
	d := Day(date)
	for _, h := range c {
		hd := Day(h.Date)
		if h.Recurring {
			if hd.Month() == d.Month() && hd.Day() == d.Day() {
				return true
			}
			continue
		}
		if hd.Equal(d) {
			return true
		}
	}
	return false
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// WorkdaysBetween counts working days in the inclusive range [from, to],
// skipping weekends and calendar holidays. A nil calendar skips weekends only.
func WorkdaysBetween(from, to time.Time, calendar HolidayCalendar) int {
	start, end := Day(from), Day(to)
	if end.Before(start) {
		return 0
	}
	n := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsWeekend(d) {
			continue
		}
		if calendar != nil && calendar.IsHoliday(d) {
			continue
		}
		n++
	}
	return n
}
