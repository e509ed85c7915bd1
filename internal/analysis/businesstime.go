package analysis

import (
	"slices"
	"time"

	"reminder-service/internal/config"
)

// maxBusinessWalk bounds hour-by-hour walks to roughly two years.
const maxBusinessWalk = 2 * 366 * 24

// Calendar does weekend and holiday aware date arithmetic in one timezone.
type Calendar struct {
	hours    config.BusinessHours
	loc      *time.Location
	holidays map[string]bool
}

func NewCalendar(hours config.BusinessHours, holidays []string) *Calendar {
	set := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		set[h] = true
	}
	return &Calendar{hours: hours, loc: hours.Location(), holidays: set}
}

// IsBusinessDay reports whether t falls on a configured weekday that is not a holiday.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	local := t.In(c.loc)
	if !slices.Contains(c.hours.Weekdays, local.Weekday()) {
		return false
	}
	return !c.holidays[local.Format(time.DateOnly)]
}

// IsBusinessHour reports whether t lies inside business hours on a business day.
func (c *Calendar) IsBusinessHour(t time.Time) bool {
	if !c.IsBusinessDay(t) {
		return false
	}
	h := t.In(c.loc).Hour()
	return h >= c.hours.StartHour && h < c.hours.EndHour
}

// CalendarDays is the number of whole dates from now to t. Negative means past.
func (c *Calendar) CalendarDays(now, t time.Time) int {
	return int(dateOf(t.In(c.loc)).Sub(dateOf(now.In(c.loc))).Hours() / 24)
}

// BusinessDays counts business dates in (now, t]. Past or same-day targets
// fall back to calendar days so overdue spans stay meaningful.
func (c *Calendar) BusinessDays(now, t time.Time) int {
	cal := c.CalendarDays(now, t)
	if cal <= 0 {
		return cal
	}
	start := dateOf(now.In(c.loc))
	n := 0
	for i := 1; i <= cal; i++ {
		d := start.AddDate(0, 0, i)
		if slices.Contains(c.hours.Weekdays, d.Weekday()) && !c.holidays[d.Format(time.DateOnly)] {
			n++
		}
	}
	return n
}

// AddBusinessHours walks forward from start one clock hour at a time,
// consuming only business time, and returns the instant the allowance runs
// out. A start inside an hour counts only the rest of that hour.
func (c *Calendar) AddBusinessHours(start time.Time, hours float64) time.Time {
	t := start
	remaining := time.Duration(hours * float64(time.Hour))
	for i := 0; remaining > 0 && i < maxBusinessWalk; i++ {
		next := c.nextHour(t)
		if c.IsBusinessHour(t) {
			span := next.Sub(t)
			if remaining <= span {
				return t.Add(remaining)
			}
			remaining -= span
		}
		t = next
	}
	return t
}

// BusinessHoursBetween counts business hours elapsed from start to end.
func (c *Calendar) BusinessHoursBetween(start, end time.Time) float64 {
	if !end.After(start) {
		return 0
	}
	var total time.Duration
	t := start
	for i := 0; t.Before(end) && i < maxBusinessWalk; i++ {
		next := c.nextHour(t)
		if c.IsBusinessHour(t) {
			stop := next
			if stop.After(end) {
				stop = end
			}
			total += stop.Sub(t)
		}
		t = next
	}
	return total.Hours()
}

// nextHour is the next top of the hour after t in the calendar timezone.
func (c *Calendar) nextHour(t time.Time) time.Time {
	l := t.In(c.loc)
	next := time.Date(l.Year(), l.Month(), l.Day(), l.Hour()+1, 0, 0, 0, c.loc)
	if !next.After(t) {
		next = t.Add(time.Hour)
	}
	return next
}

// dateOf strips the clock, keeping the calendar date as UTC midnight so that
// date differences are immune to DST shifts.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
