package services

import "time"

// Calendar answers whether a departure falls in peak hours or on a
// holiday. The fare engine applies the multipliers; it does not own
// the calendar data.
type Calendar interface {
	IsPeakHour(t time.Time) bool
	IsHoliday(t time.Time) bool
}

// StaticCalendar is a Calendar loaded once from configuration: a set
// of peak clock hours and a set of holiday dates.
type StaticCalendar struct {
	peakHours map[int]bool
	holidays  map[string]bool // yyyy-mm-dd
}

// NewStaticCalendar creates a calendar from peak hours (0-23) and
// holiday dates in yyyy-mm-dd form.
func NewStaticCalendar(peakHours []int, holidays []string) *StaticCalendar {
	c := &StaticCalendar{
		peakHours: make(map[int]bool, len(peakHours)),
		holidays:  make(map[string]bool, len(holidays)),
	}
	for _, h := range peakHours {
		c.peakHours[h] = true
	}
	for _, d := range holidays {
		c.holidays[d] = true
	}
	return c
}

func (c *StaticCalendar) IsPeakHour(t time.Time) bool {
	return c.peakHours[t.Hour()]
}

func (c *StaticCalendar) IsHoliday(t time.Time) bool {
	return c.holidays[t.Format("2006-01-02")]
}
