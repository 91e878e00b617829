package ztm

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/pl"
)

// DayType is the timetable variant in service on a date
type DayType string

const (
	Weekday  DayType = "weekday"
	Saturday DayType = "saturday"
	Sunday   DayType = "sunday"
)

// ServiceCalendar decides which timetable variant runs on a date. Public holidays run the sunday timetable.
type ServiceCalendar struct {
	calendar *cal.BusinessCalendar
}

// MakeServiceCalendar builds a ServiceCalendar observing Polish public holidays
func MakeServiceCalendar() *ServiceCalendar {
	calendar := cal.NewBusinessCalendar()
	calendar.AddHoliday(pl.Holidays...)
	return &ServiceCalendar{calendar: calendar}
}

// IsHoliday returns true if at is a public holiday
func (s *ServiceCalendar) IsHoliday(at time.Time) bool {
	actual, observed, _ := s.calendar.IsHoliday(at)
	return actual || observed
}

func (s *ServiceCalendar) DayType(at time.Time) DayType {
	if s.IsHoliday(at) {
		return Sunday
	}
	switch at.Weekday() {
	case time.Saturday:
		return Saturday
	case time.Sunday:
		return Sunday
	}
	return Weekday
}
