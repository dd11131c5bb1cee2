package planner

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar-day format used for every plan key.
const DateLayout = "2006-01-02"

// ParseDate validates an ISO date string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// WeekStartFor returns the first day (on or before t) of the week containing t.
func WeekStartFor(t time.Time, first time.Weekday) string {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) - int(first) + 7) % 7
	return day.AddDate(0, 0, -offset).Format(DateLayout)
}

// WeekDates returns the seven consecutive dates starting at start.
func WeekDates(start string) ([]string, error) {
	t, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	dates := make([]string, 7)
	for i := range dates {
		dates[i] = t.AddDate(0, 0, i).Format(DateLayout)
	}
	return dates, nil
}

// ShiftWeek moves start by whole weeks.
func ShiftWeek(start string, weeks int) (string, error) {
	t, err := ParseDate(start)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, 7*weeks).Format(DateLayout), nil
}

// DayName returns the weekday name of an ISO date, or the input when malformed.
func DayName(date string) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return t.Weekday().String()
}
