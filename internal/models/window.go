package models

import (
	"fmt"
	"time"
)

const (
	// WindowDateLayout is the calendar-date format used in config (date_from/date_to).
	WindowDateLayout = "2006-01-02"
	// WindowHourLayout is the time-of-day format used in config (hour_from/hour_to).
	WindowHourLayout = "15:04"
)

// SearchWindow bounds the slot search by calendar date and time of day.
// Both bounds are inclusive. Date bounds compare on the calendar day only;
// hour bounds compare on seconds since midnight.
type SearchWindow struct {
	DateFrom time.Time // midnight of the first acceptable day
	DateTo   time.Time // midnight of the last acceptable day
	HourFrom int       // seconds since midnight
	HourTo   int       // seconds since midnight
}

// ParseSearchWindow parses the four config strings into a SearchWindow.
// It does not validate monotonicity; call Validate afterwards.
func ParseSearchWindow(dateFrom, dateTo, hourFrom, hourTo string) (SearchWindow, error) {
	df, err := time.Parse(WindowDateLayout, dateFrom)
	if err != nil {
		return SearchWindow{}, fmt.Errorf("invalid date_from %q: %w", dateFrom, err)
	}
	dt, err := time.Parse(WindowDateLayout, dateTo)
	if err != nil {
		return SearchWindow{}, fmt.Errorf("invalid date_to %q: %w", dateTo, err)
	}
	hf, err := time.Parse(WindowHourLayout, hourFrom)
	if err != nil {
		return SearchWindow{}, fmt.Errorf("invalid hour_from %q: %w", hourFrom, err)
	}
	ht, err := time.Parse(WindowHourLayout, hourTo)
	if err != nil {
		return SearchWindow{}, fmt.Errorf("invalid hour_to %q: %w", hourTo, err)
	}

	return SearchWindow{
		DateFrom: df,
		DateTo:   dt,
		HourFrom: hf.Hour()*3600 + hf.Minute()*60,
		HourTo:   ht.Hour()*3600 + ht.Minute()*60,
	}, nil
}

// Validate enforces the window invariants: dateFrom <= dateTo, hourFrom < hourTo.
func (w SearchWindow) Validate() error {
	if w.DateFrom.IsZero() || w.DateTo.IsZero() {
		return fmt.Errorf("search window dates must be set")
	}
	if w.DateFrom.After(w.DateTo) {
		return fmt.Errorf("date_from %s is after date_to %s",
			w.DateFrom.Format(WindowDateLayout), w.DateTo.Format(WindowDateLayout))
	}
	if w.HourFrom >= w.HourTo {
		return fmt.Errorf("hour_from must be earlier than hour_to")
	}
	return nil
}

// Contains reports whether t falls inside the window. The calendar day of t
// must lie in [DateFrom, DateTo] and its time of day in [HourFrom, HourTo].
func (w SearchWindow) Contains(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if day.Before(w.DateFrom) || day.After(w.DateTo) {
		return false
	}

	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return secs >= w.HourFrom && secs <= w.HourTo
}
