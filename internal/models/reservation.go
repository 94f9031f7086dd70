package models

import (
	"fmt"
	"time"
)

// Reservation is the account's existing exam booking, as returned by the
// reservations endpoint. Read-mostly; replaced wholesale after a reschedule.
type Reservation struct {
	ID   string          `json:"id"`
	Exam ReservationExam `json:"exam"`
}

// ReservationExam describes the exam center and booked slots of a reservation.
type ReservationExam struct {
	OrganizationUnitID   string           `json:"organizationUnitId"`
	OrganizationUnitName string           `json:"organizationUnitName"`
	Practice             *ReservationSlot `json:"practice,omitempty"`
	Theory               *ReservationSlot `json:"theory,omitempty"`
}

// ReservationSlot is a booked slot within a reservation.
type ReservationSlot struct {
	Date string `json:"date"`
}

// PracticeDate parses the booked practice slot date.
func (r Reservation) PracticeDate() (time.Time, error) {
	if r.Exam.Practice == nil {
		return time.Time{}, fmt.Errorf("reservation %s has no practice slot", r.ID)
	}

	date, err := time.Parse(ExamDateLayout, r.Exam.Practice.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid practice date %q: %w", r.Exam.Practice.Date, err)
	}
	return date, nil
}
