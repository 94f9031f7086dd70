package models

import (
	"fmt"
	"time"
)

// ExamDateLayout is the timezone-naive layout used by the scheduling service
// for slot and reservation dates (e.g. "2025-03-10T08:15:00").
const ExamDateLayout = "2006-01-02T15:04:05"

// Exam is a single bookable slot, snapshotted from an exam-schedule response.
// Immutable once constructed.
type Exam struct {
	ID      string    `json:"id"`
	Places  int       `json:"places"`
	DateStr string    `json:"dateStr"`
	Date    time.Time `json:"date"`
	Amount  int       `json:"amount"`
}

// NewExam builds an Exam from raw response fields, parsing the naive date string.
func NewExam(id string, places int, dateStr string, amount int) (Exam, error) {
	date, err := time.Parse(ExamDateLayout, dateStr)
	if err != nil {
		return Exam{}, fmt.Errorf("invalid exam date %q: %w", dateStr, err)
	}

	return Exam{
		ID:      id,
		Places:  places,
		DateStr: dateStr,
		Date:    date,
		Amount:  amount,
	}, nil
}

// EarliestDate returns the minimum date across the given exams.
// The second return value is false when the slice is empty.
func EarliestDate(exams []Exam) (time.Time, bool) {
	if len(exams) == 0 {
		return time.Time{}, false
	}

	earliest := exams[0].Date
	for _, exam := range exams[1:] {
		if exam.Date.Before(earliest) {
			earliest = exam.Date
		}
	}
	return earliest, true
}
