package interfaces

import (
	"context"

	"github.com/ternarybob/specto/internal/models"
)

// TurnstileUsage is a display snapshot of the verification-token state.
// Reads are eventually-consistent; the polling flow is the only writer.
type TurnstileUsage struct {
	SolveCount int     `json:"solve_count"`
	Uses       int     `json:"uses"`
	AgeSeconds float64 `json:"age_seconds"`
}

// ExamSession is the authenticated channel to the scheduling service.
type ExamSession interface {
	// Login performs the full browser-emulating handshake and stores the
	// bearer token. Cookies persist for the lifetime of the session.
	Login(ctx context.Context, username, password string) error

	// GetExamSchedule fetches available slots for an exam center over the
	// fixed lookahead window, flattened to a list of exams.
	GetExamSchedule(ctx context.Context, examType, wordID, category string) ([]models.Exam, error)

	// GetReservations returns the account's most recent reservations,
	// newest first by exam date.
	GetReservations(ctx context.Context) ([]models.Reservation, error)

	// IsRescheduleEnabled reports whether the exam center accepts reschedules.
	IsRescheduleEnabled(ctx context.Context, wordID string) (bool, error)

	// Reschedule moves the reservation onto the given exam slot.
	Reschedule(ctx context.Context, reservationID, examID string) error

	// TurnstileUsage returns verification-token counters for status display.
	TurnstileUsage() TurnstileUsage
}
