package watcher

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/interfaces"
	"github.com/ternarybob/specto/internal/models"
)

// RescheduleResult summarizes a completed reschedule.
type RescheduleResult struct {
	ReservationID string    `json:"reservation_id"`
	ExamID        string    `json:"exam_id"`
	OldDate       time.Time `json:"old_date"`
	NewDate       time.Time `json:"new_date"`
	SavedDays     int       `json:"saved_days"`
}

// Executor applies a matched slot to the reservation. The write is issued
// exactly once; a failed reschedule is never retried automatically, to avoid
// double-booking on an ambiguous outcome.
type Executor struct {
	session interfaces.ExamSession
	logger  arbor.ILogger
}

// NewExecutor creates a reschedule executor.
func NewExecutor(session interfaces.ExamSession, logger arbor.ILogger) *Executor {
	return &Executor{
		session: session,
		logger:  logger,
	}
}

// Apply moves the reservation onto the matched exam and derives the number of
// whole days saved, clamped at zero when the new date is later.
func (e *Executor) Apply(ctx context.Context, reservation models.Reservation, exam models.Exam) (*RescheduleResult, error) {
	if err := e.session.Reschedule(ctx, reservation.ID, exam.ID); err != nil {
		return nil, err
	}

	result := &RescheduleResult{
		ReservationID: reservation.ID,
		ExamID:        exam.ID,
		NewDate:       exam.Date,
	}

	oldDate, err := reservation.PracticeDate()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Cannot derive saved days, old exam date unknown")
		return result, nil
	}

	result.OldDate = oldDate
	result.SavedDays = savedDays(oldDate, exam.Date)

	e.logger.Info().
		Str("reservation_id", reservation.ID).
		Str("old_date", oldDate.Format(models.ExamDateLayout)).
		Str("new_date", exam.Date.Format(models.ExamDateLayout)).
		Int("saved_days", result.SavedDays).
		Msg("Reservation moved to earlier slot")

	return result, nil
}

// savedDays is the whole-day gain of the move, never negative.
func savedDays(oldDate, newDate time.Time) int {
	days := int(oldDate.Sub(newDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
