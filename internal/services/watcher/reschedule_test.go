package watcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/infocar"
	"github.com/ternarybob/specto/internal/models"
)

func TestExecutor_ApplyComputesSavedDays(t *testing.T) {
	session := &mockSession{}
	executor := NewExecutor(session, arbor.NewLogger())

	reservation := models.Reservation{
		ID: "res-1",
		Exam: models.ReservationExam{
			Practice: &models.ReservationSlot{Date: "2026-10-01T09:00:00"},
		},
	}
	slot := exam(t, "exam-9", "2026-09-22T09:00:00")

	result, err := executor.Apply(context.Background(), reservation, slot)
	require.NoError(t, err)

	assert.Equal(t, "res-1", result.ReservationID)
	assert.Equal(t, "exam-9", result.ExamID)
	assert.Equal(t, 9, result.SavedDays)
	assert.True(t, result.OldDate.Equal(date(t, "2026-10-01T09:00:00")))
	assert.True(t, result.NewDate.Equal(date(t, "2026-09-22T09:00:00")))
}

func TestExecutor_ApplyClampsNegativeSavedDays(t *testing.T) {
	session := &mockSession{}
	executor := NewExecutor(session, arbor.NewLogger())

	reservation := models.Reservation{
		ID: "res-1",
		Exam: models.ReservationExam{
			Practice: &models.ReservationSlot{Date: "2026-09-10T09:00:00"},
		},
	}
	slot := exam(t, "exam-9", "2026-09-22T09:00:00")

	result, err := executor.Apply(context.Background(), reservation, slot)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SavedDays)
}

func TestExecutor_ApplyWithoutPracticeDate(t *testing.T) {
	session := &mockSession{}
	executor := NewExecutor(session, arbor.NewLogger())

	reservation := models.Reservation{ID: "res-1"}
	slot := exam(t, "exam-9", "2026-09-22T09:00:00")

	// The reschedule still succeeds; only the saved-days figure is unavailable
	result, err := executor.Apply(context.Background(), reservation, slot)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SavedDays)
	assert.True(t, result.OldDate.IsZero())
}

func TestExecutor_ApplyPropagatesWriteFailure(t *testing.T) {
	session := &mockSession{
		rescheduleFunc: func(reservationID, examID string) error {
			return &infocar.ServiceError{StatusCode: 409, Body: "slot taken"}
		},
	}
	executor := NewExecutor(session, arbor.NewLogger())

	reservation := models.Reservation{
		ID: "res-1",
		Exam: models.ReservationExam{
			Practice: &models.ReservationSlot{Date: "2026-10-01T09:00:00"},
		},
	}
	slot := exam(t, "exam-9", "2026-09-22T09:00:00")

	result, err := executor.Apply(context.Background(), reservation, slot)
	assert.Error(t, err)
	assert.Nil(t, result)
}
