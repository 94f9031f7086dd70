package watcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/common"
	"github.com/ternarybob/specto/internal/infocar"
	"github.com/ternarybob/specto/internal/interfaces"
	"github.com/ternarybob/specto/internal/models"
	"github.com/ternarybob/specto/internal/services/events"
)

// mockSession implements interfaces.ExamSession for testing
type mockSession struct {
	mu              sync.Mutex
	scheduleFunc    func(call int) ([]models.Exam, error)
	rescheduleFunc  func(reservationID, examID string) error
	scheduleCalls   int
	rescheduleCalls int
}

func (m *mockSession) Login(ctx context.Context, username, password string) error { return nil }

func (m *mockSession) GetExamSchedule(ctx context.Context, examType, wordID, category string) ([]models.Exam, error) {
	m.mu.Lock()
	m.scheduleCalls++
	call := m.scheduleCalls
	m.mu.Unlock()

	if m.scheduleFunc != nil {
		return m.scheduleFunc(call)
	}
	return nil, nil
}

func (m *mockSession) GetReservations(ctx context.Context) ([]models.Reservation, error) {
	return nil, nil
}

func (m *mockSession) IsRescheduleEnabled(ctx context.Context, wordID string) (bool, error) {
	return true, nil
}

func (m *mockSession) Reschedule(ctx context.Context, reservationID, examID string) error {
	m.mu.Lock()
	m.rescheduleCalls++
	m.mu.Unlock()

	if m.rescheduleFunc != nil {
		return m.rescheduleFunc(reservationID, examID)
	}
	return nil
}

func (m *mockSession) TurnstileUsage() interfaces.TurnstileUsage {
	return interfaces.TurnstileUsage{}
}

func (m *mockSession) calls() (schedule, reschedule int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduleCalls, m.rescheduleCalls
}

func testConfig() common.WatcherConfig {
	return common.WatcherConfig{
		PollInterval:  common.Duration(10 * time.Millisecond),
		RetryAttempts: 5,
		RetryDelay:    common.Duration(time.Millisecond),
		ExamType:      infocar.PracticeExamType,
		Category:      "B",
	}
}

func testReservation() models.Reservation {
	return models.Reservation{
		ID: "res-1",
		Exam: models.ReservationExam{
			OrganizationUnitID:   "word-5",
			OrganizationUnitName: "WORD Katowice",
			Practice:             &models.ReservationSlot{Date: "2026-10-01T09:00:00"},
		},
	}
}

func newTestService(session *mockSession, cfg common.WatcherConfig) *Service {
	w, err := models.ParseSearchWindow("2026-09-01", "2026-09-30", "08:00", "16:00")
	if err != nil {
		panic(err)
	}
	svc := NewService(session, nil, cfg, w, arbor.NewLogger())
	svc.SetReservation(testReservation())
	return svc
}

func waitForState(t *testing.T, svc *Service, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.Snapshot().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("watcher never reached state %s (stuck in %s)", want, svc.Snapshot().State)
}

func TestService_StartRequiresReservation(t *testing.T) {
	w, err := models.ParseSearchWindow("2026-09-01", "2026-09-30", "08:00", "16:00")
	require.NoError(t, err)
	svc := NewService(&mockSession{}, nil, testConfig(), w, arbor.NewLogger())

	err = svc.Start(context.Background())
	assert.Error(t, err)
}

func TestService_StartRejectsInvalidWindow(t *testing.T) {
	w, err := models.ParseSearchWindow("2026-09-30", "2026-09-01", "08:00", "16:00")
	require.NoError(t, err)
	svc := NewService(&mockSession{}, nil, testConfig(), w, arbor.NewLogger())
	svc.SetReservation(testReservation())

	err = svc.Start(context.Background())
	assert.Error(t, err)
}

func TestService_DoubleStartFails(t *testing.T) {
	session := &mockSession{}
	svc := newTestService(session, testConfig())

	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	assert.Error(t, svc.Start(context.Background()))
}

func TestService_MatchTriggersRescheduleAndStops(t *testing.T) {
	session := &mockSession{
		scheduleFunc: func(call int) ([]models.Exam, error) {
			slot, _ := models.NewExam("exam-9", 2, "2026-09-12T10:00:00", 140)
			return []models.Exam{slot}, nil
		},
	}
	svc := newTestService(session, testConfig())

	require.NoError(t, svc.Start(context.Background()))
	waitForState(t, svc, StateDone)

	snapshot := svc.Snapshot()
	require.NotNil(t, snapshot.Result)
	assert.Equal(t, "res-1", snapshot.Result.ReservationID)
	assert.Equal(t, "exam-9", snapshot.Result.ExamID)
	assert.Equal(t, 18, snapshot.Result.SavedDays)

	_, reschedules := session.calls()
	assert.Equal(t, 1, reschedules)
	assert.False(t, svc.Running())
}

func TestService_RetryBudgetExhaustedContinuesLoop(t *testing.T) {
	session := &mockSession{
		scheduleFunc: func(call int) ([]models.Exam, error) {
			return nil, &infocar.NetworkError{Op: "exam schedule", Err: fmt.Errorf("connection reset")}
		},
	}
	cfg := testConfig()
	cfg.PollInterval = common.Duration(time.Hour) // one iteration only
	svc := newTestService(session, cfg)

	require.NoError(t, svc.Start(context.Background()))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if schedule, _ := session.calls(); schedule >= cfg.RetryAttempts {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	svc.Stop()

	schedule, reschedules := session.calls()
	assert.Equal(t, cfg.RetryAttempts, schedule)
	assert.Equal(t, 0, reschedules)
	assert.NotEmpty(t, svc.Snapshot().LastError)
}

func TestService_RetrySucceedsWithinBudget(t *testing.T) {
	session := &mockSession{
		scheduleFunc: func(call int) ([]models.Exam, error) {
			if call < 5 {
				return nil, &infocar.NetworkError{Op: "exam schedule", Err: fmt.Errorf("timeout")}
			}
			slot, _ := models.NewExam("exam-9", 2, "2026-09-12T10:00:00", 140)
			return []models.Exam{slot}, nil
		},
	}
	svc := newTestService(session, testConfig())

	require.NoError(t, svc.Start(context.Background()))
	waitForState(t, svc, StateDone)

	// Four transient failures then a success consume the whole attempt budget
	schedule, reschedules := session.calls()
	assert.Equal(t, 5, schedule)
	assert.Equal(t, 1, reschedules)
	require.NotNil(t, svc.Snapshot().Result)
	assert.Equal(t, "exam-9", svc.Snapshot().Result.ExamID)
}

func TestService_SessionExpiryShortCircuitsRetries(t *testing.T) {
	session := &mockSession{
		scheduleFunc: func(call int) ([]models.Exam, error) {
			return nil, &infocar.AuthError{Kind: infocar.AuthErrExpired, Message: "expired"}
		},
	}
	svc := newTestService(session, testConfig())

	require.NoError(t, svc.Start(context.Background()))
	waitForState(t, svc, StateAuthExpired)

	// The expired-session error must not burn the retry budget
	schedule, _ := session.calls()
	assert.Equal(t, 1, schedule)
	assert.False(t, svc.Running())
}

func TestService_WaitSettlesLoopForRestart(t *testing.T) {
	session := &mockSession{
		scheduleFunc: func(call int) ([]models.Exam, error) {
			if call == 1 {
				return nil, &infocar.AuthError{Kind: infocar.AuthErrExpired, Message: "expired"}
			}
			slot, _ := models.NewExam("exam-9", 2, "2026-09-12T10:00:00", 140)
			return []models.Exam{slot}, nil
		},
	}
	svc := newTestService(session, testConfig())

	require.NoError(t, svc.Start(context.Background()))
	svc.Wait()

	// After Wait the loop has unwound, so a restart decision is safe
	assert.False(t, svc.Running())
	assert.Equal(t, StateAuthExpired, svc.Snapshot().State)

	require.NoError(t, svc.Start(context.Background()))
	waitForState(t, svc, StateDone)
}

func TestService_PollErrorPublishedOncePerAttempt(t *testing.T) {
	session := &mockSession{
		scheduleFunc: func(call int) ([]models.Exam, error) {
			return nil, &infocar.NetworkError{Op: "exam schedule", Err: fmt.Errorf("connection reset")}
		},
	}

	eventService := events.NewService(arbor.NewLogger())
	errEvents := make(chan interfaces.Event, 16)
	require.NoError(t, eventService.Subscribe(interfaces.EventPollError, func(ctx context.Context, event interfaces.Event) error {
		errEvents <- event
		return nil
	}))

	cfg := testConfig()
	cfg.RetryAttempts = 2
	cfg.PollInterval = common.Duration(time.Hour) // one iteration only

	w, err := models.ParseSearchWindow("2026-09-01", "2026-09-30", "08:00", "16:00")
	require.NoError(t, err)
	svc := NewService(session, eventService, cfg, w, arbor.NewLogger())
	svc.SetReservation(testReservation())

	require.NoError(t, svc.Start(context.Background()))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if schedule, _ := session.calls(); schedule >= cfg.RetryAttempts {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	svc.Stop()

	// Delivery is async; give stragglers a moment before counting
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, errEvents, cfg.RetryAttempts)
}

func TestService_EmptyScheduleCountsCheckWithoutStats(t *testing.T) {
	session := &mockSession{
		scheduleFunc: func(call int) ([]models.Exam, error) {
			return []models.Exam{}, nil
		},
	}
	svc := newTestService(session, testConfig())

	require.NoError(t, svc.Start(context.Background()))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.Snapshot().Stats.TotalChecks >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	svc.Stop()

	stats := svc.Snapshot().Stats
	assert.GreaterOrEqual(t, stats.TotalChecks, 2)
	assert.Nil(t, stats.EarliestEverSeen)
	assert.Nil(t, stats.CurrentEarliest)
	assert.Nil(t, stats.LastFound)
}

func TestService_RescheduleFailureStopsWithoutRetry(t *testing.T) {
	session := &mockSession{
		scheduleFunc: func(call int) ([]models.Exam, error) {
			slot, _ := models.NewExam("exam-9", 2, "2026-09-12T10:00:00", 140)
			return []models.Exam{slot}, nil
		},
		rescheduleFunc: func(reservationID, examID string) error {
			return &infocar.ServiceError{StatusCode: 409, Body: "slot taken"}
		},
	}
	svc := newTestService(session, testConfig())

	require.NoError(t, svc.Start(context.Background()))
	waitForState(t, svc, StateDone)

	snapshot := svc.Snapshot()
	assert.Nil(t, snapshot.Result)
	assert.NotEmpty(t, snapshot.LastError)

	// A failed write is never retried
	_, reschedules := session.calls()
	assert.Equal(t, 1, reschedules)
}

func TestService_StopCancelsLoop(t *testing.T) {
	session := &mockSession{
		scheduleFunc: func(call int) ([]models.Exam, error) {
			return []models.Exam{}, nil
		},
	}
	svc := newTestService(session, testConfig())

	require.NoError(t, svc.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	svc.Stop()

	assert.False(t, svc.Running())
	assert.Equal(t, StateCancelled, svc.Snapshot().State)
}
