package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/common"
	"github.com/ternarybob/specto/internal/infocar"
	"github.com/ternarybob/specto/internal/interfaces"
	"github.com/ternarybob/specto/internal/models"
)

// State is the watcher lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StatePolling      State = "polling"
	StateMatchFound   State = "match_found"
	StateRescheduling State = "rescheduling"
	StateDone         State = "done"
	StateAuthExpired  State = "auth_expired"
	StateCancelled    State = "cancelled"
)

// Snapshot is a consistent read of the watcher state for status display.
type Snapshot struct {
	State       State               `json:"state"`
	Stats       models.RunningStats `json:"stats"`
	LastError   string              `json:"last_error,omitempty"`
	Reservation *models.Reservation `json:"reservation,omitempty"`
	Result      *RescheduleResult   `json:"result,omitempty"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
}

// Service runs the background polling loop: fetch slots, fold statistics,
// match against the search window, and hand a match to the executor. One
// loop at a time; cancellation is cooperative, checked between network calls.
type Service struct {
	session  interfaces.ExamSession
	events   interfaces.EventService
	executor *Executor
	logger   arbor.ILogger
	cfg      common.WatcherConfig
	window   models.SearchWindow

	mu          sync.RWMutex
	state       State
	stats       models.RunningStats
	lastError   string
	reservation *models.Reservation
	result      *RescheduleResult
	startedAt   *time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewService creates a watcher over the given session and search window.
func NewService(session interfaces.ExamSession, eventService interfaces.EventService,
	cfg common.WatcherConfig, window models.SearchWindow, logger arbor.ILogger) *Service {
	return &Service{
		session:  session,
		events:   eventService,
		executor: NewExecutor(session, logger),
		logger:   logger,
		cfg:      cfg,
		window:   window,
		state:    StateIdle,
	}
}

// SetReservation pins the reservation the watcher will rebook.
func (s *Service) SetReservation(reservation models.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservation = &reservation
}

// Running reports whether the polling loop is active.
func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancel != nil
}

// Wait blocks until the current loop goroutine has fully unwound. Terminal
// events are published from inside the loop, so a subscriber reacting to one
// can observe Running() == true until this returns. No-op when idle.
func (s *Service) Wait() {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()

	if done == nil {
		return
	}
	<-done
}

// Snapshot returns a copy of the current watcher state and statistics.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		State:       s.state,
		Stats:       s.stats,
		LastError:   s.lastError,
		Reservation: s.reservation,
		Result:      s.result,
		StartedAt:   s.startedAt,
	}
}

// Start launches the polling loop in the background.
func (s *Service) Start(ctx context.Context) error {
	if err := s.window.Validate(); err != nil {
		return fmt.Errorf("invalid search window: %w", err)
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	if s.reservation == nil {
		s.mu.Unlock()
		return fmt.Errorf("no reservation selected")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	now := time.Now()
	s.startedAt = &now
	s.lastError = ""
	s.result = nil
	done := s.done
	s.mu.Unlock()

	s.setState(runCtx, StatePolling)

	common.SafeGo(s.logger, "watcher.run", func() {
		defer close(done)
		s.run(runCtx)
	})

	s.logger.Info().
		Str("date_from", s.window.DateFrom.Format(models.WindowDateLayout)).
		Str("date_to", s.window.DateTo.Format(models.WindowDateLayout)).
		Msg("Watcher started")

	return nil
}

// Stop requests cancellation and waits for the loop to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.logger.Info().Msg("Watcher stopped")
}

// run is the polling loop. Only the distinguished expired-session error (or
// cancellation, or a match) terminates it; any other failure is reported as a
// transient status and the loop proceeds to the next cycle.
func (s *Service) run(ctx context.Context) {
	defer s.clearCancel()

	for {
		select {
		case <-ctx.Done():
			s.setState(ctx, StateCancelled)
			return
		default:
		}

		if terminal := s.pollOnce(ctx); terminal {
			return
		}

		select {
		case <-ctx.Done():
			s.setState(ctx, StateCancelled)
			return
		case <-time.After(time.Duration(s.cfg.PollInterval)):
		}
	}
}

// pollOnce executes one iteration. Returns true when the loop must stop.
func (s *Service) pollOnce(ctx context.Context) bool {
	s.mu.RLock()
	reservation := *s.reservation
	s.mu.RUnlock()

	exams, err := s.fetchWithRetry(ctx, reservation.Exam.OrganizationUnitID)
	if err != nil {
		if infocar.IsSessionExpired(err) {
			s.setError(err)
			s.setState(ctx, StateAuthExpired)
			s.publish(ctx, interfaces.EventAuthExpired, map[string]interface{}{
				"error": err.Error(),
			})
			s.logger.Warn().Msg("Session expired, re-authentication required")
			return true
		}
		if ctx.Err() != nil {
			s.setState(ctx, StateCancelled)
			return true
		}
		// Retry budget exhausted; this iteration failed but the loop goes on.
		// Each failed attempt already published its own poll-error event.
		s.setError(err)
		s.logger.Warn().Err(err).Msg("Poll iteration failed")
		return false
	}

	s.recordObservation(ctx, exams)

	match := Match(exams, s.window)
	if match == nil {
		return false
	}

	s.setState(ctx, StateMatchFound)
	s.publish(ctx, interfaces.EventSlotFound, map[string]interface{}{
		"exam_id": match.ID,
		"date":    match.DateStr,
		"places":  match.Places,
	})
	s.logger.Info().
		Str("exam_id", match.ID).
		Str("date", match.DateStr).
		Msg("Matching slot found")

	s.setState(ctx, StateRescheduling)
	result, err := s.executor.Apply(ctx, reservation, *match)
	if err != nil {
		s.setError(err)
		s.logger.Error().Err(err).Msg("Reschedule failed")
		s.setState(ctx, StateDone)
		return true
	}

	s.mu.Lock()
	s.result = result
	s.mu.Unlock()

	s.publish(ctx, interfaces.EventRescheduled, map[string]interface{}{
		"reservation_id": result.ReservationID,
		"exam_id":        result.ExamID,
		"old_date":       result.OldDate,
		"new_date":       result.NewDate,
		"saved_days":     result.SavedDays,
	})
	s.setState(ctx, StateDone)
	return true
}

// fetchWithRetry queries the schedule with the iteration retry budget: fixed
// pauses between attempts, the last error surfaced when the budget runs out.
// The expired-session error short-circuits immediately.
func (s *Service) fetchWithRetry(ctx context.Context, wordID string) ([]models.Exam, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		exams, err := s.session.GetExamSchedule(ctx, s.cfg.ExamType, wordID, s.cfg.Category)
		if err == nil {
			return exams, nil
		}
		if infocar.IsSessionExpired(err) {
			return nil, err
		}

		lastErr = err
		s.publish(ctx, interfaces.EventPollError, map[string]interface{}{
			"error":   err.Error(),
			"attempt": attempt,
		})
		s.logger.Debug().
			Int("attempt", attempt).
			Int("max_attempts", s.cfg.RetryAttempts).
			Err(err).
			Msg("Slot fetch failed")

		if attempt < s.cfg.RetryAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(s.cfg.RetryDelay)):
			}
		}
	}

	return nil, lastErr
}

// recordObservation folds a successful fetch into the running statistics.
// An empty slot set counts as a check but leaves the time stats untouched.
func (s *Service) recordObservation(ctx context.Context, exams []models.Exam) {
	s.mu.Lock()
	s.stats.RecordCheck()
	s.lastError = ""
	earliest, ok := models.EarliestDate(exams)
	if ok {
		s.stats.Observe(earliest)
	}
	stats := s.stats
	s.mu.Unlock()

	s.publish(ctx, interfaces.EventPollCompleted, map[string]interface{}{
		"slots": len(exams),
	})
	s.publish(ctx, interfaces.EventStatsUpdated, stats)
}

func (s *Service) setState(ctx context.Context, state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.publish(ctx, interfaces.EventWatcherState, map[string]interface{}{
		"state": string(state),
	})
}

func (s *Service) setError(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

func (s *Service) clearCancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}

func (s *Service) publish(_ context.Context, eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	// Decoupled from the loop context so terminal-state events still go out
	// after cancellation.
	_ = s.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload})
}
