package status

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/interfaces"
)

// Service caches the latest application status from events so the HTTP
// surface can answer without touching the session or the watcher.
type Service struct {
	mu           sync.RWMutex
	eventService interfaces.EventService
	logger       arbor.ILogger

	startedAt     time.Time
	authenticated bool
	watcherState  string
	lastPollAt    *time.Time
	lastSlotCount int
	lastError     string
	balance       *float64
	balanceAt     *time.Time
}

// NewService creates a new status service
func NewService(eventService interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		eventService: eventService,
		logger:       logger,
		startedAt:    time.Now(),
		watcherState: "idle",
	}
}

// SetAuthenticated records the login state
func (s *Service) SetAuthenticated(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = ok
}

// GetStatus returns the cached status snapshot
func (s *Service) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := map[string]interface{}{
		"authenticated":   s.authenticated,
		"watcher_state":   s.watcherState,
		"last_slot_count": s.lastSlotCount,
		"uptime_seconds":  int(time.Since(s.startedAt).Seconds()),
		"timestamp":       time.Now(),
	}
	if s.lastPollAt != nil {
		status["last_poll_at"] = *s.lastPollAt
	}
	if s.lastError != "" {
		status["last_error"] = s.lastError
	}
	if s.balance != nil {
		status["captcha_balance"] = *s.balance
		status["captcha_balance_at"] = *s.balanceAt
	}
	return status
}

// SubscribeToEvents wires the status cache into the event stream.
func (s *Service) SubscribeToEvents() {
	s.eventService.Subscribe(interfaces.EventWatcherState, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			return nil
		}
		state, ok := payload["state"].(string)
		if !ok {
			return nil
		}

		s.mu.Lock()
		s.watcherState = state
		s.mu.Unlock()
		return nil
	})

	s.eventService.Subscribe(interfaces.EventPollCompleted, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			return nil
		}

		s.mu.Lock()
		now := time.Now()
		s.lastPollAt = &now
		s.lastError = ""
		if slots, ok := payload["slots"].(int); ok {
			s.lastSlotCount = slots
		}
		s.mu.Unlock()
		return nil
	})

	s.eventService.Subscribe(interfaces.EventPollError, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			return nil
		}

		s.mu.Lock()
		if msg, ok := payload["error"].(string); ok {
			s.lastError = msg
		}
		s.mu.Unlock()
		return nil
	})

	s.eventService.Subscribe(interfaces.EventAuthExpired, func(ctx context.Context, event interfaces.Event) error {
		s.mu.Lock()
		s.authenticated = false
		s.mu.Unlock()
		return nil
	})

	s.eventService.Subscribe(interfaces.EventBalanceChecked, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			return nil
		}
		balance, ok := payload["balance"].(float64)
		if !ok {
			return nil
		}

		s.mu.Lock()
		now := time.Now()
		s.balance = &balance
		s.balanceAt = &now
		s.mu.Unlock()
		return nil
	})

	s.logger.Debug().Msg("Status service subscribed to events")
}
