package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/interfaces"
)

const webhookTimeout = 10 * time.Second

// Service delivers notifications to the log and, when configured, to a
// webhook as a JSON POST. Delivery failures are logged and swallowed; a
// missed notification must never interrupt the watcher.
type Service struct {
	webhookURL string
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewService creates a notifier. An empty webhook URL means log-only delivery.
func NewService(webhookURL string, logger arbor.ILogger) *Service {
	return &Service{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: webhookTimeout},
		logger:     logger,
	}
}

// Notify delivers a single notification.
func (s *Service) Notify(ctx context.Context, n interfaces.Notification) error {
	event := s.logger.Info().Str("title", n.Title)
	for k, v := range n.Fields {
		event = event.Str(k, fmt.Sprintf("%v", v))
	}
	event.Msg(n.Message)

	if s.webhookURL == "" {
		return nil
	}
	return s.postWebhook(ctx, n)
}

func (s *Service) postWebhook(ctx context.Context, n interfaces.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SubscribeToEvents sends notifications for the events worth waking up for.
func (s *Service) SubscribeToEvents(eventService interfaces.EventService) {
	eventService.Subscribe(interfaces.EventSlotFound, func(ctx context.Context, event interfaces.Event) error {
		payload, _ := event.Payload.(map[string]interface{})
		if err := s.Notify(ctx, interfaces.Notification{
			Title:   "Slot found",
			Message: "An exam slot matching the search window was found",
			Fields:  payload,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Slot-found notification failed")
		}
		return nil
	})

	eventService.Subscribe(interfaces.EventRescheduled, func(ctx context.Context, event interfaces.Event) error {
		payload, _ := event.Payload.(map[string]interface{})
		if err := s.Notify(ctx, interfaces.Notification{
			Title:   "Reservation rescheduled",
			Message: "The reservation was moved to an earlier exam slot",
			Fields:  payload,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Reschedule notification failed")
		}
		return nil
	})

	eventService.Subscribe(interfaces.EventAuthExpired, func(ctx context.Context, event interfaces.Event) error {
		payload, _ := event.Payload.(map[string]interface{})
		if err := s.Notify(ctx, interfaces.Notification{
			Title:   "Session expired",
			Message: "The account session expired and is being renewed",
			Fields:  payload,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("Session-expired notification failed")
		}
		return nil
	})

	s.logger.Debug().Msg("Notify service subscribed to events")
}
