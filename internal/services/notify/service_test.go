package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/interfaces"
	"github.com/ternarybob/specto/internal/services/events"
)

func TestNotify_LogOnlyWithoutWebhook(t *testing.T) {
	service := NewService("", arbor.NewLogger())

	err := service.Notify(context.Background(), interfaces.Notification{
		Title:   "Slot found",
		Message: "test",
	})
	assert.NoError(t, err)
}

func TestNotify_PostsWebhook(t *testing.T) {
	received := make(chan interfaces.Notification, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var n interfaces.Notification
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		received <- n
	}))
	defer server.Close()

	service := NewService(server.URL, arbor.NewLogger())

	err := service.Notify(context.Background(), interfaces.Notification{
		Title:   "Reservation rescheduled",
		Message: "moved",
		Fields:  map[string]interface{}{"saved_days": float64(9)},
	})
	require.NoError(t, err)

	n := <-received
	assert.Equal(t, "Reservation rescheduled", n.Title)
	assert.Equal(t, float64(9), n.Fields["saved_days"])
}

func TestNotify_WebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	service := NewService(server.URL, arbor.NewLogger())

	err := service.Notify(context.Background(), interfaces.Notification{Title: "x", Message: "y"})
	assert.Error(t, err)
}

func TestSubscribeToEvents_SlotFoundTriggersWebhook(t *testing.T) {
	received := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- struct{}{}
	}))
	defer server.Close()

	eventService := events.NewService(arbor.NewLogger())
	service := NewService(server.URL, arbor.NewLogger())
	service.SubscribeToEvents(eventService)

	require.NoError(t, eventService.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventSlotFound,
		Payload: map[string]interface{}{"exam_id": "exam-9"},
	}))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("webhook was not called")
	}
}
