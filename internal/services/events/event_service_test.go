package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/specto/internal/interfaces"
)

func TestPublishSync_DeliversToAllSubscribers(t *testing.T) {
	service := NewService(arbor.NewLogger())

	received := make(chan interfaces.Event, 2)
	handler := func(ctx context.Context, event interfaces.Event) error {
		received <- event
		return nil
	}

	require.NoError(t, service.Subscribe(interfaces.EventSlotFound, handler))
	require.NoError(t, service.Subscribe(interfaces.EventSlotFound, handler))

	err := service.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventSlotFound,
		Payload: map[string]interface{}{"exam_id": "exam-9"},
	})
	require.NoError(t, err)

	assert.Len(t, received, 2)
}

func TestPublish_Async(t *testing.T) {
	service := NewService(arbor.NewLogger())

	received := make(chan interfaces.Event, 1)
	require.NoError(t, service.Subscribe(interfaces.EventPollCompleted, func(ctx context.Context, event interfaces.Event) error {
		received <- event
		return nil
	}))

	err := service.Publish(context.Background(), interfaces.Event{Type: interfaces.EventPollCompleted})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, interfaces.EventPollCompleted, event.Type)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	service := NewService(arbor.NewLogger())

	err := service.Publish(context.Background(), interfaces.Event{Type: interfaces.EventPollError})
	assert.NoError(t, err)
}

func TestPublishSync_HandlerErrorSurfaces(t *testing.T) {
	service := NewService(arbor.NewLogger())

	require.NoError(t, service.Subscribe(interfaces.EventPollError, func(ctx context.Context, event interfaces.Event) error {
		return fmt.Errorf("handler broke")
	}))

	err := service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventPollError})
	assert.Error(t, err)
}

func TestSubscribe_NilHandler(t *testing.T) {
	service := NewService(arbor.NewLogger())
	assert.Error(t, service.Subscribe(interfaces.EventSlotFound, nil))
}

func TestSubscribe_AfterClose(t *testing.T) {
	service := NewService(arbor.NewLogger())
	require.NoError(t, service.Close())

	err := service.Subscribe(interfaces.EventSlotFound, func(ctx context.Context, event interfaces.Event) error {
		return nil
	})
	assert.Error(t, err)
}

func TestEventTypesAreIndependent(t *testing.T) {
	service := NewService(arbor.NewLogger())

	received := make(chan interfaces.Event, 1)
	require.NoError(t, service.Subscribe(interfaces.EventSlotFound, func(ctx context.Context, event interfaces.Event) error {
		received <- event
		return nil
	}))

	require.NoError(t, service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventPollCompleted}))
	assert.Len(t, received, 0)
}
