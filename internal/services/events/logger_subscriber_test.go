package events

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// TestNewLoggerSubscriber verifies that the logger subscriber logs events
func TestNewLoggerSubscriber(t *testing.T) {
	logger := arbor.NewLogger()

	subscriber := NewLoggerSubscriber(logger)

	// Test with event carrying a job record payload
	ctx := context.Background()
	record := models.NewJobRecord(models.NewVerificationJob("req-123", "https://cdn.example.com/a.png", 0))
	event := interfaces.Event{
		Type:    interfaces.EventVerificationQueued,
		Payload: record,
	}

	err := subscriber(ctx, event)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	// Test with event without payload
	event2 := interfaces.Event{
		Type:    interfaces.EventQueueStatsUpdated,
		Payload: nil,
	}

	err = subscriber(ctx, event2)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

// TestSubscribeLoggerToAllEvents verifies logger is subscribed to all event types
func TestSubscribeLoggerToAllEvents(t *testing.T) {
	logger := arbor.NewLogger()

	eventService := NewService(logger)
	defer eventService.Close()

	if err := SubscribeLoggerToAllEvents(eventService, logger); err != nil {
		t.Fatalf("Failed to subscribe logger: %v", err)
	}

	ctx := context.Background()
	eventTypes := []interfaces.EventType{
		interfaces.EventVerificationQueued,
		interfaces.EventVerificationStarted,
		interfaces.EventVerificationCompleted,
		interfaces.EventVerificationFailed,
		interfaces.EventVerificationRetrying,
		interfaces.EventQueueStatsUpdated,
	}

	for _, eventType := range eventTypes {
		event := interfaces.Event{
			Type:    eventType,
			Payload: models.NewJobRecord(models.NewVerificationJob("req-1", "https://cdn.example.com/a.png", 0)),
		}

		err := eventService.Publish(ctx, event)
		if err != nil {
			t.Errorf("Expected no error publishing %s event, got: %v", eventType, err)
		}
	}
}

// TestLoggerSubscriberDoesNotInterfere verifies logger subscriber doesn't interfere with other handlers
func TestLoggerSubscriberDoesNotInterfere(t *testing.T) {
	logger := arbor.NewLogger()

	eventService := NewService(logger)
	defer eventService.Close()

	if err := SubscribeLoggerToAllEvents(eventService, logger); err != nil {
		t.Fatalf("Failed to subscribe logger: %v", err)
	}

	// Add a custom handler that tracks calls
	callCount := 0
	customHandler := func(ctx context.Context, event interfaces.Event) error {
		callCount++
		return nil
	}

	err := eventService.Subscribe(interfaces.EventVerificationCompleted, customHandler)
	if err != nil {
		t.Fatalf("Failed to subscribe custom handler: %v", err)
	}

	ctx := context.Background()
	event := interfaces.Event{
		Type:    interfaces.EventVerificationCompleted,
		Payload: models.NewJobRecord(models.NewVerificationJob("req-1", "https://cdn.example.com/a.png", 0)),
	}

	err = eventService.PublishSync(ctx, event)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	// Verify custom handler was called
	if callCount != 1 {
		t.Errorf("Expected custom handler to be called once, got: %d", callCount)
	}
}
