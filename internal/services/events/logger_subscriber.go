package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		// Extract common fields from payload if available
		var requestID, state, lastStatus string
		if record, ok := event.Payload.(*models.JobRecord); ok && record != nil {
			requestID = record.RequestID
			state = string(record.State)
			lastStatus = string(record.LastStatus)
		}

		// Log event with structured fields
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if requestID != "" {
			logEvent = logEvent.Str("request_id", requestID)
		}
		if state != "" {
			logEvent = logEvent.Str("state", state)
		}
		if lastStatus != "" {
			logEvent = logEvent.Str("last_status", lastStatus)
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	// Subscribe to all event types
	eventTypes := []interfaces.EventType{
		interfaces.EventVerificationQueued,
		interfaces.EventVerificationStarted,
		interfaces.EventVerificationCompleted,
		interfaces.EventVerificationFailed,
		interfaces.EventVerificationRetrying,
		interfaces.EventQueueStatsUpdated,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Info().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
