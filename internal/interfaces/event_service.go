package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventVerificationQueued    EventType = "verification_queued"
	EventVerificationStarted   EventType = "verification_started"
	EventVerificationCompleted EventType = "verification_completed"
	EventVerificationFailed    EventType = "verification_failed"
	EventVerificationRetrying  EventType = "verification_retrying"
	EventQueueStatsUpdated     EventType = "queue_stats_updated"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
