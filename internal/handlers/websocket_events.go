package handlers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// EventSubscriber bridges verification lifecycle events to WebSocket broadcasts.
// Non-terminal events feed the aggregator for batched refresh triggers;
// terminal events trigger an immediate refresh so the UI never shows a
// finished verification as in flight.
type EventSubscriber struct {
	handler       *WebSocketHandler
	eventService  interfaces.EventService
	logger        arbor.ILogger
	allowedEvents map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	throttlers    map[string]*rate.Limiter // Rate limiters for high-frequency events
}

// NewEventSubscriber creates and initializes an event subscriber
// Automatically subscribes to all verification lifecycle events with config-driven filtering and throttling
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	s := &EventSubscriber{
		handler:      handler,
		eventService: eventService,
		logger:       logger,
	}

	// Initialize allowedEvents map (whitelist pattern)
	// Empty list means allow all events
	s.allowedEvents = make(map[string]bool)
	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			s.allowedEvents[eventType] = true
		}
	}

	// Initialize throttlers for high-frequency events
	s.throttlers = make(map[string]*rate.Limiter)
	if config != nil && len(config.ThrottleIntervals) > 0 {
		for eventType, intervalStr := range config.ThrottleIntervals {
			if duration, err := time.ParseDuration(intervalStr); err == nil {
				// Create rate limiter: 1 event per interval (burst=1)
				limiter := rate.NewLimiter(rate.Every(duration), 1)
				s.throttlers[eventType] = limiter
				logger.Debug().
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Throttler initialized for event type")
			} else {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - skipping throttler")
			}
		}
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()

	return s
}

// SubscribeAll registers subscriptions for all verification lifecycle events
func (s *EventSubscriber) SubscribeAll() {
	if s.eventService == nil {
		s.logger.Warn().Msg("Cannot subscribe to events - eventService is nil")
		return
	}

	s.eventService.Subscribe(interfaces.EventVerificationQueued, s.handleQueued)
	s.eventService.Subscribe(interfaces.EventVerificationStarted, s.handleStarted)
	s.eventService.Subscribe(interfaces.EventVerificationRetrying, s.handleRetrying)
	s.eventService.Subscribe(interfaces.EventVerificationCompleted, s.handleCompleted)
	s.eventService.Subscribe(interfaces.EventVerificationFailed, s.handleFailed)
	s.eventService.Subscribe(interfaces.EventQueueStatsUpdated, s.handleQueueStats)

	s.logger.Info().Msg("EventSubscriber registered for all verification lifecycle events (queued, started, retrying, completed, failed)")
}

// shouldBroadcastEvent checks if an event should be broadcast based on whitelist and throttling
func (s *EventSubscriber) shouldBroadcastEvent(eventType string) bool {
	// Check whitelist (empty allowedEvents = allow all)
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}

	// Check throttling
	if limiter, ok := s.throttlers[eventType]; ok {
		if !limiter.Allow() {
			s.logger.Debug().
				Str("event_type", eventType).
				Msg("Event throttled - rate limit exceeded")
			return false
		}
	}

	return true
}

// verificationUpdateFromRecord converts a lifecycle row snapshot into the
// wire payload sent to clients.
func verificationUpdateFromRecord(record *models.JobRecord) VerificationUpdate {
	return VerificationUpdate{
		RequestID:    record.RequestID,
		URL:          record.URL,
		State:        string(record.State),
		LastStatus:   string(record.LastStatus),
		AttemptCount: record.AttemptCount,
		Error:        record.LastError,
		Timestamp:    time.Now(),
	}
}

func (s *EventSubscriber) handleQueued(ctx context.Context, event interfaces.Event) error {
	record, ok := event.Payload.(*models.JobRecord)
	if !ok {
		s.logger.Warn().Msg("Invalid verification queued event payload type")
		return nil
	}

	s.handler.aggregator.RecordEvent(ctx)

	if !s.shouldBroadcastEvent(string(interfaces.EventVerificationQueued)) {
		return nil
	}

	s.handler.BroadcastVerificationUpdate(verificationUpdateFromRecord(record))
	return nil
}

func (s *EventSubscriber) handleStarted(ctx context.Context, event interfaces.Event) error {
	record, ok := event.Payload.(*models.JobRecord)
	if !ok {
		s.logger.Warn().Msg("Invalid verification started event payload type")
		return nil
	}

	s.handler.aggregator.RecordEvent(ctx)

	if !s.shouldBroadcastEvent(string(interfaces.EventVerificationStarted)) {
		return nil
	}

	s.handler.BroadcastVerificationUpdate(verificationUpdateFromRecord(record))
	return nil
}

func (s *EventSubscriber) handleRetrying(ctx context.Context, event interfaces.Event) error {
	record, ok := event.Payload.(*models.JobRecord)
	if !ok {
		s.logger.Warn().Msg("Invalid verification retrying event payload type")
		return nil
	}

	s.handler.aggregator.RecordEvent(ctx)

	if !s.shouldBroadcastEvent(string(interfaces.EventVerificationRetrying)) {
		return nil
	}

	s.handler.BroadcastVerificationUpdate(verificationUpdateFromRecord(record))
	return nil
}

func (s *EventSubscriber) handleCompleted(ctx context.Context, event interfaces.Event) error {
	record, ok := event.Payload.(*models.JobRecord)
	if !ok {
		s.logger.Warn().Msg("Invalid verification completed event payload type")
		return nil
	}

	// Terminal state: refresh clients immediately instead of waiting for
	// the next periodic flush
	s.handler.aggregator.TriggerImmediately(ctx)

	if !s.shouldBroadcastEvent(string(interfaces.EventVerificationCompleted)) {
		return nil
	}

	s.handler.BroadcastVerificationUpdate(verificationUpdateFromRecord(record))
	return nil
}

func (s *EventSubscriber) handleFailed(ctx context.Context, event interfaces.Event) error {
	record, ok := event.Payload.(*models.JobRecord)
	if !ok {
		s.logger.Warn().Msg("Invalid verification failed event payload type")
		return nil
	}

	s.handler.aggregator.TriggerImmediately(ctx)

	if !s.shouldBroadcastEvent(string(interfaces.EventVerificationFailed)) {
		return nil
	}

	s.handler.BroadcastVerificationUpdate(verificationUpdateFromRecord(record))
	return nil
}

func (s *EventSubscriber) handleQueueStats(ctx context.Context, event interfaces.Event) error {
	stats, ok := event.Payload.(*models.QueueStats)
	if !ok {
		s.logger.Warn().Msg("Invalid queue stats event payload type")
		return nil
	}

	if !s.shouldBroadcastEvent(string(interfaces.EventQueueStatsUpdated)) {
		return nil
	}

	update := QueueStatsUpdate{
		Waiting:   stats.Waiting,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Timestamp: time.Now(),
	}
	if s.handler.metrics != nil {
		update.ErrorRate = s.handler.metrics.ErrorRate()
	}

	s.handler.BroadcastQueueStats(update)
	return nil
}
