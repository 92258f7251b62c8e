package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// EventAggregator batches verification events and triggers UI refresh on
// a time interval. Instead of pushing each event, it triggers connected
// clients to fetch the latest stats from the API. Triggers occur:
// - Every timeThreshold (default 1 second) while events are pending
// - Immediately when a verification reaches a terminal state
type EventAggregator struct {
	mu            sync.Mutex
	timeThreshold time.Duration

	hasPending  bool
	lastTrigger time.Time

	// Callback to send WebSocket refresh trigger
	onTrigger func(ctx context.Context)

	logger arbor.ILogger
}

// NewEventAggregator creates an aggregator with time-based triggering
func NewEventAggregator(
	timeThreshold time.Duration,
	onTrigger func(ctx context.Context),
	logger arbor.ILogger,
) *EventAggregator {
	if timeThreshold <= 0 {
		timeThreshold = time.Second // Default 1 second
	}

	return &EventAggregator{
		timeThreshold: timeThreshold,
		lastTrigger:   time.Now(),
		onTrigger:     onTrigger,
		logger:        logger,
	}
}

// RecordEvent records that a verification produced an event. It will be
// included in the next periodic trigger.
func (a *EventAggregator) RecordEvent(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.hasPending = true
}

// TriggerImmediately sends a refresh trigger right away, used when a
// verification reaches a terminal state.
func (a *EventAggregator) TriggerImmediately(ctx context.Context) {
	a.mu.Lock()
	a.hasPending = false
	a.lastTrigger = time.Now()
	a.mu.Unlock()

	a.logger.Debug().Msg("Event aggregator: immediate trigger (terminal state)")

	go a.safeOnTrigger(ctx)
}

// StartPeriodicFlush starts a background goroutine that triggers every
// timeThreshold while events are pending.
func (a *EventAggregator) StartPeriodicFlush(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(a.timeThreshold)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				// Flush remaining events on shutdown
				a.flushPending(context.Background())
				return
			case <-ticker.C:
				a.flushPending(ctx)
			}
		}
	}()
}

// flushPending triggers a refresh if any events arrived since the last
// trigger.
func (a *EventAggregator) flushPending(ctx context.Context) {
	a.mu.Lock()
	pending := a.hasPending
	if pending {
		a.hasPending = false
		a.lastTrigger = time.Now()
	}
	a.mu.Unlock()

	if pending {
		a.logger.Debug().Msg("Event aggregator: periodic trigger")
		go a.safeOnTrigger(ctx)
	}
}

// safeOnTrigger wraps onTrigger with panic recovery to prevent crashes
func (a *EventAggregator) safeOnTrigger(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC in EventAggregator.onTrigger - recovered")
		}
	}()
	a.onTrigger(ctx)
}
