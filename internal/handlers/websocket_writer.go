package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/probo/internal/common"
)

const (
	// Buffer size for the WebSocket log channel
	defaultWebSocketBufferSize = 100
)

// defaultExcludePatterns drops chatty infrastructure messages from the
// client log stream. The WebSocket lifecycle entries stay out because
// broadcasting them back to the clients that caused them is pure noise.
var defaultExcludePatterns = []string{
	"WebSocket client connected",
	"WebSocket client disconnected",
	"HTTP request",
	"HTTP response",
	"Publishing event",
	"Event published",
}

// WebSocketWriter consumes log batches from arbor's channel and
// broadcasts filtered entries to connected WebSocket clients
type WebSocketWriter struct {
	handler         *WebSocketHandler
	channel         chan []arbormodels.LogEvent
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	minLevel        arbor.LogLevel
	excludePatterns []string
}

// NewWebSocketWriter creates a log consumer that feeds the WebSocket
// log stream. Attach its channel to the logger with SetChannel and call
// Start to begin consuming.
func NewWebSocketWriter(handler *WebSocketHandler, wsConfig *common.WebSocketConfig) *WebSocketWriter {
	minLevel := arbor.InfoLevel
	excludePatterns := defaultExcludePatterns

	if wsConfig != nil {
		minLevel = parseLogLevel(wsConfig.MinLevel)
		if len(wsConfig.ExcludePatterns) > 0 {
			excludePatterns = wsConfig.ExcludePatterns
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketWriter{
		handler:         handler,
		channel:         make(chan []arbormodels.LogEvent, defaultWebSocketBufferSize),
		ctx:             ctx,
		cancel:          cancel,
		minLevel:        minLevel,
		excludePatterns: excludePatterns,
	}
}

// parseLogLevel converts string log level to arbor.LogLevel
func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arbor.DebugLevel
	case "info":
		return arbor.InfoLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.InfoLevel
	}
}

// GetChannel returns the channel for arbor to send log batches to
func (w *WebSocketWriter) GetChannel() chan []arbormodels.LogEvent {
	return w.channel
}

// Start launches the consumer goroutine
func (w *WebSocketWriter) Start() error {
	w.wg.Add(1)
	go w.consumer()
	return nil
}

// Stop gracefully shuts down the consumer
func (w *WebSocketWriter) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}

// consumer processes log batches and broadcasts the entries that pass
// the level and pattern filters
func (w *WebSocketWriter) consumer() {
	defer w.wg.Done()

	// Panic recovery; a broken broadcast must not kill log consumption
	defer func() {
		if r := recover(); r != nil {
			w.handler.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("WebSocket log writer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-w.channel:
			if !ok {
				return
			}

			for _, event := range batch {
				if !w.shouldBroadcast(event.Level) {
					continue
				}
				if w.isExcluded(event.Message) {
					continue
				}

				w.handler.BroadcastLog(LogEntry{
					Timestamp: event.Timestamp.Format("15:04:05"),
					Level:     mapLevel(arborlevels.FromLogLevel(event.Level)),
					Message:   event.Message,
				})
			}

		case <-w.ctx.Done():
			return
		}
	}
}

// shouldBroadcast checks a log event against the level threshold
func (w *WebSocketWriter) shouldBroadcast(level log.Level) bool {
	return arborlevels.FromLogLevel(level) >= w.minLevel
}

// isExcluded checks a message against the configured exclude patterns
func (w *WebSocketWriter) isExcluded(message string) bool {
	for _, pattern := range w.excludePatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

// mapLevel maps arbor log levels to client strings
func mapLevel(level arbor.LogLevel) string {
	switch level {
	case arbor.ErrorLevel:
		return "error"
	case arbor.WarnLevel:
		return "warn"
	case arbor.InfoLevel:
		return "info"
	case arbor.DebugLevel:
		return "debug"
	default:
		return "info"
	}
}
