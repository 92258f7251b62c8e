// -----------------------------------------------------------------------
// WebSocket - live verification state streaming to connected clients
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/metrics"
	"github.com/ternarybob/probo/internal/services/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	queue            interfaces.Queue
	metrics          *metrics.Registry
	aggregator       *events.EventAggregator // Batches per-event noise into refresh triggers
	serverInstanceID string                  // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(queue interfaces.Queue, metricsRegistry *metrics.Registry, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		queue:            queue,
		metrics:          metricsRegistry,
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	// Aggregate verification events into periodic refresh triggers so a
	// busy queue does not turn into a per-attempt message storm. Terminal
	// states still trigger immediately.
	timeThreshold := time.Second
	if config != nil && config.TimeThreshold != "" {
		if parsed, err := time.ParseDuration(config.TimeThreshold); err == nil {
			timeThreshold = parsed
		}
	}

	h.aggregator = events.NewEventAggregator(timeThreshold, h.broadcastRefreshTrigger, logger)
	h.aggregator.StartPeriodicFlush(context.Background())

	logger.Debug().
		Dur("time_threshold", timeThreshold).
		Msg("Event aggregator initialized for WebSocket refresh triggers")

	return h
}

// Message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	Service          string  `json:"service"`
	Status           string  `json:"status"`
	Database         string  `json:"database"`
	WaitingCount     int     `json:"waitingCount"`
	ActiveCount      int     `json:"activeCount"`
	CompletedCount   int     `json:"completedCount"`
	FailedCount      int     `json:"failedCount"`
	ErrorRate        float64 `json:"errorRate"`
	ServerInstanceID string  `json:"serverInstanceId"` // Unique ID per server startup - clients clear state on change
}

type VerificationUpdate struct {
	RequestID    string    `json:"request_id"`
	URL          string    `json:"url"`
	State        string    `json:"state"`
	LastStatus   string    `json:"last_status,omitempty"`
	AttemptCount int       `json:"attempt_count"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type QueueStatsUpdate struct {
	Waiting   int       `json:"waiting"`
	Active    int       `json:"active"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	ErrorRate float64   `json:"error_rate"`
	Timestamp time.Time `json:"timestamp"`
}

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", len(h.clients))

	// Send initial status
	h.sendStatus(conn)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// buildStatus assembles the current service status snapshot. Queue and
// metrics are optional so the handler stays usable in isolation.
func (h *WebSocketHandler) buildStatus() StatusUpdate {
	status := StatusUpdate{
		Service:          "ONLINE",
		Status:           "ONLINE",
		Database:         "CONNECTED",
		ServerInstanceID: h.serverInstanceID,
	}

	if h.queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if stats, err := h.queue.GetStats(ctx); err == nil {
			status.WaitingCount = stats.Waiting
			status.ActiveCount = stats.Active
			status.CompletedCount = stats.Completed
			status.FailedCount = stats.Failed
		}
	}

	if h.metrics != nil {
		status.ErrorRate = h.metrics.ErrorRate()
	}

	return status
}

// sendStatus sends current status to a specific client
func (h *WebSocketHandler) sendStatus(conn *websocket.Conn) {
	msg := WSMessage{
		Type:    "status",
		Payload: h.buildStatus(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal initial status")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send initial status")
		}
	}
}

// BroadcastStatus sends status updates to all connected clients
func (h *WebSocketHandler) BroadcastStatus(status StatusUpdate) {
	msg := WSMessage{
		Type:    "status",
		Payload: status,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal status message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send status to client")
		}
	}
}

// BroadcastVerificationUpdate sends a verification state change to all connected clients
func (h *WebSocketHandler) BroadcastVerificationUpdate(update VerificationUpdate) {
	msg := WSMessage{
		Type:    "verification_update",
		Payload: update,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal verification update")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send verification update to client")
		}
	}
}

// BroadcastQueueStats sends queue occupancy updates to all connected clients
func (h *WebSocketHandler) BroadcastQueueStats(stats QueueStatsUpdate) {
	msg := WSMessage{
		Type:    "queue_stats",
		Payload: stats,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal queue stats message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send queue stats to client")
		}
	}
}

// BroadcastLog streams a log entry to all connected clients. Called from
// the arbor writer pipeline, so it must never log through arbor itself:
// that would emit another log event and loop forever.
func (h *WebSocketHandler) BroadcastLog(entry LogEntry) {
	msg := WSMessage{
		Type:    "log",
		Payload: entry,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()
	}
}

// broadcastRefreshTrigger tells connected clients to refetch stats from
// the API. Called by the event aggregator when thresholds are reached.
func (h *WebSocketHandler) broadcastRefreshTrigger(ctx context.Context) {
	msg := WSMessage{
		Type: "refresh_stats",
		Payload: map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal refresh_stats message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send refresh_stats to client")
		}
	}
}

// StartStatusBroadcaster starts periodic status updates. Broadcasts only
// while clients are connected; stops when ctx is cancelled.
func (h *WebSocketHandler) StartStatusBroadcaster(ctx context.Context) {
	common.SafeGoWithContext(ctx, h.logger, "statusBroadcaster", func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.mu.RLock()
				clientCount := len(h.clients)
				h.mu.RUnlock()

				if clientCount > 0 {
					h.BroadcastStatus(h.buildStatus())
				}
			}
		}
	})
}
