package logging

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// StreamHub broadcasts log lines to connected websocket clients and keeps a
// bounded replay buffer for clients that catch up over HTTP.
type StreamHub struct {
	clients   map[*websocket.Conn]*streamClient
	broadcast chan StreamMessage
	mu        sync.RWMutex
	stopCh    chan struct{}

	history    []StreamMessage
	historyMu  sync.RWMutex
	historyCap int
	seq        uint64

	maxConnections int
	idleTimeout    time.Duration
}

type streamClient struct {
	lastActivity time.Time
}

// StreamMessage is one serialized log line.
type StreamMessage struct {
	ID        uint64                 `json:"id,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// ErrMaxConnectionsReached is returned when the hub is full.
var ErrMaxConnectionsReached = errors.New("maximum websocket connections reached")

var (
	globalHub *StreamHub
	hubOnce   sync.Once
)

// Hub returns the process-wide stream hub, starting it on first use.
func Hub() *StreamHub {
	hubOnce.Do(func() {
		globalHub = NewStreamHub()
		globalHub.Start()
	})
	return globalHub
}

// NewStreamHub constructs a hub with default limits.
func NewStreamHub() *StreamHub {
	return &StreamHub{
		clients:        make(map[*websocket.Conn]*streamClient),
		broadcast:      make(chan StreamMessage, 100),
		stopCh:         make(chan struct{}),
		history:        make([]StreamMessage, 0, 500),
		historyCap:     500,
		maxConnections: 50,
		idleTimeout:    30 * time.Minute,
	}
}

// Start launches the broadcast and idle-cleanup loops.
func (h *StreamHub) Start() {
	go func() {
		for {
			select {
			case msg := <-h.broadcast:
				h.mu.RLock()
				for conn, info := range h.clients {
					go func(c *websocket.Conn, m StreamMessage) {
						if err := c.WriteJSON(m); err != nil {
							h.RemoveClient(c)
						}
					}(conn, msg)
					info.lastActivity = time.Now()
				}
				h.mu.RUnlock()
			case <-h.stopCh:
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(2 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.dropIdle()
			case <-h.stopCh:
				return
			}
		}
	}()
}

// Stop closes every client and terminates the loops.
func (h *StreamHub) Stop() {
	close(h.stopCh)
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]*streamClient)
}

// AddClient registers a websocket connection with the hub.
func (h *StreamHub) AddClient(conn *websocket.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= h.maxConnections {
		return ErrMaxConnectionsReached
	}
	h.clients[conn] = &streamClient{lastActivity: time.Now()}
	return nil
}

// RemoveClient closes and forgets a websocket connection.
func (h *StreamHub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *StreamHub) dropIdle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	for conn, info := range h.clients {
		if now.Sub(info.lastActivity) > h.idleTimeout {
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// Publish enqueues a log line for broadcast, dropping it when the channel is
// saturated rather than blocking the logging path.
func (h *StreamHub) Publish(level, message string, fields map[string]interface{}) {
	msg := StreamMessage{
		ID:        atomic.AddUint64(&h.seq, 1),
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Fields:    fields,
	}
	h.appendHistory(msg)
	select {
	case h.broadcast <- msg:
	default:
	}
}

func (h *StreamHub) appendHistory(msg StreamMessage) {
	h.historyMu.Lock()
	defer h.historyMu.Unlock()
	h.history = append(h.history, msg)
	if len(h.history) > h.historyCap {
		excess := len(h.history) - h.historyCap
		h.history = append([]StreamMessage(nil), h.history[excess:]...)
	}
}

// FetchSince returns buffered messages newer than cursor, up to limit.
func (h *StreamHub) FetchSince(cursor uint64, limit int) ([]StreamMessage, uint64) {
	h.historyMu.RLock()
	defer h.historyMu.RUnlock()

	if limit <= 0 || limit > h.historyCap {
		limit = h.historyCap
	}
	total := len(h.history)
	if total == 0 {
		return []StreamMessage{}, cursor
	}

	start := 0
	if cursor == 0 {
		if total > limit {
			start = total - limit
		}
	} else {
		start = total
		for i, msg := range h.history {
			if msg.ID > cursor {
				start = i
				break
			}
		}
		if start >= total {
			return []StreamMessage{}, cursor
		}
	}

	end := start + limit
	if end > total {
		end = total
	}
	out := make([]StreamMessage, end-start)
	copy(out, h.history[start:end])
	next := cursor
	if len(out) > 0 {
		next = out[len(out)-1].ID
	}
	return out, next
}

// streamHook forwards every logrus entry to the hub.
type streamHook struct {
	hub *StreamHub
}

func (hook *streamHook) Levels() []log.Level { return log.AllLevels }

func (hook *streamHook) Fire(entry *log.Entry) error {
	fields := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		fields[k] = v
	}
	hook.hub.Publish(entry.Level.String(), entry.Message, fields)
	return nil
}

// InstallStreaming wires the hub into the global logrus logger.
func InstallStreaming() {
	log.AddHook(&streamHook{hub: Hub()})
}
