package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"astapp/internal/metrics"
)

// MessageType defines the type of WebSocket message
type MessageType string

const MsgSubmissionGraded MessageType = "submission_graded"

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans feed messages out to the creators watching an application
type Hub struct {
	conns map[string]map[*Connection]struct{} // appID -> connections

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	disconnect chan string
	done       chan struct{}
	closeOnce  sync.Once

	logger *zap.Logger
}

// Connection is one creator watching one application
type Connection struct {
	AppID     string
	CreatorID string
	Send      chan []byte
	Hub       *Hub
}

// BroadcastMessage is a message for every connection on an app
type BroadcastMessage struct {
	AppID   string
	Message *Message
}

// NewHub creates a hub and starts its loop. Call Close to stop it.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		disconnect: make(chan string),
		done:       make(chan struct{}),
		logger:     logger.Named("feed"),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for appID := range h.conns {
				h.dropApp(appID)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.AppID] == nil {
				h.conns[conn.AppID] = make(map[*Connection]struct{})
			}
			h.conns[conn.AppID][conn] = struct{}{}
			h.mu.Unlock()
			metrics.FeedConnections.Inc()
			h.logger.Info("creator joined feed", zap.String("app_id", conn.AppID), zap.String("creator_id", conn.CreatorID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.conns[conn.AppID]; ok {
				if _, ok := set[conn]; ok {
					h.remove(conn)
					h.logger.Info("creator left feed", zap.String("app_id", conn.AppID), zap.String("creator_id", conn.CreatorID))
				}
			}
			h.mu.Unlock()

		case appID := <-h.disconnect:
			h.mu.Lock()
			h.dropApp(appID)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Message)
			if err != nil {
				h.logger.Warn("failed to encode feed message", zap.Error(err))
				continue
			}
			h.mu.RLock()
			for conn := range h.conns[msg.AppID] {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// remove closes conn's send channel; caller holds mu
func (h *Hub) remove(conn *Connection) {
	set := h.conns[conn.AppID]
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, conn.AppID)
	}
	close(conn.Send)
	metrics.FeedConnections.Dec()
}

// dropApp disconnects every connection on appID; caller holds mu
func (h *Hub) dropApp(appID string) {
	for conn := range h.conns[appID] {
		h.remove(conn)
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// BroadcastToApp sends a message to the app's feed (implements service.Broadcaster)
func (h *Hub) BroadcastToApp(appID string, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("failed to encode feed payload", zap.String("app_id", appID), zap.Error(err))
		return
	}
	msg := &BroadcastMessage{
		AppID: appID,
		Message: &Message{
			Type:    MessageType(msgType),
			Payload: data,
		},
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.logger.Warn("feed broadcast queue full, dropping message", zap.String("app_id", appID))
	}
}

// DisconnectApp closes every feed on appID (implements service.Broadcaster)
func (h *Hub) DisconnectApp(appID string) {
	select {
	case h.disconnect <- appID:
	case <-h.done:
	}
}

// Connections returns how many feeds are open on appID
func (h *Hub) Connections(appID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[appID])
}

// Close stops the hub and disconnects everyone
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
