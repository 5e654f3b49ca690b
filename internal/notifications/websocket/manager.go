package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types
const (
	MessageTypeState        = "state"
	MessageTypeNotification = "notification"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeStatus       = "status"
)

// Message is a frame exchanged with UI clients.
type Message struct {
	Type      string                 `json:"type"`
	Topic     string                 `json:"topic,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Payload   interface{}            `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Manager handles WebSocket connections and message routing
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID           string
	Identity     string
	Topics       map[string]bool
	Conn         *websocket.Conn
	Send         chan Message
	ConnectedAt  time.Time
	LastActivity time.Time
	mu           sync.Mutex
}

// wants reports whether the connection subscribed to topic. A connection
// without subscriptions receives everything.
func (c *Connection) wants(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Topics) == 0 || topic == "" || c.Topics[topic]
}

// Hub manages the broadcast of messages to connections
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan Message
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	logger      *zap.Logger
}

// NewManager creates a new WebSocket manager
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan Message, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		logger:      logger,
	}

	go hub.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the portal serves a single local session UI
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and starts the read and write pumps.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:           uuid.New().String(),
		Identity:     r.URL.Query().Get("identity"),
		Topics:       make(map[string]bool),
		Conn:         conn,
		Send:         make(chan Message, 256),
		ConnectedAt:  now,
		LastActivity: now,
	}

	m.hub.register <- connection

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// readPump reads client frames until the connection closes.
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.stop:
		}
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("WebSocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}

		conn.mu.Lock()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()

		m.handleMessage(conn, &msg)
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes client frames. Clients only manage their topic subscriptions.
func (m *Manager) handleMessage(conn *Connection, msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		topics := make(map[string]bool)
		if list, ok := msg.Data["topics"].([]interface{}); ok {
			for _, t := range list {
				if s, ok := t.(string); ok {
					topics[s] = true
				}
			}
		}
		conn.mu.Lock()
		conn.Topics = topics
		conn.mu.Unlock()

		m.enqueue(conn, Message{
			Type:      MessageTypeStatus,
			Data:      map[string]interface{}{"status": "subscribed", "connection_id": conn.ID},
			Timestamp: time.Now(),
		})
	default:
		m.logger.Debug("Ignoring client message", zap.String("type", msg.Type))
	}
}

func (m *Manager) enqueue(conn *Connection, msg Message) {
	select {
	case conn.Send <- msg:
	default:
		m.logger.Warn("WebSocket send buffer full, dropping message", zap.String("connection_id", conn.ID))
	}
}

// run runs the hub in its own goroutine
func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			h.logger.Debug("Connection registered", zap.String("connection_id", conn.ID))

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
				h.logger.Debug("Connection unregistered", zap.String("connection_id", conn.ID))
			}

		case message := <-h.broadcast:
			for conn := range h.connections {
				if !conn.wants(message.Topic) {
					continue
				}
				select {
				case conn.Send <- message:
				default:
					// slow client: drop it rather than block the hub
					close(conn.Send)
					delete(h.connections, conn)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				close(conn.Send)
				delete(h.connections, conn)
			}
			return
		}
	}
}

// Broadcast queues a message for every connection subscribed to its topic.
func (m *Manager) Broadcast(message Message) error {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	select {
	case m.hub.broadcast <- message:
		return nil
	default:
		return fmt.Errorf("broadcast channel full")
	}
}

// GetConnectionCount returns the number of active connections
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Close stops the hub and closes every connection.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.hub.stop)

		m.mu.Lock()
		for _, conn := range m.connections {
			conn.Conn.Close()
		}
		m.connections = make(map[string]*Connection)
		m.mu.Unlock()
	})
}

// ConnectionInfo represents connection information for monitoring
type ConnectionInfo struct {
	ConnectionID string    `json:"connection_id"`
	Identity     string    `json:"identity"`
	Topics       []string  `json:"topics"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

// GetConnectionInfo returns information about all active connections
func (m *Manager) GetConnectionInfo() []ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := make([]ConnectionInfo, 0, len(m.connections))
	for _, conn := range m.connections {
		conn.mu.Lock()
		ci := ConnectionInfo{
			ConnectionID: conn.ID,
			Identity:     conn.Identity,
			ConnectedAt:  conn.ConnectedAt,
			LastActivity: conn.LastActivity,
		}
		for t := range conn.Topics {
			ci.Topics = append(ci.Topics, t)
		}
		conn.mu.Unlock()
		info = append(info, ci)
	}
	return info
}
