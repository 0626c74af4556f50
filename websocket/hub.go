package websocket

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"upswatch/models"
)

// significantMetrics are the fields whose movement justifies a broadcast.
var significantMetrics = []string{
	"ups_load", "battery_charge", "ups_realpower", "input_voltage",
}

// significanceThreshold is the minimum absolute delta on a significant
// metric before a new aggregate is pushed to clients.
const significanceThreshold = 1.0

// Hub maintains the set of active clients and broadcasts UPS data to them.
// Insignificant updates are filtered so idle dashboards stay quiet.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	// lastBroadcast is replayed to clients on connect so a dashboard shows
	// data before the next significant change.
	lastBroadcast   *models.AggregateRecord
	lastBroadcastMu sync.RWMutex

	allowedOrigins map[string]bool
}

// Client represents a websocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

// NewHub creates a new WebSocket hub
func NewHub(allowOrigins []string) *Hub {
	origins := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		origins[o] = true
	}
	return &Hub{
		broadcast:      make(chan []byte, 64),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		clients:        make(map[*Client]bool),
		allowedOrigins: origins,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("Client %s registered, total clients: %d", client.id, h.GetClientCount())

			h.sendSnapshot(client)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Client %s unregistered, total clients: %d", client.id, len(h.clients))
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// sendSnapshot pushes the last broadcast aggregate to a newly connected
// client.
func (h *Hub) sendSnapshot(client *Client) {
	h.lastBroadcastMu.RLock()
	last := h.lastBroadcast
	h.lastBroadcastMu.RUnlock()

	data := map[string]interface{}{"status": "connected", "client_id": client.id}
	msg := models.WebSocketMessage{
		Type:      "connection",
		Data:      data,
		Timestamp: time.Now(),
	}
	if raw, err := json.Marshal(msg); err == nil {
		select {
		case client.send <- raw:
		default:
			return
		}
	}

	if last == nil {
		return
	}
	update := models.WebSocketMessage{
		Type:      "cache_update",
		Data:      last.Fields(),
		Timestamp: time.Now(),
	}
	if raw, err := json.Marshal(update); err == nil {
		select {
		case client.send <- raw:
		default:
		}
	}
}

// isSignificant reports whether the new aggregate differs enough from the
// last broadcast one to be worth pushing.
func (h *Hub) isSignificant(rec *models.AggregateRecord) bool {
	h.lastBroadcastMu.RLock()
	last := h.lastBroadcast
	h.lastBroadcastMu.RUnlock()

	if last == nil {
		return true
	}
	if rec.UPSStatus != last.UPSStatus {
		return true
	}

	newFields := rec.Fields()
	oldFields := last.Fields()
	for _, key := range significantMetrics {
		nv, nok := newFields[key].(float64)
		ov, ook := oldFields[key].(float64)
		if nok != ook {
			return true
		}
		if nok && math.Abs(nv-ov) >= significanceThreshold {
			return true
		}
	}
	return false
}

// BroadcastAggregate pushes a new averaged record to all clients when it
// changed significantly since the last push.
func (h *Hub) BroadcastAggregate(rec *models.AggregateRecord) {
	if !h.isSignificant(rec) {
		return
	}

	h.lastBroadcastMu.Lock()
	h.lastBroadcast = rec
	h.lastBroadcastMu.Unlock()

	message := models.WebSocketMessage{
		Type:      "cache_update",
		Data:      rec.Fields(),
		Timestamp: time.Now(),
	}

	if msgBytes, err := json.Marshal(message); err == nil {
		select {
		case h.broadcast <- msgBytes:
		default:
			log.Println("Broadcast channel full, dropping message")
		}
	}
}

// BroadcastSample pushes a freshly polled sample to all clients, subject
// to the same significance filter, so subscribers track the UPS at the
// polling rate rather than once per saved aggregate.
func (h *Hub) BroadcastSample(s *models.Sample) {
	rec := &models.AggregateRecord{TimestampTZ: s.Timestamp, UPSStatus: s.UPSStatus}
	for key, v := range s.NumericFields() {
		if !rec.SetColumn(key, v) {
			log.Printf("Dropping unmapped metric %s from broadcast", key)
		}
	}
	h.BroadcastAggregate(rec)
}

// BroadcastEvent pushes a UPS event to all connected clients.
func (h *Hub) BroadcastEvent(event *models.Event) {
	message := models.WebSocketMessage{
		Type:      "ups_event",
		Data:      event,
		Timestamp: time.Now(),
	}

	if msgBytes, err := json.Marshal(message); err == nil {
		select {
		case h.broadcast <- msgBytes:
		default:
			log.Println("Broadcast channel full, dropping event")
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles WebSocket connections
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || h.allowedOrigins[origin]
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		id:   uuid.New().String(),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes messages received from the client
func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("Failed to unmarshal client message: %v", err)
		return
	}

	switch msg.Type {
	case "request_cache_data":
		c.hub.sendSnapshot(c)

	case "ping":
		pong := models.WebSocketMessage{
			Type:      "pong",
			Data:      map[string]string{"client_id": c.id},
			Timestamp: time.Now(),
		}
		if pongBytes, err := json.Marshal(pong); err == nil {
			select {
			case c.send <- pongBytes:
			default:
				log.Printf("Failed to send pong to client %s", c.id)
			}
		}

	default:
		log.Printf("Unknown message type from client %s: %s", c.id, msg.Type)
	}
}
