package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dawstr8/polish-peaks/internal/observability"
)

// Message types
const (
	WSTypeUnauthorized  = "unauthorized"
	WSTypePhotoUploaded = "photo_uploaded"
	WSTypeSubscribe     = "subscribe"
	WSTypeUnsubscribe   = "unsubscribe"
	WSTypePing          = "ping"
	WSTypePong          = "pong"
)

// TopicGallery is joined by tabs showing the gallery
const TopicGallery = "gallery"

const (
	wsSendBuffer   = 32
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxInbound   = 4 * 1024
)

// WSMessage is the JSON frame exchanged with the browser
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// WSClient is one open browser tab. Topics are guarded by the hub's lock.
type WSClient struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte

	hub       *WebSocketHub
	topics    map[string]struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// delivery is a frame plus the tabs it is meant for
type delivery struct {
	match func(*WSClient) bool
	data  []byte
}

// WebSocketHub fans server events out to the browser tabs of each web
// session. All membership changes go through Run's loop.
type WebSocketHub struct {
	mu        sync.RWMutex
	tabs      map[*WSClient]struct{}
	bySession map[string]map[*WSClient]struct{}

	join   chan *WSClient
	leave  chan *WSClient
	outbox chan delivery
	done   chan struct{}
}

// NewWebSocketHub creates a hub; call Run before registering tabs
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		tabs:      make(map[*WSClient]struct{}),
		bySession: make(map[string]map[*WSClient]struct{}),
		join:      make(chan *WSClient),
		leave:     make(chan *WSClient),
		outbox:    make(chan delivery, 64),
		done:      make(chan struct{}),
	}
}

// Run serves registrations and deliveries until ctx is cancelled, then
// closes every tab's send channel
func (h *WebSocketHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.tabs {
				h.drop(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.join:
			h.mu.Lock()
			h.tabs[c] = struct{}{}
			if h.bySession[c.SessionID] == nil {
				h.bySession[c.SessionID] = make(map[*WSClient]struct{})
			}
			h.bySession[c.SessionID][c] = struct{}{}
			h.mu.Unlock()
			observability.Debugf("Tab %s opened for session %s", c.ID, c.SessionID)

		case c := <-h.leave:
			h.mu.Lock()
			if _, ok := h.tabs[c]; ok {
				h.drop(c)
			}
			h.mu.Unlock()
			observability.Debugf("Tab %s closed", c.ID)

		case d := <-h.outbox:
			h.deliver(d)
		}
	}
}

// drop forgets c and closes its send channel; h.mu must be held
func (h *WebSocketHub) drop(c *WSClient) {
	delete(h.tabs, c)
	if tabs := h.bySession[c.SessionID]; tabs != nil {
		delete(tabs, c)
		if len(tabs) == 0 {
			delete(h.bySession, c.SessionID)
		}
	}
	close(c.Send)
}

func (h *WebSocketHub) deliver(d delivery) {
	h.mu.RLock()
	var stalled []*WSClient
	for c := range h.tabs {
		if !d.match(c) {
			continue
		}
		select {
		case c.Send <- d.data:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	if len(stalled) == 0 {
		return
	}
	// a tab that stops reading loses its socket; the browser reconnects
	h.mu.Lock()
	for _, c := range stalled {
		if _, ok := h.tabs[c]; ok {
			observability.Warnf("Dropping stalled tab %s", c.ID)
			h.drop(c)
		}
	}
	h.mu.Unlock()
}

func (h *WebSocketHub) publish(msg WSMessage, match func(*WSClient) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		observability.Errorf("Encode %s frame: %v", msg.Type, err)
		return
	}
	select {
	case h.outbox <- delivery{match: match, data: data}:
	case <-h.done:
	}
}

// Register adds a tab to the hub
func (h *WebSocketHub) Register(c *WSClient) {
	select {
	case h.join <- c:
	case <-h.done:
		close(c.Send)
	}
}

// Unregister removes a tab from the hub
func (h *WebSocketHub) Unregister(c *WSClient) {
	select {
	case h.leave <- c:
	case <-h.done:
	}
}

// Subscribe adds a tab to a topic
func (h *WebSocketHub) Subscribe(c *WSClient, topic string) {
	h.mu.Lock()
	c.topics[topic] = struct{}{}
	h.mu.Unlock()
}

// Unsubscribe removes a tab from a topic
func (h *WebSocketHub) Unsubscribe(c *WSClient, topic string) {
	h.mu.Lock()
	delete(c.topics, topic)
	h.mu.Unlock()
}

// BroadcastToTopic sends msg to every tab subscribed to topic
func (h *WebSocketHub) BroadcastToTopic(topic string, msg WSMessage) {
	h.publish(msg, func(c *WSClient) bool {
		_, ok := c.topics[topic]
		return ok
	})
}

// SendToSession sends msg to every tab of one web session
func (h *WebSocketHub) SendToSession(sessionID string, msg WSMessage) {
	h.publish(msg, func(c *WSClient) bool { return c.SessionID == sessionID })
}

// Attach forwards bus events to connected tabs: unauthorized goes to the
// affected session, photo_uploaded to gallery viewers
func (h *WebSocketHub) Attach(bus *EventBus) {
	bus.Subscribe(EventUnauthorized, func(_ context.Context, event Event) {
		h.SendToSession(event.SessionID, WSMessage{Type: WSTypeUnauthorized})
	})
	bus.Subscribe(EventPhotoUploaded, func(_ context.Context, event Event) {
		h.BroadcastToTopic(TopicGallery, WSMessage{Type: WSTypePhotoUploaded, Payload: event.Payload})
	})
}

// ClientCount returns the number of open tabs
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tabs)
}

// SessionClientCount returns the number of open tabs of a session
func (h *WebSocketHub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bySession[sessionID])
}

// NewClient wraps conn as a tab of the given session
func (h *WebSocketHub) NewClient(id, sessionID string, conn *websocket.Conn) *WSClient {
	return &WSClient{
		ID:        id,
		SessionID: sessionID,
		Conn:      conn,
		Send:      make(chan []byte, wsSendBuffer),
		hub:       h,
		topics:    make(map[string]struct{}),
	}
}

// Close unregisters the tab and closes its socket
func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		c.hub.Unregister(c)
		c.Conn.Close()
	})
}

// Push queues a frame for this tab only. It goes through the hub so that
// it never races the hub closing Send.
func (c *WSClient) Push(msg WSMessage) {
	c.hub.publish(msg, func(other *WSClient) bool { return other == c })
}

// WritePump writes queued frames and keepalive pings until Send closes
// or a write fails
func (c *WSClient) WritePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			c.writeMu.Lock()
			c.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			var err error
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			} else {
				err = c.Conn.WriteMessage(websocket.TextMessage, data)
			}
			c.writeMu.Unlock()
			if !ok || err != nil {
				return
			}

		case <-ticker.C:
			c.writeMu.Lock()
			c.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			err := c.Conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ReadPump reads frames from the browser and hands them to onMessage until
// the socket closes or a pong is overdue
func (c *WSClient) ReadPump(onMessage func(c *WSClient, messageType int, data []byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(wsMaxInbound)
	c.Conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		messageType, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.Warnf("WebSocket read from tab %s: %v", c.ID, err)
			}
			return
		}
		if onMessage != nil {
			onMessage(c, messageType, data)
		}
	}
}
