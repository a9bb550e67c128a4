package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Dawstr8/polish-peaks/internal/middleware"
	"github.com/Dawstr8/polish-peaks/internal/observability"
	"github.com/Dawstr8/polish-peaks/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// topics a browser may subscribe to
var subscribableTopics = map[string]bool{
	services.TopicGallery: true,
}

// WebSocketHandler pushes session and gallery events to open tabs
type WebSocketHandler struct {
	hub *services.WebSocketHub
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleConnection upgrades the request and ties the socket to the
// visitor's web session
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())
	if session == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.WithContext(r.Context()).Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := h.hub.NewClient(uuid.New().String(), session.ID, conn)
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump(h.handleMessage)
}

// handleMessage processes subscribe, unsubscribe and ping messages
func (h *WebSocketHandler) handleMessage(client *services.WSClient, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var msg services.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		observability.Debugf("Invalid WebSocket message: %v", err)
		return
	}

	switch msg.Type {
	case services.WSTypeSubscribe:
		if topic := topicOf(msg.Payload); subscribableTopics[topic] {
			h.hub.Subscribe(client, topic)
		}

	case services.WSTypeUnsubscribe:
		if topic := topicOf(msg.Payload); topic != "" {
			h.hub.Unsubscribe(client, topic)
		}

	case services.WSTypePing:
		client.Push(services.WSMessage{Type: services.WSTypePong})

	default:
		observability.Debugf("Unknown WebSocket message type: %s", msg.Type)
	}
}

// topicOf accepts either "topic" or {"topic": "topic"}
func topicOf(payload interface{}) string {
	switch p := payload.(type) {
	case string:
		return p
	case map[string]interface{}:
		if topic, ok := p["topic"].(string); ok {
			return topic
		}
	}
	return ""
}
