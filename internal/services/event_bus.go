package services

import (
	"context"
	"sync"

	"github.com/Dawstr8/polish-peaks/internal/models"
	"github.com/Dawstr8/polish-peaks/internal/observability"
)

// Event types published on the bus
const (
	EventUnauthorized  = "unauthorized"
	EventPhotoUploaded = "photo_uploaded"
)

// Event is an in-process notification scoped to one session, or to every
// session when SessionID is empty
type Event struct {
	Type      string
	SessionID string
	Payload   interface{}
}

// EventHandler receives published events
type EventHandler func(ctx context.Context, event Event)

// EventBus fans events out to subscribers synchronously
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewEventBus creates a new EventBus
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for an event type
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers the event to every handler of its type. A panicking
// handler is logged and does not stop the others.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					observability.Errorf("Event handler for %s panicked: %v", event.Type, r)
				}
			}()
			handler(ctx, event)
		}()
	}
}

// PublishUnauthorized signals that the API rejected the token of the
// session attached to ctx
func (b *EventBus) PublishUnauthorized(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	observability.WithContext(ctx).WithField("session_id", sessionID).Info("API rejected session token")
	b.Publish(ctx, Event{Type: EventUnauthorized, SessionID: sessionID})
}

// UnauthorizedHook adapts the bus to the API client's 401 callback. Only a
// session that sent a token is signed out; a failed sign-in is not an event.
func (b *EventBus) UnauthorizedHook() func(ctx context.Context) {
	return func(ctx context.Context) {
		session := models.SessionFromContext(ctx)
		if session == nil || !session.IsAuthenticated() {
			return
		}
		b.PublishUnauthorized(ctx, session.ID)
	}
}
