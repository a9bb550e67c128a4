package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Dawstr8/polish-peaks/internal/models"
)

func TestEventBus_Publish(t *testing.T) {
	bus := NewEventBus()
	var got []Event
	bus.Subscribe(EventUnauthorized, func(_ context.Context, e Event) { got = append(got, e) })
	bus.Subscribe(EventUnauthorized, func(context.Context, Event) { panic("broken subscriber") })
	bus.Subscribe(EventUnauthorized, func(_ context.Context, e Event) { got = append(got, e) })

	bus.PublishUnauthorized(context.Background(), "session-1")
	bus.PublishUnauthorized(context.Background(), "")
	bus.Publish(context.Background(), Event{Type: EventPhotoUploaded})

	assert.Len(t, got, 2)
	assert.Equal(t, "session-1", got[0].SessionID)
}

func TestEventBus_UnauthorizedHook(t *testing.T) {
	bus := NewEventBus()
	var got []string
	bus.Subscribe(EventUnauthorized, func(_ context.Context, e Event) { got = append(got, e.SessionID) })
	hook := bus.UnauthorizedHook()

	anonymous := models.NewWebSession("127.0.0.1", "test", time.Hour)
	signedIn := models.NewWebSession("127.0.0.1", "test", time.Hour)
	signedIn.AccessToken = "token"

	hook(context.Background())
	hook(models.ContextWithSession(context.Background(), anonymous))
	hook(models.ContextWithSession(context.Background(), signedIn))

	assert.Equal(t, []string{signedIn.ID}, got)
}

func TestWebSocketHub_Attach(t *testing.T) {
	hub := NewWebSocketHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	bus := NewEventBus()
	hub.Attach(bus)

	mine := hub.NewClient("tab-1", "session-1", nil)
	other := hub.NewClient("tab-2", "session-2", nil)
	hub.Register(mine)
	hub.Register(other)

	bus.PublishUnauthorized(ctx, "session-1")

	select {
	case msg := <-mine.Send:
		assert.JSONEq(t, `{"type":"unauthorized"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message for the signed out session")
	}
	assert.Empty(t, other.Send)
	assert.Equal(t, 1, hub.SessionClientCount("session-1"))
}
