package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T) (*WebSocketHub, context.CancelFunc) {
	t.Helper()
	hub := NewWebSocketHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub, cancel
}

func receive(t *testing.T, c *WSClient) string {
	t.Helper()
	select {
	case msg := <-c.Send:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatalf("tab %s got nothing", c.ID)
		return ""
	}
}

func TestWebSocketHub_TopicBroadcast(t *testing.T) {
	hub, _ := runHub(t)

	viewer := hub.NewClient("tab-1", "s1", nil)
	uploader := hub.NewClient("tab-2", "s2", nil)
	hub.Register(viewer)
	hub.Register(uploader)
	hub.Subscribe(viewer, TopicGallery)

	hub.BroadcastToTopic(TopicGallery, WSMessage{Type: WSTypePhotoUploaded, Payload: map[string]int{"id": 7}})

	assert.JSONEq(t, `{"type":"photo_uploaded","payload":{"id":7}}`, receive(t, viewer))
	assert.Empty(t, uploader.Send)

	hub.Unsubscribe(viewer, TopicGallery)
	hub.BroadcastToTopic(TopicGallery, WSMessage{Type: WSTypePhotoUploaded})
	hub.SendToSession("s1", WSMessage{Type: WSTypeUnauthorized})
	assert.JSONEq(t, `{"type":"unauthorized"}`, receive(t, viewer))
}

func TestWebSocketHub_SessionTabs(t *testing.T) {
	hub, _ := runHub(t)

	a := hub.NewClient("tab-a", "s1", nil)
	b := hub.NewClient("tab-b", "s1", nil)
	hub.Register(a)
	hub.Register(b)
	assert.Eventually(t, func() bool { return hub.SessionClientCount("s1") == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, hub.ClientCount())

	hub.Unregister(a)
	assert.Eventually(t, func() bool { return hub.SessionClientCount("s1") == 1 }, time.Second, 10*time.Millisecond)

	_, open := <-a.Send
	assert.False(t, open)
}

func TestWebSocketHub_DropsStalledTab(t *testing.T) {
	hub, _ := runHub(t)

	stalled := hub.NewClient("tab-1", "s1", nil)
	hub.Register(stalled)
	for i := 0; i < wsSendBuffer+1; i++ {
		hub.SendToSession("s1", WSMessage{Type: WSTypePong})
	}

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketHub_Shutdown(t *testing.T) {
	hub, cancel := runHub(t)

	tab := hub.NewClient("tab-1", "s1", nil)
	hub.Register(tab)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-tab.Send:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// no deadlock once the loop is gone
	late := hub.NewClient("tab-2", "s1", nil)
	hub.Register(late)
	hub.SendToSession("s1", WSMessage{Type: WSTypeUnauthorized})
	_, open := <-late.Send
	assert.False(t, open)
}

func TestWSClient_PushAfterClose(t *testing.T) {
	hub, _ := runHub(t)

	tab := hub.NewClient("tab-1", "s1", nil)
	hub.Register(tab)
	tab.Push(WSMessage{Type: WSTypePong})
	assert.JSONEq(t, `{"type":"pong"}`, receive(t, tab))

	hub.Unregister(tab)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	assert.NotPanics(t, func() { tab.Push(WSMessage{Type: WSTypePong}) })
}
