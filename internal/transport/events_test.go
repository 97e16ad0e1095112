package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rpggio/fieldcam/internal/events"
	"github.com/stretchr/testify/require"
)

func dialEvents(t *testing.T, bus *events.Bus, query string) (*websocket.Conn, *EventStream) {
	t.Helper()
	stream := NewEventStream(bus, nil)
	server := httptest.NewServer(NewServer(Config{Photos: &photoStub{}, Events: stream}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events" + query
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = ws.Close() })

	require.Eventually(t, func() bool { return bus.Len() == 1 }, time.Second, 5*time.Millisecond)
	return ws, stream
}

func TestEventStream_DeliversEvents(t *testing.T) {
	bus := events.NewBus(nil)
	ws, _ := dialEvents(t, bus, "")

	bus.Publish(events.Event{
		Type:      events.RecordsChanged,
		SessionID: "s1",
		RecordIDs: []string{"p1"},
		Reason:    "captured",
	})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got events.Event
	require.NoError(t, ws.ReadJSON(&got))
	require.Equal(t, events.RecordsChanged, got.Type)
	require.Equal(t, "s1", got.SessionID)
	require.Equal(t, []string{"p1"}, got.RecordIDs)
	require.Equal(t, "captured", got.Reason)
}

func TestEventStream_FiltersBySession(t *testing.T) {
	bus := events.NewBus(nil)
	ws, _ := dialEvents(t, bus, "?session_id=s2")

	bus.Publish(events.Event{Type: events.SessionChanged, SessionID: "s1", Reason: "sequence"})
	bus.Publish(events.Event{Type: events.SessionChanged, SessionID: "s2", Reason: "renamed"})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got events.Event
	require.NoError(t, ws.ReadJSON(&got))
	require.Equal(t, "s2", got.SessionID)
	require.Equal(t, "renamed", got.Reason)
}

func TestEventStream_UnsubscribesOnClose(t *testing.T) {
	bus := events.NewBus(nil)
	ws, _ := dialEvents(t, bus, "")

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return bus.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestEventStream_CloseEndsStreams(t *testing.T) {
	bus := events.NewBus(nil)
	ws, stream := dialEvents(t, bus, "")

	stream.Close()
	require.Equal(t, 0, bus.Len())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
