package transport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rpggio/fieldcam/internal/events"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = (pongTimeout * 9) / 10
	maxClientFrame = 512
)

// Subscriber is the event source a stream fans out.
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// EventStream serves change events over WebSocket. Clients may pass
// ?session_id= to receive only that session's events.
type EventStream struct {
	source   Subscriber
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewEventStream creates a stream over source.
func NewEventStream(source Subscriber, logger *slog.Logger) *EventStream {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EventStream{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
		done:   make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the client goes
// away or the stream is closed.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	filter := r.URL.Query().Get("session_id")
	ch, cancel := s.source.Subscribe()
	s.logger.Debug("event stream opened", "remote", r.RemoteAddr, "session_id", filter)

	gone := make(chan struct{})
	go s.readPump(ws, gone)
	s.writePump(ws, ch, filter, gone)

	cancel()
	_ = ws.Close()
	s.logger.Debug("event stream closed", "remote", r.RemoteAddr)
}

// readPump discards client frames and keeps the read deadline fresh.
func (s *EventStream) readPump(ws *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)

	ws.SetReadLimit(maxClientFrame)
	_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

func (s *EventStream) writePump(ws *websocket.Conn, ch <-chan events.Event, filter string, gone <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if filter != "" && ev.SessionID != filter {
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-gone:
			return

		case <-s.done:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// Close ends every open stream and waits for them to finish.
func (s *EventStream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
}
