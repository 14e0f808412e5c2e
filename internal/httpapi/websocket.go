package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ibs-source/mqtt-router/internal/observer"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Observers are unauthenticated; any origin may connect.
	CheckOrigin: func(*http.Request) bool { return true },
}

// observe handles GET /ws: upgrades the connection and streams every routed
// message to the client until either side closes.
func (s *Server) observe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed: %v", err)
		return
	}

	o := s.deps.Hub.Register()
	s.log.Debug("Observer %s connected from %s", o.ID, r.RemoteAddr)

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, o, done)

	s.deps.Hub.Unregister(o)
	_ = conn.Close()
	s.log.Debug("Observer %s disconnected (%d dropped)", o.ID, o.Dropped())
}

// readPump consumes control frames so pongs and closes are processed.
// Observers send nothing meaningful; done is closed when the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	pongWait := 2 * s.pingInterval
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("WebSocket read error: %v", err)
			}
			return
		}
	}
}

// writePump forwards observer messages and pings until the peer or hub goes away.
func (s *Server) writePump(conn *websocket.Conn, o *observer.Observer, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-o.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.log.Warn("Failed to encode observer message: %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug("WebSocket ping error: %v", err)
				return
			}
		}
	}
}
