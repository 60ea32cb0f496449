package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds one WebSocket write. A client that cannot drain
// an event within it is disconnected rather than allowed to stall the
// pump.
const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is same-host tooling, not a browser origin boundary.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsHandler upgrades the connection and streams every progress event as
// a JSON message. Each client gets its own bus subscription, so a slow
// client drops its own events without affecting anyone else.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := s.bus.Subscribe()

	// Reader goroutine: the client sends nothing we care about, but
	// reading is what services close frames and detects disconnects.
	// Closing the subscription unblocks the write pump.
	go func() {
		defer sub.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer conn.Close()
		for {
			ev, ok := sub.Next()
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				sub.Close()
				return
			}
		}
	}()
}
