package internal

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and attaches the connection to the room under
// a fresh connection id. The session only joins once it sends a join signal.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	id := uuid.NewString()
	s.metrics.IncConn()
	client := newClient(id, s.room, conn, s.session, s.logger, s.metrics.DecConn)
	if !s.room.Register(client) {
		s.metrics.DecConn()
		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), deadline)
		_ = conn.Close()
		return
	}
	s.logger.Debug().Str("conn", id).Str("remote", r.RemoteAddr).Msg("connection attached")
	go client.writePump()
	go client.readPump()
}
