package internal

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Inline media travels inside the frame as base64, so the read limit sits
	// above the 2 MiB image cap.
	maxFrameSize = 4 << 20
	sendQueueLen = 256

	DefaultMessageBurst  = 5
	DefaultMessageWindow = 3 * time.Second
)

// SessionLimits bounds how many message and media signals one connection may
// send per window. A zero Burst means DefaultMessageBurst to the server; a
// negative Burst disables the limit.
type SessionLimits struct {
	Burst  int
	Window time.Duration
}

// Client is one websocket connection attached to the room.
type Client struct {
	id           string
	room         *Room
	conn         *websocket.Conn
	send         chan []byte
	closeCode    int
	limits       SessionLimits
	messageTimes []time.Time
	logger       zerolog.Logger
	onDisconnect func()
}

func newClient(id string, room *Room, conn *websocket.Conn, limits SessionLimits, logger zerolog.Logger, onDisconnect func()) *Client {
	return &Client{
		id:           id,
		room:         room,
		conn:         conn,
		send:         make(chan []byte, sendQueueLen),
		closeCode:    websocket.CloseNormalClosure,
		limits:       limits,
		messageTimes: make([]time.Time, 0, max(limits.Burst, 0)),
		logger:       logger.With().Str("conn", id).Logger(),
		onDisconnect: onDisconnect,
	}
}

func (client *Client) readPump() {
	defer func() {
		client.room.Unregister(client)
		_ = client.conn.Close()
		if client.onDisconnect != nil {
			client.onDisconnect()
		}
	}()
	client.conn.SetReadLimit(maxFrameSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				client.logger.Debug().Err(err).Msg("read failed")
			}
			return
		}
		signal, err := decodeInbound(payload)
		if err != nil {
			client.room.metrics.IncDropped()
			client.logger.Debug().Err(err).Msg("malformed frame dropped")
			continue
		}
		if countsTowardLimit(signal) && !client.allowMessage(time.Now()) {
			signal = throttledSignal{}
		}
		if !client.room.Deliver(client, signal) {
			return
		}
	}
}

func (client *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(client.closeCode, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func countsTowardLimit(signal inbound) bool {
	switch signal.(type) {
	case textSignal, mediaSignal:
		return true
	default:
		return false
	}
}

// allowMessage applies the per-connection sliding window. Only readPump
// calls it, so messageTimes needs no lock.
func (client *Client) allowMessage(now time.Time) bool {
	if client.limits.Burst <= 0 {
		return true
	}
	client.messageTimes = pruneBefore(client.messageTimes, now.Add(-client.limits.Window))
	if len(client.messageTimes) >= client.limits.Burst {
		return false
	}
	client.messageTimes = append(client.messageTimes, now)
	return true
}
