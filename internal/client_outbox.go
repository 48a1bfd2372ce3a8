package internal

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

const outboxLen = 64

var errOutboxFull = errors.New("send queue full")

// outbox serialises every frame the client writes onto one goroutine, so the
// relay sees signals in the order Update produced them. Only the bubbletea
// Update goroutine calls push and close.
type outbox struct {
	conn    *websocket.Conn
	queue   chan []byte
	stopped chan struct{}
	reason  string
	closed  bool
}

func newOutbox(conn *websocket.Conn) *outbox {
	o := &outbox{
		conn:    conn,
		queue:   make(chan []byte, outboxLen),
		stopped: make(chan struct{}),
	}
	go o.writeLoop()
	return o
}

func (o *outbox) push(kind SignalType, data any) error {
	if o == nil || o.closed {
		return errNotConnected
	}
	select {
	case <-o.stopped:
		return errNotConnected
	default:
	}
	encoded, err := encodeFrame(kind, data)
	if err != nil {
		return err
	}
	select {
	case o.queue <- encoded:
		return nil
	default:
		return errOutboxFull
	}
}

// close flushes queued frames, sends a close frame and waits for the writer.
func (o *outbox) close(reason string) {
	if o == nil || o.closed {
		return
	}
	o.closed = true
	o.reason = reason
	close(o.queue)
	<-o.stopped
}

func (o *outbox) writeLoop() {
	defer close(o.stopped)
	for frame := range o.queue {
		_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := o.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			// readOnceCmd notices the closed socket and reports connLostMsg
			_ = o.conn.Close()
			return
		}
	}
	_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = o.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, o.reason))
}
