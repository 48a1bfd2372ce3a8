package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const reconnectDelay = 2 * time.Second

var errNotConnected = errors.New("websocket not connected")

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	// a future poke that nudges Update to try the connection again
	return tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (model *TUIModel) connectCmd() tea.Cmd {
	joinURL := model.serverJoinURL
	return func() tea.Msg {
		if err := validateJoinURL(joinURL); err != nil {
			return connectFailedMsg{err: err}
		}
		header := http.Header{}
		header.Set("User-Agent", UserAgent())
		conn, _, err := websocket.DefaultDialer.Dial(joinURL, header)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

// readOnceCmd blocks for the next frame. Update re-arms it after each one.
func readOnceCmd(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return connLostMsg{conn: conn, err: err}
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var frame Frame
			if err := json.Unmarshal(payload, &frame); err != nil {
				continue
			}
			return frameMsg{conn: conn, frame: frame}
		}
	}
}

// send queues a frame on the connection's outbox. Frames go out in call
// order; a failure comes back as sendFailedMsg.
func (model *TUIModel) send(kind SignalType, data any) tea.Cmd {
	if !model.isConnected {
		return nil
	}
	if err := model.outbox.push(kind, data); err != nil {
		return func() tea.Msg { return sendFailedMsg{err: err} }
	}
	return nil
}

func (model *TUIModel) closeConn(reason string) {
	if model.websocketConn == nil {
		return
	}
	model.outbox.close(reason)
	_ = model.websocketConn.Close()
	model.websocketConn = nil
	model.outbox = nil
	model.isConnected = false
}

func typingIdleCmd(token uint64) tea.Cmd {
	return tea.Tick(TypingIdleTimeout, func(time.Time) tea.Msg {
		return typingIdleMsg{token: token}
	})
}

// uploadCmd posts a local file to the relay; Update sends the media message
// once the URL comes back.
func (model *TUIModel) uploadCmd(path string) tea.Cmd {
	client := model.httpClient
	base := model.httpBase
	uploader := model.displayName
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		defer cancel()
		result, err := apiUpload(ctx, client, base, path, uploader)
		if err != nil {
			return uploadFailedMsg{path: path, err: err}
		}
		return uploadDoneMsg{result: result}
	}
}

func (model *TUIModel) browseCmd(path string) tea.Cmd {
	return func() tea.Msg {
		items, err := browseDirectory(path)
		return browserLoadedMsg{path: path, items: items, err: err}
	}
}

// RunClient is the entry point for the bubbletea client.
func RunClient(opts ClientOptions) error {
	model, err := NewTUIModel(opts)
	if err != nil {
		return err
	}
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	model.closeConn("client quit")
	return err
}

func validateJoinURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	return nil
}
