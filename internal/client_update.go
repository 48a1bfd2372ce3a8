package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

type (
	connectedMsg     struct{ conn *websocket.Conn }
	connectFailedMsg struct{ err error }
	connLostMsg      struct {
		conn *websocket.Conn
		err  error
	}
	frameMsg struct {
		conn  *websocket.Conn
		frame Frame
	}
	sendFailedMsg   struct{ err error }
	reconnectMsg    struct{}
	typingIdleMsg   struct{ token uint64 }
	uploadDoneMsg   struct{ result uploadResult }
	uploadFailedMsg struct {
		path string
		err  error
	}
	browserLoadedMsg struct {
		path  string
		items []FileItem
		err   error
	}
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.WindowSizeMsg:
		model.width = typedMessage.Width
		model.height = typedMessage.Height
		model.textInput.Width = max(typedMessage.Width-8, 10)
		return model, nil

	case tea.KeyMsg:
		// every mode respects Ctrl+C so the user can bail out quickly
		if typedMessage.Type == tea.KeyCtrlC {
			model.closeConn("client quit")
			return model, tea.Quit
		}
		switch model.mode {
		case modeNamePrompt:
			return model.updateNamePrompt(typedMessage)
		case modeFileBrowser:
			return model.updateFileBrowser(typedMessage)
		default:
			return model.updateChat(typedMessage)
		}

	case connectedMsg:
		model.websocketConn = typedMessage.conn
		model.outbox = newOutbox(typedMessage.conn)
		model.isConnected = true
		model.connectionError = nil
		model.typing = TypingDebounce{}
		return model, tea.Batch(
			model.send(SignalJoin, model.displayName),
			readOnceCmd(typedMessage.conn),
		)

	case frameMsg:
		if typedMessage.conn != model.websocketConn {
			return model, nil
		}
		seen, err := model.conversation.Apply(typedMessage.frame)
		if err != nil {
			model.logger.Debug().Err(err).Msg("ignored frame")
		}
		cmds := []tea.Cmd{readOnceCmd(typedMessage.conn)}
		for _, id := range seen {
			cmds = append(cmds, model.send(SignalSeen, id))
		}
		return model, tea.Batch(cmds...)

	case connLostMsg:
		if typedMessage.conn != model.websocketConn {
			return model, nil
		}
		_ = typedMessage.conn.Close()
		model.outbox.close("")
		model.websocketConn = nil
		model.outbox = nil
		model.isConnected = false
		model.connectionError = typedMessage.err
		model.conversation.AddNotice("Connection lost, reconnecting…")
		return model, model.scheduleReconnect()

	case connectFailedMsg:
		model.connectionError = typedMessage.err
		return model, model.scheduleReconnect()

	case reconnectMsg:
		if model.mode != modeNamePrompt && !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil

	case sendFailedMsg:
		model.connectionError = typedMessage.err
		return model, nil

	case typingIdleMsg:
		if model.typing.Expire(typedMessage.token) {
			return model, model.send(SignalStopTyping, nil)
		}
		return model, nil

	case uploadDoneMsg:
		model.uploading = false
		result := typedMessage.result
		return model, model.send(SignalMediaMessage, MediaDescriptor{
			Kind:     result.Kind,
			FileName: result.FileName,
			MimeType: result.MimeType,
			URL:      result.URL,
		})

	case uploadFailedMsg:
		model.uploading = false
		model.conversation.AddNotice(fmt.Sprintf("Upload of %s failed: %v", filepath.Base(typedMessage.path), typedMessage.err))
		return model, nil

	case browserLoadedMsg:
		if typedMessage.err != nil {
			model.browser.err = typedMessage.err
			return model, nil
		}
		model.browser.load(typedMessage.path, typedMessage.items)
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) updateNamePrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyEsc {
		return model, tea.Quit
	}
	if key.Type == tea.KeyEnter {
		model.displayName = sanitizeDisplayName(model.textInput.Value())
		model.enterChat()
		return model, model.connectCmd()
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) updateChat(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		model.closeConn("client quit")
		return model, tea.Quit
	case tea.KeyEnter:
		return model.submit()
	}

	before := model.textInput.Value()
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	if model.textInput.Value() == before || !model.isConnected {
		return model, cmd
	}
	if strings.HasPrefix(strings.TrimSpace(model.textInput.Value()), "/") {
		return model, cmd
	}
	emit, token := model.typing.Input()
	cmds := []tea.Cmd{cmd, typingIdleCmd(token)}
	if emit {
		cmds = append(cmds, model.send(SignalTyping, nil))
	}
	return model, tea.Batch(cmds...)
}

func (model *TUIModel) submit() (tea.Model, tea.Cmd) {
	trimmed := strings.TrimSpace(model.textInput.Value())
	model.textInput.SetValue("")

	var cmds []tea.Cmd
	if model.typing.Submit() {
		cmds = append(cmds, model.send(SignalStopTyping, nil))
	}
	if strings.HasPrefix(trimmed, "/") {
		return model, tea.Batch(append(cmds, model.runCommand(trimmed))...)
	}
	if trimmed == "" {
		return model, tea.Batch(cmds...)
	}
	if !model.isConnected {
		model.conversation.AddNotice("Not connected yet; message not sent.")
		return model, tea.Batch(cmds...)
	}
	cmds = append(cmds, model.send(SignalMessage, TextRequest{Text: trimmed}))
	return model, tea.Batch(cmds...)
}

func (model *TUIModel) runCommand(line string) tea.Cmd {
	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(command) {
	case "/quit", "/exit":
		model.closeConn("client quit")
		return tea.Quit
	case "/attach":
		if arg == "" {
			model.conversation.AddNotice("Usage: /attach <path>")
			return nil
		}
		return model.startUpload(expandHome(arg))
	case "/files":
		model.mode = modeFileBrowser
		model.textInput.Blur()
		return model.browseCmd(model.browser.path)
	case "/who":
		model.conversation.AddNotice("Online: " + strings.Join(model.conversation.Roster(), ", "))
		return nil
	case "/help":
		model.conversation.AddNotice("Commands: /attach <path>, /files, /who, /quit")
		return nil
	default:
		model.conversation.AddNotice(fmt.Sprintf("Unknown command %s; try /help", command))
		return nil
	}
}

func (model *TUIModel) startUpload(path string) tea.Cmd {
	if !model.isConnected {
		model.conversation.AddNotice("Not connected yet; upload skipped.")
		return nil
	}
	if model.uploading {
		model.conversation.AddNotice("An upload is already in progress.")
		return nil
	}
	model.uploading = true
	model.conversation.AddNotice("Uploading " + filepath.Base(path) + "…")
	return model.uploadCmd(path)
}

func (model *TUIModel) updateFileBrowser(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc", "q":
		model.mode = modeChat
		return model, model.textInput.Focus()
	case "up", "k":
		model.browser.move(-1)
	case "down", "j":
		model.browser.move(1)
	case "enter":
		item, ok := model.browser.selected()
		if !ok {
			return model, nil
		}
		if item.IsDir {
			return model, model.browseCmd(item.Path)
		}
		model.mode = modeChat
		return model, tea.Batch(model.textInput.Focus(), model.startUpload(item.Path))
	}
	return model, nil
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
