package internal

import (
	"net/http"
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ClientOptions configures the terminal client.
type ClientOptions struct {
	// JoinURL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	JoinURL     string
	DisplayName string
	// BrowseDir is where the file browser starts; empty picks a default.
	BrowseDir string
	Logger    zerolog.Logger
}

// tui model for the name prompt, the chat view and the file browser
type TUIModel struct {
	textInput       textinput.Model
	conversation    *Conversation
	serverJoinURL   string
	httpBase        string
	displayName     string
	websocketConn   *websocket.Conn
	outbox          *outbox
	isConnected     bool
	connectionError error
	mode            appMode
	typing          TypingDebounce
	browser         fileBrowser
	uploading       bool
	width           int
	height          int
	httpClient      *http.Client
	logger          zerolog.Logger
}

type appMode int

const (
	modeNamePrompt appMode = iota
	modeChat
	modeFileBrowser
)

func NewTUIModel(opts ClientOptions) (*TUIModel, error) {
	httpBase, err := httpBaseFromJoinURL(opts.JoinURL)
	if err != nil {
		return nil, err
	}
	input := textinput.New()
	input.CharLimit = maxTextRunes
	input.Focus()

	browseDir := opts.BrowseDir
	if browseDir == "" {
		browseDir = getDefaultBrowsePath()
	}

	model := &TUIModel{
		textInput:     input,
		conversation:  NewConversation(),
		serverJoinURL: opts.JoinURL,
		httpBase:      httpBase,
		displayName:   opts.DisplayName,
		browser:       fileBrowser{path: browseDir},
		httpClient:    &http.Client{Timeout: uploadTimeout},
		logger:        opts.Logger,
	}
	if opts.DisplayName == "" {
		model.enterNamePrompt(defaultDisplayName())
	} else {
		model.enterChat()
	}
	return model, nil
}

func defaultDisplayName() string {
	if user := os.Getenv("TELECHAT_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return DefaultDisplayName
}

func (model *TUIModel) enterNamePrompt(suggested string) {
	model.mode = modeNamePrompt
	model.textInput.SetValue(suggested)
	model.textInput.CursorEnd()
	model.textInput.Placeholder = "Enter display name…"
	model.textInput.Prompt = "name> "
}

func (model *TUIModel) enterChat() {
	model.mode = modeChat
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Type a message, /attach <path>, /files or /quit"
	model.textInput.Prompt = "> "
}

func (model *TUIModel) Init() tea.Cmd {
	if model.mode == modeChat {
		return tea.Batch(textinput.Blink, model.connectCmd())
	}
	return textinput.Blink
}
