package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// pre styled colors, all from lipgloss
var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	mediaStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("117")).Underline(true)
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	typingStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	tickStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	seenTickStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	itemSelectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	itemStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

// reserved rows for header, status, typing line, input and hints
const chromeRows = 12

func (model *TUIModel) View() string {
	switch model.mode {
	case modeNamePrompt:
		return model.renderNamePrompt()
	case modeFileBrowser:
		return model.renderFileBrowser()
	default:
		return model.renderChatView()
	}
}

func (model *TUIModel) renderNamePrompt() string {
	sections := []string{
		appTitleStyle.Render("TeleChat"),
		subtitleStyle.Render("Pick the name others will see"),
		inputBoxStyle.Render(model.textInput.View()),
		menuHintStyle.Render("Enter to join • Esc to quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) renderChatView() string {
	roster := model.conversation.Roster()
	headerSegments := []string{
		"TeleChat",
		fmt.Sprintf("You are %s", model.displayName),
		fmt.Sprintf("Online %d", len(roster)),
		model.httpBase,
	}
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case model.connectionError != nil && !model.isConnected:
		statusLine = errorStyle.Render("Connection error: " + model.connectionError.Error())
	case model.uploading:
		statusLine = connectingStyle.Render("Uploading…")
	case model.isConnected:
		statusLine = connectedStyle.Render("Connected")
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	var messageLines []string
	for _, entry := range model.visibleEntries() {
		messageLines = append(messageLines, model.renderEntry(entry))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, systemMessageStyle.Render("No messages yet. Say hi and start the conversation."))
	}

	sections := []string{
		header,
		statusLine,
		messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...)),
		typingStyle.Render(typingLine(model.conversation.Typers())),
		inputBoxStyle.Render(model.textInput.View()),
		menuHintStyle.Render("/attach <path> • /files • /who • /quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) visibleEntries() []ChatEntry {
	entries := model.conversation.Entries()
	if model.height <= chromeRows {
		return entries
	}
	if room := model.height - chromeRows; len(entries) > room {
		return entries[len(entries)-room:]
	}
	return entries
}

// renderEntry renders a single log line: timestamp, sender, body and, for
// own messages, the delivered/seen ticks.
func (model *TUIModel) renderEntry(entry ChatEntry) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", entry.At.Local().Format("15:04")))
	if entry.Envelope == nil {
		return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", systemMessageStyle.Render(entry.Notice))
	}
	env := entry.Envelope

	nameStyle := usernameStyle.Copy().Foreground(colorForUser(env.Author))
	if entry.Mine {
		nameStyle = activeUserStyle
	}
	name := nameStyle.Render(env.Author)

	var body string
	switch {
	case env.Text != nil:
		body = messageBodyStyle.Render(strings.ReplaceAll(env.Text.Text, "\n", "\n   "))
	case env.Media != nil:
		body = mediaStyle.Render(fmt.Sprintf("[%s] %s %s", env.Kind, env.Media.FileName, displayLocator(resolveLocator(model.httpBase, env.Media.Locator))))
	}

	line := lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", name, ": ", body)
	if entry.Mine {
		line = lipgloss.JoinHorizontal(lipgloss.Left, line, " ", renderTicks(entry))
		if model.width > 0 {
			return lipgloss.PlaceHorizontal(model.width-4, lipgloss.Right, line)
		}
	}
	return line
}

func renderTicks(entry ChatEntry) string {
	if n := len(entry.SeenBy); n > 0 {
		return seenTickStyle.Render(fmt.Sprintf("✓✓ %d", n))
	}
	if entry.Delivered {
		return tickStyle.Render("✓")
	}
	return ""
}

// displayLocator keeps inline data URLs from flooding the screen.
func displayLocator(locator string) string {
	if strings.HasPrefix(locator, "data:") {
		mediaType, _, _ := strings.Cut(strings.TrimPrefix(locator, "data:"), ";")
		return "(inline " + mediaType + ")"
	}
	return locator
}

func typingLine(typers []string) string {
	switch len(typers) {
	case 0:
		return " "
	case 1:
		return typers[0] + " is typing…"
	case 2:
		return typers[0] + " and " + typers[1] + " are typing…"
	default:
		return fmt.Sprintf("%s and %d others are typing…", typers[0], len(typers)-1)
	}
}

func (model *TUIModel) renderFileBrowser() string {
	sections := []string{
		appTitleStyle.Render("Attach a file"),
		subtitleStyle.Render(model.browser.path),
	}
	if model.browser.err != nil {
		sections = append(sections, errorStyle.Render(model.browser.err.Error()))
	}
	var lines []string
	if len(model.browser.items) == 0 {
		lines = append(lines, menuHintStyle.Render("Empty directory."))
	}
	for idx, item := range model.browserWindow() {
		label := item.Name
		if item.IsDir {
			label += "/"
		} else {
			label = fmt.Sprintf("%s  (%s)", label, formatFileSize(item.Size))
		}
		if idx+model.browserOffset() == model.browser.cursor {
			lines = append(lines, itemSelectedStyle.Render("➤ "+label))
		} else {
			lines = append(lines, itemStyle.Render("  "+label))
		}
	}
	sections = append(sections,
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)),
		menuHintStyle.Render("↑/↓ select • Enter open/upload • Esc back"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) browserRows() int {
	if model.height <= chromeRows {
		return 15
	}
	return model.height - chromeRows
}

func (model *TUIModel) browserOffset() int {
	rows := model.browserRows()
	if model.browser.cursor < rows {
		return 0
	}
	return model.browser.cursor - rows + 1
}

func (model *TUIModel) browserWindow() []FileItem {
	offset := model.browserOffset()
	end := min(offset+model.browserRows(), len(model.browser.items))
	if offset >= end {
		return nil
	}
	return model.browser.items[offset:end]
}

// color for users
func colorForUser(name string) lipgloss.Color {
	if len(userColorPalette) == 0 {
		return lipgloss.Color("249")
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
