package internal

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

const maxConversationEntries = 500

// ChatEntry is one line of the conversation log: an envelope or a notice.
type ChatEntry struct {
	Envelope *Envelope
	Notice   string
	At       time.Time
	Mine     bool
	// Delivered is set once the relay echoed the envelope back to its author.
	Delivered bool
	SeenBy    map[string]struct{}
}

// Conversation is the client's view of the room, rebuilt from the frames the
// relay sends. It is not safe for concurrent use; the TUI owns it.
type Conversation struct {
	selfID   string
	pastSelf map[string]struct{}
	entries  []ChatEntry
	index    map[string]int
	seenSent map[string]struct{}
	typers   []string
	roster   []string
	now      func() time.Time
}

func NewConversation() *Conversation {
	return &Conversation{
		pastSelf: make(map[string]struct{}),
		index:    make(map[string]int),
		seenSent: make(map[string]struct{}),
		now:      time.Now,
	}
}

// SelfID is the connection id the relay assigned on the last join.
func (c *Conversation) SelfID() string {
	return c.selfID
}

// IsMine classifies an envelope by the server-stamped sender id. Ids from
// earlier connections of this client still count after a reconnect.
func (c *Conversation) IsMine(env Envelope) bool {
	if env.SenderID == "" {
		return false
	}
	if env.SenderID == c.selfID {
		return true
	}
	_, ok := c.pastSelf[env.SenderID]
	return ok
}

// Apply folds a frame into the conversation. It returns the ids of envelopes
// authored by others that need a seen receipt; each id is returned once.
func (c *Conversation) Apply(frame Frame) ([]string, error) {
	switch frame.Type {
	case SignalSelfID:
		var id string
		if err := json.Unmarshal(frame.Data, &id); err != nil {
			return nil, fmt.Errorf("decode self-id: %w", err)
		}
		if c.selfID != "" && c.selfID != id {
			c.pastSelf[c.selfID] = struct{}{}
		}
		c.selfID = id
		c.typers = nil
	case SignalMessage, SignalMediaMessage:
		var env Envelope
		if err := json.Unmarshal(frame.Data, &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		return c.addEnvelope(env), nil
	case SignalSystem:
		var notice string
		if err := json.Unmarshal(frame.Data, &notice); err != nil {
			return nil, fmt.Errorf("decode system notice: %w", err)
		}
		c.AddNotice(notice)
	case SignalTyping:
		var name string
		if err := json.Unmarshal(frame.Data, &name); err != nil {
			return nil, fmt.Errorf("decode typing: %w", err)
		}
		if !slices.Contains(c.typers, name) {
			c.typers = append(c.typers, name)
		}
	case SignalStopTyping:
		var name string
		if err := json.Unmarshal(frame.Data, &name); err != nil {
			return nil, fmt.Errorf("decode stopTyping: %w", err)
		}
		c.removeTyper(name)
	case SignalSeen:
		var receipt SeenReceipt
		if err := json.Unmarshal(frame.Data, &receipt); err != nil {
			return nil, fmt.Errorf("decode seen: %w", err)
		}
		c.markSeen(receipt)
	case SignalPresence:
		var update PresenceUpdate
		if err := json.Unmarshal(frame.Data, &update); err != nil {
			return nil, fmt.Errorf("decode presence: %w", err)
		}
		c.roster = update.Online
		c.typers = slices.DeleteFunc(c.typers, func(name string) bool {
			return !slices.Contains(c.roster, name)
		})
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownSignal, frame.Type)
	}
	return nil, nil
}

func (c *Conversation) addEnvelope(env Envelope) []string {
	if _, dup := c.index[env.ID]; dup {
		return nil
	}
	mine := c.IsMine(env)
	at := env.CreatedAt
	if at.IsZero() {
		at = c.now()
	}
	c.entries = append(c.entries, ChatEntry{Envelope: &env, At: at, Mine: mine, Delivered: mine})
	c.index[env.ID] = len(c.entries) - 1
	c.trim()
	if mine || env.ID == "" {
		return nil
	}
	if _, sent := c.seenSent[env.ID]; sent {
		return nil
	}
	c.seenSent[env.ID] = struct{}{}
	return []string{env.ID}
}

// AddNotice appends a system line, from the relay or the client itself.
func (c *Conversation) AddNotice(text string) {
	c.entries = append(c.entries, ChatEntry{Notice: text, At: c.now()})
	c.trim()
}

func (c *Conversation) markSeen(receipt SeenReceipt) {
	idx, ok := c.index[receipt.MessageID]
	if !ok || receipt.ViewerID == "" {
		return
	}
	entry := &c.entries[idx]
	if entry.SeenBy == nil {
		entry.SeenBy = make(map[string]struct{})
	}
	entry.SeenBy[receipt.ViewerID] = struct{}{}
}

func (c *Conversation) removeTyper(name string) {
	c.typers = slices.DeleteFunc(c.typers, func(typer string) bool { return typer == name })
}

func (c *Conversation) trim() {
	overflow := len(c.entries) - maxConversationEntries
	if overflow <= 0 {
		return
	}
	c.entries = slices.Delete(c.entries, 0, overflow)
	clear(c.index)
	for i, entry := range c.entries {
		if entry.Envelope != nil {
			c.index[entry.Envelope.ID] = i
		}
	}
}

func (c *Conversation) Entries() []ChatEntry {
	return c.entries
}

// Typers lists the display names currently shown as typing.
func (c *Conversation) Typers() []string {
	return c.typers
}

func (c *Conversation) Roster() []string {
	return c.roster
}
