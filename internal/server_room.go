package internal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const throttleNotice = "You're sending messages too quickly. Please wait a moment and try again."

// RoomOptions wires a Room's collaborators.
type RoomOptions struct {
	Presence *PresenceRegistry
	Metrics  *Metrics
	Logger   zerolog.Logger
	// SeenCacheSize > 0 makes the room drop seen receipts for envelope ids it
	// has not broadcast recently.
	SeenCacheSize int
}

// Room is the broadcast router. A single goroutine (Run) owns the recipient
// set and typing state and handles one signal at a time, so per-sender order
// is preserved for every recipient.
type Room struct {
	presence *PresenceRegistry
	builder  *EnvelopeBuilder
	recent   *recentEnvelopes
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time

	attached map[string]*Client
	members  map[string]*Client
	typing   map[string]bool

	register   chan *Client
	unregister chan *Client
	inbound    chan roomEvent
	done       chan struct{}
	stopOnce   sync.Once
}

type roomEvent struct {
	client *Client
	signal inbound
}

func NewRoom(opts RoomOptions) (*Room, error) {
	recent, err := newRecentEnvelopes(opts.SeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("seen cache: %w", err)
	}
	presence := opts.Presence
	if presence == nil {
		presence = NewPresenceRegistry()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Room{
		presence:   presence,
		builder:    NewEnvelopeBuilder(),
		recent:     recent,
		metrics:    metrics,
		logger:     opts.Logger.With().Str("component", "room").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
		attached:   make(map[string]*Client),
		members:    make(map[string]*Client),
		typing:     make(map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan roomEvent, 256),
		done:       make(chan struct{}),
	}, nil
}

// Run processes membership changes and signals until ctx is cancelled, then
// closes every attached connection.
func (room *Room) Run(ctx context.Context) {
	defer room.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-room.register:
			room.attach(client)
		case client := <-room.unregister:
			room.detach(client)
		case event := <-room.inbound:
			room.handle(event.client, event.signal)
		}
	}
}

// Register hands a new connection to the room. It returns false once the
// room has shut down.
func (room *Room) Register(client *Client) bool {
	select {
	case room.register <- client:
		return true
	case <-room.done:
		return false
	}
}

func (room *Room) Unregister(client *Client) {
	select {
	case room.unregister <- client:
	case <-room.done:
	}
}

// Deliver queues a signal from client for the router loop.
func (room *Room) Deliver(client *Client, signal inbound) bool {
	select {
	case room.inbound <- roomEvent{client: client, signal: signal}:
		return true
	case <-room.done:
		return false
	}
}

func (room *Room) shutdown() {
	room.stopOnce.Do(func() {
		close(room.done)
		for id, client := range room.attached {
			client.closeCode = websocket.CloseGoingAway
			close(client.send)
			delete(room.attached, id)
		}
		room.members = make(map[string]*Client)
		room.logger.Info().Msg("room closed")
	})
}

func (room *Room) attach(client *Client) {
	room.attached[client.id] = client
}

// detach removes a connection. Joined sessions announce their departure, and
// a session that was mid-typing clears its indicator first.
func (room *Room) detach(client *Client) {
	if _, ok := room.attached[client.id]; !ok {
		return
	}
	delete(room.attached, client.id)
	delete(room.members, client.id)
	close(client.send)

	session, joined := room.presence.Leave(client.id)
	if !joined {
		return
	}
	room.logger.Info().Str("conn", client.id).Str("name", session.DisplayName).Msg("session left")
	if room.typing[client.id] {
		delete(room.typing, client.id)
		room.broadcast(SignalStopTyping, session.DisplayName)
	}
	room.broadcast(SignalSystem, session.DisplayName+" left")
	room.broadcastPresence()
}

func (room *Room) handle(client *Client, signal inbound) {
	if _, ok := room.attached[client.id]; !ok {
		return
	}
	if join, ok := signal.(joinSignal); ok {
		room.join(client, join.Name)
		return
	}
	session, joined := room.presence.Lookup(client.id)
	if !joined {
		room.drop(client, signal.inboundType(), "not joined")
		return
	}
	switch sig := signal.(type) {
	case textSignal:
		room.message(session, sig.Text)
	case mediaSignal:
		room.mediaMessage(session, sig.Media)
	case typingSignal:
		room.startTyping(session)
	case stopTypingSignal:
		room.stopTyping(session)
	case seenSignal:
		room.seen(client, sig.MessageID)
	case throttledSignal:
		room.unicast(client, SignalSystem, throttleNotice)
	default:
		room.drop(client, signal.inboundType(), "unhandled signal")
	}
}

func (room *Room) join(client *Client, name string) {
	session, created := room.presence.Join(client.id, sanitizeDisplayName(name), room.now())
	if !created {
		room.drop(client, SignalJoin, "already joined")
		return
	}
	room.members[client.id] = client
	room.metrics.IncJoin()
	room.logger.Info().Str("conn", client.id).Str("name", session.DisplayName).Msg("session joined")

	room.unicast(client, SignalSelfID, client.id)
	room.broadcastExcept(client.id, SignalSystem, session.DisplayName+" joined")
	room.broadcastPresence()
}

func (room *Room) message(session Session, text string) {
	env, ok := room.builder.Text(session.Identity(), text)
	if !ok {
		room.metrics.IncDropped()
		return
	}
	room.emitEnvelope(SignalMessage, env)
}

func (room *Room) mediaMessage(session Session, media MediaDescriptor) {
	env, ok := room.builder.Media(session.Identity(), media)
	if !ok {
		room.metrics.IncDropped()
		return
	}
	room.emitEnvelope(SignalMediaMessage, env)
}

func (room *Room) emitEnvelope(kind SignalType, env Envelope) {
	room.recent.remember(env.ID)
	room.metrics.IncEnvelope()
	room.broadcast(kind, env)
}

func (room *Room) startTyping(session Session) {
	room.typing[session.ConnectionID] = true
	room.broadcastExcept(session.ConnectionID, SignalTyping, session.DisplayName)
}

// stopTyping is only relayed after a typing signal, so peers never observe
// two stops in a row from the same session.
func (room *Room) stopTyping(session Session) {
	if !room.typing[session.ConnectionID] {
		return
	}
	delete(room.typing, session.ConnectionID)
	room.broadcastExcept(session.ConnectionID, SignalStopTyping, session.DisplayName)
}

func (room *Room) seen(client *Client, messageID string) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		room.drop(client, SignalSeen, "empty message id")
		return
	}
	if !room.recent.known(messageID) {
		room.drop(client, SignalSeen, "unknown message id")
		return
	}
	room.broadcastExcept(client.id, SignalSeen, SeenReceipt{MessageID: messageID, ViewerID: client.id})
}

func (room *Room) drop(client *Client, kind SignalType, reason string) {
	room.metrics.IncDropped()
	room.logger.Debug().Str("conn", client.id).Str("signal", string(kind)).Str("reason", reason).Msg("signal dropped")
}

func (room *Room) broadcastPresence() {
	room.broadcast(SignalPresence, PresenceUpdate{Online: room.presence.Names()})
}

func (room *Room) broadcast(kind SignalType, data any) {
	room.broadcastExcept("", kind, data)
}

// broadcastExcept fans a frame out to every joined session but exceptID. A
// member whose queue is full is evicted after the fan-out completes.
func (room *Room) broadcastExcept(exceptID string, kind SignalType, data any) {
	payload, err := encodeFrame(kind, data)
	if err != nil {
		room.logger.Error().Err(err).Str("signal", string(kind)).Msg("encode frame")
		return
	}
	var slow []*Client
	for id, member := range room.members {
		if id == exceptID {
			continue
		}
		if !enqueue(member, payload) {
			slow = append(slow, member)
		}
	}
	for _, member := range slow {
		room.evict(member)
	}
}

func (room *Room) unicast(client *Client, kind SignalType, data any) {
	payload, err := encodeFrame(kind, data)
	if err != nil {
		room.logger.Error().Err(err).Str("signal", string(kind)).Msg("encode frame")
		return
	}
	if !enqueue(client, payload) {
		room.evict(client)
	}
}

func (room *Room) evict(client *Client) {
	if _, ok := room.attached[client.id]; !ok {
		return
	}
	room.metrics.IncSlowConsumer()
	room.logger.Warn().Str("conn", client.id).Msg("dropping slow consumer")
	client.closeCode = websocket.CloseTryAgainLater
	room.detach(client)
}

func enqueue(client *Client, payload []byte) bool {
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}
