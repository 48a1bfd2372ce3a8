package internal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SignalType names every frame that travels over the websocket.
type SignalType string

const (
	SignalJoin         SignalType = "join"
	SignalSelfID       SignalType = "self-id"
	SignalMessage      SignalType = "message"
	SignalMediaMessage SignalType = "media-message"
	SignalTyping       SignalType = "typing"
	SignalStopTyping   SignalType = "stopTyping"
	SignalSeen         SignalType = "seen"
	SignalSystem       SignalType = "system"
	SignalPresence     SignalType = "presence"
)

// Frame is the json envelope both sides exchange: {"type": ..., "data": ...}.
type Frame struct {
	Type SignalType      `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TextRequest is the client payload for a text message.
type TextRequest struct {
	Text string `json:"text"`
}

// MediaDescriptor is the client payload for a media message. Exactly one of
// Data (inline base64 or data URL) and URL (pre-uploaded locator) is expected.
type MediaDescriptor struct {
	Kind     MessageKind `json:"kind"`
	FileName string      `json:"fileName"`
	MimeType string      `json:"mimeType"`
	Data     string      `json:"data,omitempty"`
	URL      string      `json:"url,omitempty"`
}

// SeenReceipt is relayed to peers when a viewer has rendered a message.
type SeenReceipt struct {
	MessageID string `json:"messageId"`
	ViewerID  string `json:"viewerId"`
}

// PresenceUpdate carries the sorted display names of everyone online.
type PresenceUpdate struct {
	Online []string `json:"online"`
}

var (
	errUnknownSignal = errors.New("unknown signal type")
	errClientOnly    = errors.New("signal may only be sent by the server")
)

// inbound is the closed set of signals the router accepts from a session.
type inbound interface {
	inboundType() SignalType
}

type joinSignal struct{ Name string }
type textSignal struct{ Text string }
type mediaSignal struct{ Media MediaDescriptor }
type typingSignal struct{}
type stopTypingSignal struct{}
type seenSignal struct{ MessageID string }

// throttledSignal never arrives from the wire; the read pump raises it when a
// session exceeds its message budget so the router can answer privately.
type throttledSignal struct{}

func (joinSignal) inboundType() SignalType       { return SignalJoin }
func (textSignal) inboundType() SignalType       { return SignalMessage }
func (mediaSignal) inboundType() SignalType      { return SignalMediaMessage }
func (typingSignal) inboundType() SignalType     { return SignalTyping }
func (stopTypingSignal) inboundType() SignalType { return SignalStopTyping }
func (seenSignal) inboundType() SignalType       { return SignalSeen }
func (throttledSignal) inboundType() SignalType  { return SignalSystem }

// decodeInbound parses one client frame into its typed signal.
func decodeInbound(payload []byte) (inbound, error) {
	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch frame.Type {
	case SignalJoin:
		var name string
		if len(frame.Data) > 0 && string(frame.Data) != "null" {
			if err := json.Unmarshal(frame.Data, &name); err != nil {
				return nil, fmt.Errorf("decode join: %w", err)
			}
		}
		return joinSignal{Name: name}, nil
	case SignalMessage:
		var req TextRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		return textSignal{Text: req.Text}, nil
	case SignalMediaMessage:
		var media MediaDescriptor
		if err := json.Unmarshal(frame.Data, &media); err != nil {
			return nil, fmt.Errorf("decode media-message: %w", err)
		}
		return mediaSignal{Media: media}, nil
	case SignalTyping:
		return typingSignal{}, nil
	case SignalStopTyping:
		return stopTypingSignal{}, nil
	case SignalSeen:
		var id string
		if err := json.Unmarshal(frame.Data, &id); err != nil {
			return nil, fmt.Errorf("decode seen: %w", err)
		}
		return seenSignal{MessageID: id}, nil
	case SignalSelfID, SignalSystem, SignalPresence:
		return nil, fmt.Errorf("%s: %w", frame.Type, errClientOnly)
	default:
		return nil, fmt.Errorf("%q: %w", frame.Type, errUnknownSignal)
	}
}

// encodeFrame marshals a typed payload into a wire frame.
func encodeFrame(kind SignalType, data any) ([]byte, error) {
	frame := Frame{Type: kind}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		frame.Data = raw
	}
	return json.Marshal(frame)
}
