package internal

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"telechat/internal/blob"
)

// MessageKind discriminates envelope payloads.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindVideo MessageKind = "video"
	KindFile  MessageKind = "file"
	KindAudio MessageKind = "audio"
)

// IsMedia reports whether the kind carries a MediaPayload.
func (k MessageKind) IsMedia() bool {
	switch k {
	case KindImage, KindVideo, KindFile, KindAudio:
		return true
	}
	return false
}

// KindForMime maps a mime type onto the media kind a client would pick.
func KindForMime(mimeType string) MessageKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	default:
		return KindFile
	}
}

type TextPayload struct {
	Text string `json:"text"`
}

type MediaPayload struct {
	Locator  string `json:"locator"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
}

// Envelope is one broadcast chat message. Exactly one of Text and Media is
// set, matching Kind. Envelopes are never mutated after they are built.
type Envelope struct {
	ID        string        `json:"id"`
	Kind      MessageKind   `json:"kind"`
	Author    string        `json:"author"`
	SenderID  string        `json:"senderId"`
	Text      *TextPayload  `json:"text,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Identity is the server-side view of who authored a signal.
type Identity struct {
	ConnectionID string
	DisplayName  string
}

// EnvelopeBuilder stamps ids, identity and server time onto new envelopes.
type EnvelopeBuilder struct {
	now   func() time.Time
	newID func() string
}

func NewEnvelopeBuilder() *EnvelopeBuilder {
	return &EnvelopeBuilder{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Text builds a text envelope. It returns false for blank text.
func (b *EnvelopeBuilder) Text(author Identity, text string) (Envelope, bool) {
	text = sanitizeText(text)
	if strings.TrimSpace(text) == "" {
		return Envelope{}, false
	}
	env := b.stamp(author, KindText)
	env.Text = &TextPayload{Text: text}
	return env, true
}

// Media builds a media envelope from a client descriptor. An inline payload
// becomes a data URL locator. It returns false when the descriptor names no
// content or an unknown kind.
func (b *EnvelopeBuilder) Media(author Identity, media MediaDescriptor) (Envelope, bool) {
	mimeType := strings.TrimSpace(media.MimeType)
	kind := media.Kind
	if kind == "" {
		kind = KindForMime(mimeType)
	}
	if !kind.IsMedia() {
		return Envelope{}, false
	}
	locator := strings.TrimSpace(media.URL)
	if locator == "" {
		locator = inlineLocator(strings.TrimSpace(media.Data), mimeType)
	}
	if locator == "" {
		return Envelope{}, false
	}
	fileName := sanitizeFileName(media.FileName)
	if fileName == "" {
		fileName = string(kind)
	}
	env := b.stamp(author, kind)
	env.Media = &MediaPayload{
		Locator:  locator,
		FileName: fileName,
		MimeType: mimeType,
	}
	return env, true
}

func (b *EnvelopeBuilder) stamp(author Identity, kind MessageKind) Envelope {
	return Envelope{
		ID:        b.newID(),
		Kind:      kind,
		Author:    author.DisplayName,
		SenderID:  author.ConnectionID,
		CreatedAt: b.now(),
	}
}

// inlineLocator turns inline media into a data URL. It accepts whatever
// /upload accepts and re-encodes bare base64 with the standard alphabet.
func inlineLocator(data, mimeType string) string {
	if data == "" {
		return ""
	}
	raw, _, err := blob.DecodeData(data)
	if err != nil {
		return ""
	}
	if strings.HasPrefix(data, "data:") {
		return data
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)
}
