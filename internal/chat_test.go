package internal

import (
	"errors"
	"testing"
)

func TestDecodeInbound(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want inbound
	}{
		{"join", `{"type":"join","data":"Alice"}`, joinSignal{Name: "Alice"}},
		{"join without name", `{"type":"join"}`, joinSignal{}},
		{"message", `{"type":"message","data":{"text":"hi"}}`, textSignal{Text: "hi"}},
		{"media", `{"type":"media-message","data":{"kind":"image","fileName":"a.png","mimeType":"image/png","url":"/uploads/a.png"}}`,
			mediaSignal{Media: MediaDescriptor{Kind: KindImage, FileName: "a.png", MimeType: "image/png", URL: "/uploads/a.png"}}},
		{"typing", `{"type":"typing"}`, typingSignal{}},
		{"stop typing", `{"type":"stopTyping","data":null}`, stopTypingSignal{}},
		{"seen", `{"type":"seen","data":"msg-1"}`, seenSignal{MessageID: "msg-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeInbound([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeInboundRejects(t *testing.T) {
	if _, err := decodeInbound([]byte(`{"type":"self-id","data":"x"}`)); !errors.Is(err, errClientOnly) {
		t.Fatalf("self-id from client: err = %v", err)
	}
	if _, err := decodeInbound([]byte(`{"type":"presence"}`)); !errors.Is(err, errClientOnly) {
		t.Fatalf("presence from client: err = %v", err)
	}
	if _, err := decodeInbound([]byte(`{"type":"nope"}`)); !errors.Is(err, errUnknownSignal) {
		t.Fatalf("unknown type: err = %v", err)
	}
	for _, raw := range []string{`{`, `{"type":"message","data":"plain"}`, `{"type":"seen","data":{"id":1}}`} {
		if _, err := decodeInbound([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestEncodeFrameOmitsEmptyData(t *testing.T) {
	payload, err := encodeFrame(SignalTyping, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(payload) != `{"type":"typing"}` {
		t.Fatalf("payload = %s", payload)
	}
}
