package internal

import (
	"encoding/json"
	"testing"
	"time"
)

func frameOf(t *testing.T, kind SignalType, data any) Frame {
	t.Helper()
	payload, err := encodeFrame(kind, data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return frame
}

func applyFrame(t *testing.T, conv *Conversation, kind SignalType, data any) []string {
	t.Helper()
	seen, err := conv.Apply(frameOf(t, kind, data))
	if err != nil {
		t.Fatalf("apply %s: %v", kind, err)
	}
	return seen
}

func textEnvelope(id, sender, author, text string) Envelope {
	return Envelope{
		ID:        id,
		Kind:      KindText,
		Author:    author,
		SenderID:  sender,
		Text:      &TextPayload{Text: text},
		CreatedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestConversationClassifiesBySenderID(t *testing.T) {
	conv := NewConversation()
	applyFrame(t, conv, SignalSelfID, "conn-me")

	// same display name, different connection: not mine
	seen := applyFrame(t, conv, SignalMessage, textEnvelope("m1", "conn-other", "Sam", "hi"))
	if len(seen) != 1 || seen[0] != "m1" {
		t.Fatalf("seen = %v, want [m1]", seen)
	}
	seen = applyFrame(t, conv, SignalMessage, textEnvelope("m2", "conn-me", "Sam", "hello"))
	if len(seen) != 0 {
		t.Fatalf("own envelope needs no receipt, got %v", seen)
	}

	entries := conv.Entries()
	if len(entries) != 2 || entries[0].Mine || !entries[1].Mine {
		t.Fatalf("unexpected classification %+v", entries)
	}
	if !entries[1].Delivered {
		t.Fatalf("echoed own envelope should be delivered")
	}
	if !entries[0].At.Equal(textEnvelope("", "", "", "").CreatedAt) {
		t.Fatalf("entry time should come from the envelope")
	}

	if again := applyFrame(t, conv, SignalMessage, textEnvelope("m1", "conn-other", "Sam", "hi")); len(again) != 0 {
		t.Fatalf("duplicate envelope returned receipts %v", again)
	}
	if len(conv.Entries()) != 2 {
		t.Fatalf("duplicate envelope was appended")
	}
}

func TestConversationKeepsPastSelfAfterReconnect(t *testing.T) {
	conv := NewConversation()
	applyFrame(t, conv, SignalSelfID, "conn-1")
	applyFrame(t, conv, SignalSelfID, "conn-2")
	if conv.SelfID() != "conn-2" {
		t.Fatalf("self id = %q", conv.SelfID())
	}
	if !conv.IsMine(textEnvelope("x", "conn-1", "Me", "old")) {
		t.Fatalf("envelope from an earlier connection should stay mine")
	}
	if conv.IsMine(textEnvelope("y", "", "Me", "anon")) {
		t.Fatalf("empty sender id is never mine")
	}
}

func TestConversationSeenReceipts(t *testing.T) {
	conv := NewConversation()
	applyFrame(t, conv, SignalSelfID, "conn-me")
	applyFrame(t, conv, SignalMessage, textEnvelope("m1", "conn-me", "Me", "ping"))

	applyFrame(t, conv, SignalSeen, SeenReceipt{MessageID: "m1", ViewerID: "conn-b"})
	applyFrame(t, conv, SignalSeen, SeenReceipt{MessageID: "m1", ViewerID: "conn-b"})
	applyFrame(t, conv, SignalSeen, SeenReceipt{MessageID: "m1", ViewerID: "conn-c"})
	applyFrame(t, conv, SignalSeen, SeenReceipt{MessageID: "unknown", ViewerID: "conn-c"})

	if got := len(conv.Entries()[0].SeenBy); got != 2 {
		t.Fatalf("seen by %d viewers, want 2", got)
	}
}

func TestConversationTypersAndRoster(t *testing.T) {
	conv := NewConversation()
	applyFrame(t, conv, SignalTyping, "Bob")
	applyFrame(t, conv, SignalTyping, "Bob")
	applyFrame(t, conv, SignalTyping, "Carol")
	if typers := conv.Typers(); len(typers) != 2 {
		t.Fatalf("typers = %v", typers)
	}
	applyFrame(t, conv, SignalStopTyping, "Bob")
	applyFrame(t, conv, SignalPresence, PresenceUpdate{Online: []string{"Alice", "Dave"}})
	if typers := conv.Typers(); len(typers) != 0 {
		t.Fatalf("typers after presence = %v", typers)
	}
	if roster := conv.Roster(); len(roster) != 2 || roster[1] != "Dave" {
		t.Fatalf("roster = %v", roster)
	}

	applyFrame(t, conv, SignalSystem, "Carol left")
	if entries := conv.Entries(); len(entries) != 1 || entries[0].Notice != "Carol left" {
		t.Fatalf("entries = %+v", entries)
	}
	if _, err := conv.Apply(Frame{Type: "bogus"}); err == nil {
		t.Fatalf("unknown frame should error")
	}
}

func TestConversationTrimsOldEntries(t *testing.T) {
	conv := NewConversation()
	applyFrame(t, conv, SignalSelfID, "conn-me")
	for i := 0; i < maxConversationEntries+10; i++ {
		conv.AddNotice("filler")
	}
	applyFrame(t, conv, SignalMessage, textEnvelope("last", "conn-me", "Me", "tail"))
	applyFrame(t, conv, SignalSeen, SeenReceipt{MessageID: "last", ViewerID: "conn-b"})

	entries := conv.Entries()
	if len(entries) != maxConversationEntries {
		t.Fatalf("entries = %d, want %d", len(entries), maxConversationEntries)
	}
	if last := entries[len(entries)-1]; last.Envelope == nil || len(last.SeenBy) != 1 {
		t.Fatalf("receipt lost after trim: %+v", last)
	}
}
