package internal

import "time"

// TypingIdleTimeout is how long the input must stay quiet before the client
// reports that it stopped typing.
const TypingIdleTimeout = 800 * time.Millisecond

// TypingDebounce is the client-side typing state machine. It holds no timer
// itself: every Input returns a token, and the caller arms a timer that
// hands the token back to Expire. Only the most recent token can end the
// Typing state, so earlier timers fire harmlessly.
type TypingDebounce struct {
	typing     bool
	generation uint64
}

// Input records a keystroke. emit is true on the Idle to Typing transition,
// when a typing signal must be sent.
func (d *TypingDebounce) Input() (emit bool, token uint64) {
	d.generation++
	emit = !d.typing
	d.typing = true
	return emit, d.generation
}

// Expire handles an idle timer firing and reports whether a stopTyping
// signal must be sent.
func (d *TypingDebounce) Expire(token uint64) bool {
	if !d.typing || token != d.generation {
		return false
	}
	d.typing = false
	return true
}

// Submit forces the Idle state when a message is sent. It reports whether a
// stopTyping signal must be sent; an idle debouncer sends nothing, so peers
// never see two stops in a row.
func (d *TypingDebounce) Submit() bool {
	d.generation++
	if !d.typing {
		return false
	}
	d.typing = false
	return true
}

func (d *TypingDebounce) Typing() bool {
	return d.typing
}
