package internal

import (
	"testing"
	"time"
)

// typingClock replays keystrokes against the debouncer the way the TUI does:
// every Input arms an idle timer that hands its token back after
// TypingIdleTimeout.
type typingClock struct {
	debounce TypingDebounce
	timers   []typingTimer
	sent     []SignalType
}

type typingTimer struct {
	at    time.Duration
	token uint64
}

func (c *typingClock) input(at time.Duration) {
	c.fire(at)
	emit, token := c.debounce.Input()
	if emit {
		c.sent = append(c.sent, SignalTyping)
	}
	c.timers = append(c.timers, typingTimer{at: at + TypingIdleTimeout, token: token})
}

func (c *typingClock) submit(at time.Duration) {
	c.fire(at)
	if c.debounce.Submit() {
		c.sent = append(c.sent, SignalStopTyping)
	}
}

func (c *typingClock) fire(until time.Duration) {
	kept := c.timers[:0]
	for _, timer := range c.timers {
		if timer.at > until {
			kept = append(kept, timer)
			continue
		}
		if c.debounce.Expire(timer.token) {
			c.sent = append(c.sent, SignalStopTyping)
		}
	}
	c.timers = kept
}

func TestTypingBurstThenSilence(t *testing.T) {
	var clock typingClock
	clock.input(0)
	clock.input(300 * time.Millisecond)
	clock.input(600 * time.Millisecond)
	clock.fire(1600 * time.Millisecond)

	if len(clock.sent) != 2 || clock.sent[0] != SignalTyping || clock.sent[1] != SignalStopTyping {
		t.Fatalf("sent = %v, want [typing stopTyping]", clock.sent)
	}
	if clock.debounce.Typing() {
		t.Fatalf("debouncer should be idle")
	}
}

func TestTypingSubmitStopsOnce(t *testing.T) {
	var clock typingClock
	clock.input(0)
	clock.input(100 * time.Millisecond)
	clock.submit(200 * time.Millisecond)
	clock.fire(5 * time.Second)
	clock.submit(6 * time.Second)

	if len(clock.sent) != 2 || clock.sent[1] != SignalStopTyping {
		t.Fatalf("sent = %v, want [typing stopTyping]", clock.sent)
	}
}

func TestTypingNeverTwoStopsInARow(t *testing.T) {
	var clock typingClock
	for i := 0; i < 20; i++ {
		base := time.Duration(i) * 700 * time.Millisecond
		clock.input(base)
		if i%3 == 0 {
			clock.submit(base + 50*time.Millisecond)
		}
	}
	clock.fire(time.Minute)

	for i := 1; i < len(clock.sent); i++ {
		if clock.sent[i] == clock.sent[i-1] {
			t.Fatalf("consecutive %s at %d in %v", clock.sent[i], i, clock.sent)
		}
	}
	if clock.sent[len(clock.sent)-1] != SignalStopTyping {
		t.Fatalf("sequence should end idle: %v", clock.sent)
	}
}
