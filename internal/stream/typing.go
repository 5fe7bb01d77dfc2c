package stream

import (
	"sync"
	"time"
)

// Typing refresh cadences per mode. Tool mode releases itself after
// typingToolTimeout when no further tool activity arrives.
const (
	typingIdleInterval = 2500 * time.Millisecond
	typingToolInterval = 1500 * time.Millisecond
	typingToolTimeout  = 12 * time.Second
)

type typingMode int

const (
	typingOff typingMode = iota
	typingIdle
	typingTool
)

// typingStarter launches a typing loop on a topic and returns its stop
// function.
type typingStarter func(threadID int, interval time.Duration) (stop func())

// typingState owns at most one live typing handle per session, switching
// cadence with the activity mode.
type typingState struct {
	mu      sync.Mutex
	start   typingStarter
	mode    typingMode
	stop    func()
	timeout *time.Timer
}

func newTypingState(start typingStarter) *typingState {
	return &typingState{start: start}
}

// Set transitions to mode, restarting the loop when the cadence changes.
// Tool mode arms the inactivity timeout; repeated tool activity re-arms it.
func (t *typingState) Set(threadID int, mode typingMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if mode == typingOff {
		t.releaseLocked()
		return
	}
	if mode == t.mode {
		if mode == typingTool {
			t.armTimeoutLocked(threadID)
		}
		return
	}
	t.releaseLocked()
	interval := typingIdleInterval
	if mode == typingTool {
		interval = typingToolInterval
	}
	t.stop = t.start(threadID, interval)
	t.mode = mode
	if mode == typingTool {
		t.armTimeoutLocked(threadID)
	}
}

// Release stops the loop. Safe to call repeatedly and on every terminal
// event path.
func (t *typingState) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked()
}

func (t *typingState) releaseLocked() {
	if t.timeout != nil {
		t.timeout.Stop()
		t.timeout = nil
	}
	if t.stop != nil {
		t.stop()
		t.stop = nil
	}
	t.mode = typingOff
}

func (t *typingState) armTimeoutLocked(threadID int) {
	if t.timeout != nil {
		t.timeout.Stop()
	}
	t.timeout = time.AfterFunc(typingToolTimeout, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.mode == typingTool {
			t.releaseLocked()
		}
	})
}
