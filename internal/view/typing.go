package view

import (
	"sync"
	"time"

	"github.com/roach88/backchannel/internal/engine"
)

// typingLease auto-clears a typing indicator after a quiet period.
//
// Every keystroke re-arms the timer; when it fires with no further
// keystrokes, the expiry callback submits clear_typing. This is a
// liveness mechanism, not an overlay: the 8-second staleness window on
// the read side hides indicators even if the clear never lands.
type typingLease struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Arm schedules expire after d, replacing any earlier schedule.
func (l *typingLease) Arm(d time.Duration, expire func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(d, expire)
}

// Cancel drops the pending expiry, if any.
func (l *typingLease) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// StartTyping upserts the caller's typing indicator and arms the lease:
// if no further keystroke arrives within the re-arm interval, the
// session clears the indicator on its own.
func (s *Session) StartTyping(channelID, threadID int64) {
	s.engine.Submit(s.identity, engine.SetTyping{ChannelID: channelID, ThreadID: threadID})
	s.typing.Arm(s.rearm, func() {
		s.engine.Submit(s.identity, engine.ClearTyping{})
	})
}

// StopTyping clears the caller's typing indicator immediately.
func (s *Session) StopTyping() {
	s.typing.Cancel()
	s.engine.Submit(s.identity, engine.ClearTyping{})
}
