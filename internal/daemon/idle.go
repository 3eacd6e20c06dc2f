package daemon

import (
	"sync"
	"time"
)

// IdleTimer shuts the daemon down once no close-tab timer has been pending
// for the configured duration. The coordinator drives it: a started or
// resumed timer calls Cancel, so the daemon never exits while a tab is
// waiting to be closed; a reset or fired timer calls Reset to begin the
// quiet period. A zero duration disables it, leaving the daemon up until
// an explicit shutdown.
type IdleTimer struct {
	duration time.Duration
	callback func()
	timer    *time.Timer
	mu       sync.Mutex
}

// NewIdleTimer creates a stopped idle timer. Nothing fires until the first
// Reset.
func NewIdleTimer(duration time.Duration, callback func()) *IdleTimer {
	return &IdleTimer{
		duration: duration,
		callback: callback,
	}
}

// Reset starts or restarts the quiet period.
func (t *IdleTimer) Reset() {
	if t.duration <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.duration, t.callback)
}

// Cancel stops the quiet period without firing, while a timer is pending.
func (t *IdleTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
