package timer

import (
	"sync"
	"time"

	"github.com/majorcontext/tabclose/internal/clock"
)

// Ticker calls fn every interval until Stop or until fn returns false.
// Each call re-arms a one-shot clock timer, so a slow fn never overlaps
// itself.
type Ticker struct {
	mu       sync.Mutex
	clock    clock.Clock
	interval time.Duration
	fn       func() bool
	timer    clock.Timer
	gen      uint64
	running  bool
}

// NewTicker creates a stopped ticker.
func NewTicker(c clock.Clock, interval time.Duration, fn func() bool) *Ticker {
	return &Ticker{clock: c, interval: interval, fn: fn}
}

// Start (re)starts the ticker. The first call to fn happens one interval
// from now.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.running = true
	t.armLocked()
}

// Stop halts the ticker. Stopping a stopped ticker is a no-op.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Running reports whether the ticker is armed.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Ticker) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.running = false
	t.gen++
}

func (t *Ticker) armLocked() {
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.interval, func() { t.tick(gen) })
}

func (t *Ticker) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	keep := t.fn()

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || !t.running {
		return
	}
	if !keep {
		t.timer = nil
		t.running = false
		return
	}
	t.armLocked()
}
