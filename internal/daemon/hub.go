package daemon

import (
	"sync"

	"github.com/majorcontext/tabclose/internal/log"
	"github.com/majorcontext/tabclose/internal/timer"
)

// subscriberBuffer bounds how far a slow watcher may fall behind before
// events are dropped for it.
const subscriberBuffer = 16

// Hub fans timer events out to every connected watcher. Publishing never
// blocks and is a no-op when nobody is subscribed.
type Hub struct {
	mu   sync.Mutex
	subs map[chan timer.Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan timer.Event]struct{})}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it.
func (h *Hub) Subscribe() (<-chan timer.Event, func()) {
	ch := make(chan timer.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish implements timer.Publisher.
func (h *Hub) Publish(ev timer.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Debug("dropping event for slow watcher", "kind", ev.Kind)
		}
	}
}

// Subscribers reports how many watchers are connected.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
