// Package schedule implements durable named wake-ups. Each registration is
// persisted before it is armed so a restarted daemon can re-arm it with
// Restore; a registration whose instant passed while the daemon was down
// fires as soon as it is restored.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/majorcontext/tabclose/internal/clock"
	"github.com/majorcontext/tabclose/internal/kv"
	"github.com/majorcontext/tabclose/internal/log"
)

const keyPrefix = "alarm."

// Handler is invoked once when a registration fires.
type Handler func(ctx context.Context, name, token string)

// Registration is the persisted form of a wake-up.
type Registration struct {
	Name   string    `json:"name"`
	Token  string    `json:"token"`
	FireAt time.Time `json:"fire_at"`
}

type armed struct {
	reg   Registration
	timer clock.Timer
	gen   uint64
}

// Scheduler keeps at most one wake-up per name.
type Scheduler struct {
	mu      sync.Mutex
	store   kv.Store
	clock   clock.Clock
	handler Handler
	armed   map[string]*armed
	gen     uint64
}

// New creates a scheduler persisting into store.
func New(store kv.Store, c clock.Clock) *Scheduler {
	if c == nil {
		c = clock.System
	}
	return &Scheduler{
		store: store,
		clock: c,
		armed: make(map[string]*armed),
	}
}

// SetHandler sets the callback run when a wake-up fires.
func (s *Scheduler) SetHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Schedule registers (or replaces) the wake-up called name to fire at at.
func (s *Scheduler) Schedule(ctx context.Context, name string, at time.Time, token string) error {
	reg := Registration{Name: name, Token: token, FireAt: at}
	data, err := json.Marshal(reg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Put(ctx, keyPrefix+name, data); err != nil {
		return fmt.Errorf("persisting wake-up %s: %w", name, err)
	}
	s.armLocked(reg)
	log.Debug("wake-up scheduled", "name", name, "fire_at", at.Format(time.RFC3339), "token", token)
	return nil
}

// Cancel removes the wake-up called name. Canceling a missing wake-up is
// not an error.
func (s *Scheduler) Cancel(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked(name)
	if err := s.store.Delete(ctx, keyPrefix+name); err != nil {
		return fmt.Errorf("removing wake-up %s: %w", name, err)
	}
	return nil
}

// Lookup returns the persisted registration for name.
func (s *Scheduler) Lookup(ctx context.Context, name string) (Registration, bool, error) {
	data, ok, err := s.store.Get(ctx, keyPrefix+name)
	if err != nil || !ok {
		return Registration{}, false, err
	}
	var reg Registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return Registration{}, false, fmt.Errorf("decoding wake-up %s: %w", name, err)
	}
	return reg, true, nil
}

// Restore re-arms the persisted registrations for names. Names already armed
// in this process are left alone.
func (s *Scheduler) Restore(ctx context.Context, names ...string) error {
	for _, name := range names {
		reg, ok, err := s.Lookup(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		s.mu.Lock()
		if _, exists := s.armed[name]; !exists {
			s.armLocked(reg)
			log.Info("wake-up restored", "name", name, "fire_at", reg.FireAt.Format(time.RFC3339))
		}
		s.mu.Unlock()
	}
	return nil
}

// Armed reports whether a wake-up called name is armed in this process.
func (s *Scheduler) Armed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.armed[name]
	return ok
}

func (s *Scheduler) armLocked(reg Registration) {
	s.disarmLocked(reg.Name)
	s.gen++
	gen := s.gen
	d := reg.FireAt.Sub(s.clock.Now())
	a := &armed{reg: reg, gen: gen}
	a.timer = s.clock.AfterFunc(d, func() { s.fire(reg.Name, gen) })
	s.armed[reg.Name] = a
}

func (s *Scheduler) disarmLocked(name string) {
	if a, ok := s.armed[name]; ok {
		a.timer.Stop()
		delete(s.armed, name)
	}
}

// fire runs on the timer goroutine. A fire whose registration was replaced
// or canceled after the timer started is dropped.
func (s *Scheduler) fire(name string, gen uint64) {
	ctx := context.Background()

	s.mu.Lock()
	a, ok := s.armed[name]
	if !ok || a.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.armed, name)
	if err := s.store.Delete(ctx, keyPrefix+name); err != nil {
		log.Warn("failed to remove fired wake-up", "name", name, "error", err)
	}
	handler := s.handler
	s.mu.Unlock()

	log.Debug("wake-up fired", "name", name, "token", a.reg.Token)
	if handler != nil {
		handler(ctx, name, a.reg.Token)
	}
}
