package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/majorcontext/tabclose/internal/clock"
	"github.com/majorcontext/tabclose/internal/log"
	"github.com/majorcontext/tabclose/internal/schedule"
	"github.com/majorcontext/tabclose/internal/tabs"
)

// WakeName is the single wake-up registration the coordinator uses.
const WakeName = "closeTabTimer"

// IdleStatus is pushed when a timer is reset.
const IdleStatus = "No active timer. Tab remains open."

// DefaultTickInterval is how often status updates are pushed.
const DefaultTickInterval = time.Second

const (
	notifyTitle   = "Tab Closer Timer"
	notifyMessage = "Time's up! Closing tab."
)

// Store persists the single timer record. Load returns nil, nil when absent.
type Store interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context) error
}

// Scheduler is a durable named wake-up facility.
type Scheduler interface {
	Schedule(ctx context.Context, name string, at time.Time, token string) error
	Cancel(ctx context.Context, name string) error
	Lookup(ctx context.Context, name string) (schedule.Registration, bool, error)
}

// TabHost resolves and closes tabs.
type TabHost interface {
	ActiveTab(ctx context.Context) (tabs.Tab, error)
	CloseTab(ctx context.Context, id int) error
}

// Notifier shows a best-effort user notification.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Publisher pushes events to listeners. Publishing with nobody listening
// is a no-op.
type Publisher interface {
	Publish(ev Event)
}

// Options wires a Coordinator. Notifier and Publisher may be nil.
type Options struct {
	Store        Store
	Scheduler    Scheduler
	Tabs         TabHost
	Notifier     Notifier
	Publisher    Publisher
	Clock        clock.Clock
	TickInterval time.Duration
}

// Coordinator owns the single timer. All methods are serialized.
type Coordinator struct {
	mu       sync.Mutex
	store    Store
	sched    Scheduler
	tabs     TabHost
	notifier Notifier
	pub      Publisher
	clock    clock.Clock
	ticker   *Ticker

	onActive func() // called when a timer becomes pending
	onIdle   func() // called when no timer is pending any more
}

// New creates a coordinator. Call Reconcile once at startup and route the
// scheduler's wake-ups to HandleWake.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		store:    opts.Store,
		sched:    opts.Scheduler,
		tabs:     opts.Tabs,
		notifier: opts.Notifier,
		pub:      opts.Publisher,
		clock:    opts.Clock,
	}
	if c.clock == nil {
		c.clock = clock.System
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.pub == nil {
		c.pub = nopPublisher{}
	}
	interval := opts.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	c.ticker = NewTicker(c.clock, interval, c.pushStatus)
	return c
}

// SetOnActive sets a callback invoked when a timer starts or is resumed.
func (c *Coordinator) SetOnActive(fn func()) { c.onActive = fn }

// SetOnIdle sets a callback invoked after a timer is reset or fired.
func (c *Coordinator) SetOnIdle(fn func()) { c.onIdle = fn }

// Start replaces any pending timer with one that closes the currently
// active tab after d. A non-positive d still creates a timer; it expires
// immediately.
func (c *Coordinator) Start(ctx context.Context, mode Mode, d time.Duration) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tab, err := c.tabs.ActiveTab(ctx)
	if err != nil {
		log.Error("no active tab for timer", "error", err)
		return Record{}, fmt.Errorf("resolving active tab: %w", err)
	}
	if d <= 0 {
		log.Warn("timer started with non-positive duration", "duration", d)
	}

	// From here on the record and its wake-up are written, or rolled back,
	// together even if the caller goes away.
	pctx := context.WithoutCancel(ctx)

	if err := c.sched.Cancel(pctx, WakeName); err != nil {
		log.Warn("failed to cancel previous wake-up", "error", err)
	}

	now := c.clock.Now()
	rec := Record{
		ID:        uuid.NewString(),
		TabID:     tab.ID,
		ExpiresAt: now.Add(d),
		Mode:      mode,
		Active:    true,
		CreatedAt: now,
	}
	if err := c.store.Save(pctx, rec); err != nil {
		log.Error("failed to save timer", "error", err)
		return Record{}, fmt.Errorf("saving timer: %w", err)
	}
	if err := c.sched.Schedule(pctx, WakeName, rec.ExpiresAt, rec.ID); err != nil {
		log.Error("failed to schedule wake-up", "error", err)
		if derr := c.store.Delete(pctx); derr != nil {
			log.Error("failed to roll back unscheduled timer", "error", derr)
			return Record{}, errors.Join(fmt.Errorf("scheduling wake-up: %w", err), fmt.Errorf("deleting timer: %w", derr))
		}
		return Record{}, fmt.Errorf("scheduling wake-up: %w", err)
	}

	c.ticker.Start()
	log.SetTimerID(rec.ID)
	log.Info("timer started",
		"tab_id", rec.TabID,
		"tab_url", tab.URL,
		"mode", rec.Mode,
		"expires_at", rec.ExpiresAt.Format(time.RFC3339))
	if c.onActive != nil {
		c.onActive()
	}
	return rec, nil
}

// Reset discards any pending timer. It succeeds when there is nothing to
// reset.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.clearLocked(ctx, Event{Kind: EventStatusUpdate, Status: IdleStatus})
	log.Info("timer reset")
	return err
}

// GetState reports the pending timer. A timer whose expiry has passed is
// reported inactive but not fired here; firing belongs to HandleWake.
func (c *Coordinator) GetState(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(ctx)
}

func (c *Coordinator) stateLocked(ctx context.Context) (State, error) {
	rec, err := c.store.Load(ctx)
	if err != nil {
		log.Error("failed to read timer", "error", err)
		return State{}, fmt.Errorf("reading timer: %w", err)
	}
	if rec == nil || !rec.Active {
		return State{}, nil
	}
	remaining := rec.ExpiresAt.Sub(c.clock.Now())
	if remaining <= 0 {
		return State{}, nil
	}
	return State{
		Active:    true,
		TabID:     rec.TabID,
		ExpiresAt: rec.ExpiresAt,
		Mode:      rec.Mode,
		Remaining: remaining,
	}, nil
}

// HandleWake is the scheduler callback. It closes the timer's tab once the
// timer has expired, then clears all timer state.
func (c *Coordinator) HandleWake(ctx context.Context, name, token string) {
	if name != WakeName {
		log.Debug("ignoring unknown wake-up", "name", name)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.store.Load(ctx)
	if err != nil {
		log.Error("failed to read timer on wake-up", "error", err)
		return
	}
	if rec == nil {
		log.Debug("wake-up with no pending timer")
		return
	}
	if token != "" && rec.ID != token {
		log.Debug("ignoring wake-up for superseded timer", "token", token, "current", rec.ID)
		return
	}
	if rec.ExpiresAt.After(c.clock.Now()) {
		log.Warn("wake-up before expiry, rescheduling", "expires_at", rec.ExpiresAt.Format(time.RFC3339))
		if err := c.sched.Schedule(ctx, WakeName, rec.ExpiresAt, rec.ID); err != nil {
			log.Error("failed to reschedule wake-up", "error", err)
		}
		return
	}

	c.fireLocked(ctx, *rec)
}

func (c *Coordinator) fireLocked(ctx context.Context, rec Record) {
	if err := c.notifier.Notify(ctx, notifyTitle, notifyMessage); err != nil {
		log.Debug("could not show notification", "error", err)
	}

	if err := c.tabs.CloseTab(ctx, rec.TabID); err != nil {
		if errors.Is(err, tabs.ErrTabNotFound) {
			log.Info("timer tab already closed", "tab_id", rec.TabID)
		} else {
			log.Warn("error closing tab", "tab_id", rec.TabID, "error", err)
		}
	}

	if err := c.clearLocked(ctx, Event{Kind: EventTimerComplete}); err != nil {
		log.Error("failed to clear fired timer", "error", err)
	}
	log.Info("timer completed, tab closed", "tab_id", rec.TabID)
}

// clearLocked cancels the wake-up, deletes the record, stops the ticker and
// publishes ev. Every step runs even if an earlier one fails.
func (c *Coordinator) clearLocked(ctx context.Context, ev Event) error {
	var errs []error
	if err := c.sched.Cancel(ctx, WakeName); err != nil {
		log.Error("failed to cancel wake-up", "error", err)
		errs = append(errs, err)
	}
	if err := c.store.Delete(ctx); err != nil {
		log.Error("failed to delete timer", "error", err)
		errs = append(errs, fmt.Errorf("deleting timer: %w", err))
	}
	c.ticker.Stop()
	c.pub.Publish(ev)
	log.ClearTimerID()
	if c.onIdle != nil {
		c.onIdle()
	}
	return errors.Join(errs...)
}

// Reconcile restores coordinator state after a daemon restart. Run it after
// the scheduler has restored its persisted wake-ups.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("reading timer: %w", err)
	}
	if rec == nil || !rec.Active {
		if rec != nil {
			if err := c.store.Delete(ctx); err != nil {
				log.Error("failed to delete inactive timer", "error", err)
			}
		}
		if err := c.sched.Cancel(ctx, WakeName); err != nil {
			return fmt.Errorf("canceling orphan wake-up: %w", err)
		}
		if c.onIdle != nil {
			c.onIdle()
		}
		return nil
	}

	reg, ok, err := c.sched.Lookup(ctx, WakeName)
	if err != nil {
		return fmt.Errorf("looking up wake-up: %w", err)
	}
	if !ok || reg.Token != rec.ID {
		if err := c.sched.Schedule(ctx, WakeName, rec.ExpiresAt, rec.ID); err != nil {
			return fmt.Errorf("re-registering wake-up: %w", err)
		}
		log.Info("re-registered wake-up for persisted timer", "expires_at", rec.ExpiresAt.Format(time.RFC3339))
	}

	log.SetTimerID(rec.ID)
	if rec.ExpiresAt.After(c.clock.Now()) {
		c.ticker.Start()
		log.Info("resumed timer from previous session", "tab_id", rec.TabID)
	}
	if c.onActive != nil {
		c.onActive()
	}
	return nil
}

// pushStatus is the ticker body. It stops the ticker once no timer is
// pending.
func (c *Coordinator) pushStatus() bool {
	st, err := c.GetState(context.Background())
	if err != nil {
		return true
	}
	if !st.Active {
		return false
	}
	c.pub.Publish(Event{Kind: EventStatusUpdate, RemainingMS: st.Remaining.Milliseconds()})
	return true
}

// Ticking reports whether status updates are being pushed.
func (c *Coordinator) Ticking() bool { return c.ticker.Running() }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
