package timer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/tabclose/internal/clock"
	"github.com/majorcontext/tabclose/internal/kv"
	"github.com/majorcontext/tabclose/internal/log"
	"github.com/majorcontext/tabclose/internal/schedule"
	"github.com/majorcontext/tabclose/internal/tabs"
)

type fakeTabs struct {
	mu     sync.Mutex
	active int // 0 means no active tab
	open   map[int]bool
	closed []int
}

func newFakeTabs(active int, open ...int) *fakeTabs {
	f := &fakeTabs{active: active, open: make(map[int]bool)}
	for _, id := range open {
		f.open[id] = true
	}
	return f
}

func (f *fakeTabs) setActive(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = id
	f.open[id] = true
}

func (f *fakeTabs) userCloses(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.open, id)
}

func (f *fakeTabs) ActiveTab(context.Context) (tabs.Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == 0 {
		return tabs.Tab{}, tabs.ErrNoActiveTab
	}
	return tabs.Tab{ID: f.active, URL: fmt.Sprintf("https://example.com/%d", f.active)}, nil
}

func (f *fakeTabs) CloseTab(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open[id] {
		return fmt.Errorf("%w: %d", tabs.ErrTabNotFound, id)
	}
	delete(f.open, id)
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeTabs) closedTabs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.closed...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *fakePublisher) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) count(kind EventKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (p *fakePublisher) last() Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return Event{}
	}
	return p.events[len(p.events)-1]
}

type failingNotifier struct{ calls int }

func (n *failingNotifier) Notify(context.Context, string, string) error {
	n.calls++
	return errors.New("no notification daemon")
}

type harness struct {
	clock    *clock.Fake
	kv       kv.Store
	sched    *schedule.Scheduler
	tabs     *fakeTabs
	pub      *fakePublisher
	notifier *failingNotifier
	coord    *Coordinator
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, store kv.Store, c *clock.Fake, host *fakeTabs) *harness {
	t.Helper()
	h := &harness{
		clock:    c,
		kv:       store,
		sched:    schedule.New(store, c),
		tabs:     host,
		pub:      &fakePublisher{},
		notifier: &failingNotifier{},
	}
	h.coord = New(Options{
		Store:     NewKVStore(store),
		Scheduler: h.sched,
		Tabs:      host,
		Notifier:  h.notifier,
		Publisher: h.pub,
		Clock:     c,
	})
	h.sched.SetHandler(h.coord.HandleWake)
	return h
}

func openKV(t *testing.T, dir string) kv.Store {
	t.Helper()
	store, err := kv.Open(kv.BackendSQLite, dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func setup(t *testing.T) *harness {
	t.Helper()
	return newHarness(t, openKV(t, t.TempDir()), clock.NewFake(epoch), newFakeTabs(7, 7))
}

func (h *harness) record(t *testing.T) *Record {
	t.Helper()
	rec, err := NewKVStore(h.kv).Load(context.Background())
	require.NoError(t, err)
	return rec
}

func TestStart_ThenGetStateIsActive(t *testing.T) {
	for _, d := range []time.Duration{time.Millisecond, time.Second, 15 * time.Minute, 23 * time.Hour} {
		t.Run(d.String(), func(t *testing.T) {
			h := setup(t)
			ctx := context.Background()

			rec, err := h.coord.Start(ctx, ModeCountdown, d)
			require.NoError(t, err)
			assert.Equal(t, 7, rec.TabID)
			assert.NotEmpty(t, rec.ID)

			st, err := h.coord.GetState(ctx)
			require.NoError(t, err)
			assert.True(t, st.Active)
			assert.Greater(t, st.Remaining, time.Duration(0))
			assert.LessOrEqual(t, st.Remaining, d)
			assert.Equal(t, ModeCountdown, st.Mode)
			assert.True(t, epoch.Add(d).Equal(st.ExpiresAt))
		})
	}
}

func TestStart_NoActiveTab(t *testing.T) {
	h := newHarness(t, openKV(t, t.TempDir()), clock.NewFake(epoch), newFakeTabs(0))
	ctx := context.Background()

	_, err := h.coord.Start(ctx, ModeCountdown, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, tabs.ErrNoActiveTab)

	assert.Nil(t, h.record(t), "failed start must not persist a timer")
	_, ok, err := h.sched.Lookup(ctx, WakeName)
	require.NoError(t, err)
	assert.False(t, ok)
}

// cancelingStore cancels the caller's context right after a save.
type cancelingStore struct {
	Store
	cancel context.CancelFunc
}

func (s cancelingStore) Save(ctx context.Context, rec Record) error {
	err := s.Store.Save(ctx, rec)
	s.cancel()
	return err
}

type brokenScheduler struct{ Scheduler }

func (brokenScheduler) Schedule(context.Context, string, time.Time, string) error {
	return errors.New("disk full")
}

func TestStart_CallerCanceledMidStart(t *testing.T) {
	h := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := New(Options{
		Store:     cancelingStore{Store: NewKVStore(h.kv), cancel: cancel},
		Scheduler: h.sched,
		Tabs:      h.tabs,
		Clock:     h.clock,
	})
	h.sched.SetHandler(coord.HandleWake)

	_, err := coord.Start(ctx, ModeCountdown, time.Minute)
	require.NoError(t, err)

	_, ok, err := h.sched.Lookup(context.Background(), WakeName)
	require.NoError(t, err)
	assert.True(t, ok, "a saved timer must have its wake-up")

	h.clock.Advance(time.Minute)
	assert.Equal(t, []int{7}, h.tabs.closedTabs())
	assert.Nil(t, h.record(t))
}

func TestStart_ScheduleFailureRollsBack(t *testing.T) {
	h := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := New(Options{
		Store:     cancelingStore{Store: NewKVStore(h.kv), cancel: cancel},
		Scheduler: brokenScheduler{h.sched},
		Tabs:      h.tabs,
		Clock:     h.clock,
	})

	_, err := coord.Start(ctx, ModeCountdown, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Nil(t, h.record(t), "an unscheduled timer must not stay persisted")
	st, err := coord.GetState(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Active)
}

func TestReset_CancelsPendingWake(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.coord.Start(ctx, ModeCountdown, time.Minute)
	require.NoError(t, err)
	require.NoError(t, h.coord.Reset(ctx))

	st, err := h.coord.GetState(ctx)
	require.NoError(t, err)
	assert.False(t, st.Active)
	assert.Nil(t, h.record(t))
	assert.False(t, h.coord.Ticking())

	h.clock.Advance(2 * time.Minute)
	assert.Empty(t, h.tabs.closedTabs(), "reset timer must never close its tab")
	assert.Equal(t, 0, h.pub.count(EventTimerComplete))
	assert.Equal(t, Event{Kind: EventStatusUpdate, Status: IdleStatus}, h.pub.last())
}

func TestReset_IsIdempotent(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	assert.NoError(t, h.coord.Reset(ctx), "reset with no timer")

	_, err := h.coord.Start(ctx, ModeCountdown, time.Minute)
	require.NoError(t, err)
	assert.NoError(t, h.coord.Reset(ctx))
	assert.NoError(t, h.coord.Reset(ctx))
}

func TestStart_LastStartWins(t *testing.T) {
	h := newHarness(t, openKV(t, t.TempDir()), clock.NewFake(epoch), newFakeTabs(1, 1))
	ctx := context.Background()

	first, err := h.coord.Start(ctx, ModeCountdown, 30*time.Second)
	require.NoError(t, err)

	h.tabs.setActive(2)
	second, err := h.coord.Start(ctx, ModeAbsoluteTime, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	h.clock.Advance(45 * time.Second)
	assert.Empty(t, h.tabs.closedTabs(), "first timer's expiry must not fire")

	h.clock.Advance(15 * time.Second)
	assert.Equal(t, []int{2}, h.tabs.closedTabs())
	assert.Equal(t, 1, h.pub.count(EventTimerComplete))
}

func TestWake_TabAlreadyClosed(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.coord.Start(ctx, ModeCountdown, time.Minute)
	require.NoError(t, err)
	h.tabs.userCloses(7)

	assert.NotPanics(t, func() { h.clock.Advance(time.Minute) })

	assert.Empty(t, h.tabs.closedTabs())
	assert.Nil(t, h.record(t), "state must be cleared even when the tab is gone")
	assert.Equal(t, 1, h.pub.count(EventTimerComplete))
	assert.Equal(t, 1, h.notifier.calls, "notification failure is ignored")
}

func TestStart_ZeroDurationExpiresImmediately(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.coord.Start(ctx, ModeCountdown, 0)
	require.NoError(t, err)

	st, err := h.coord.GetState(ctx)
	require.NoError(t, err)
	assert.False(t, st.Active, "expired timer reports inactive")
	assert.Empty(t, h.tabs.closedTabs(), "GetState never fires")

	h.clock.Advance(0)
	assert.Equal(t, []int{7}, h.tabs.closedTabs())
	assert.Nil(t, h.record(t))
}

func TestScenario_SixtySecondCountdown(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.coord.Start(ctx, ModeCountdown, 60*time.Second)
	require.NoError(t, err)

	h.clock.Advance(30 * time.Second)
	st, err := h.coord.GetState(ctx)
	require.NoError(t, err)
	require.True(t, st.Active)
	assert.Equal(t, 30*time.Second, st.Remaining)
	assert.Equal(t, Event{Kind: EventStatusUpdate, RemainingMS: 30_000}, h.pub.last())

	h.clock.Advance(30 * time.Second)
	assert.Equal(t, []int{7}, h.tabs.closedTabs())
	assert.Nil(t, h.record(t))
	assert.Equal(t, 1, h.pub.count(EventTimerComplete))
	assert.Equal(t, EventTimerComplete, h.pub.last().Kind)
	assert.False(t, h.coord.Ticking())

	h.clock.Advance(time.Hour)
	assert.Equal(t, 1, h.pub.count(EventTimerComplete), "timer_complete is emitted exactly once")
	assert.Equal(t, []int{7}, h.tabs.closedTabs())
}

func TestTicker_StopsWhenTimerGone(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	_, err := h.coord.Start(ctx, ModeCountdown, 3*time.Second)
	require.NoError(t, err)
	require.True(t, h.coord.Ticking())

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, 2, h.pub.count(EventStatusUpdate))

	// Remove the record behind the coordinator's back; the next tick sees
	// no timer and stops itself.
	require.NoError(t, NewKVStore(h.kv).Delete(ctx))
	h.clock.Advance(500 * time.Millisecond)
	h.clock.Advance(500 * time.Millisecond)
	assert.False(t, h.coord.Ticking())
}

func TestHandleWake_IgnoresStaleToken(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	rec, err := h.coord.Start(ctx, ModeCountdown, time.Second)
	require.NoError(t, err)
	h.clock.Advance(500 * time.Millisecond)

	h.coord.HandleWake(ctx, WakeName, "some-older-timer")
	h.coord.HandleWake(ctx, "somethingElse", rec.ID)
	assert.Empty(t, h.tabs.closedTabs())
	assert.NotNil(t, h.record(t))
}

func TestHandleWake_EarlyWakeReschedules(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	rec, err := h.coord.Start(ctx, ModeCountdown, time.Minute)
	require.NoError(t, err)
	require.NoError(t, h.sched.Cancel(ctx, WakeName))

	h.coord.HandleWake(ctx, WakeName, rec.ID)
	assert.Empty(t, h.tabs.closedTabs())

	reg, ok, err := h.sched.Lookup(ctx, WakeName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.ExpiresAt.Equal(reg.FireAt))

	h.clock.Advance(time.Minute)
	assert.Equal(t, []int{7}, h.tabs.closedTabs())
}

func TestHandleWake_NoTimerIsNoop(t *testing.T) {
	h := setup(t)
	h.coord.HandleWake(context.Background(), WakeName, "")
	assert.Empty(t, h.tabs.closedTabs())
	assert.Equal(t, 0, h.pub.count(EventTimerComplete))
}

func TestReconcile_ResumesAfterRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := openKV(t, dir)
	host := newFakeTabs(7, 7)

	before := newHarness(t, store, clock.NewFake(epoch), host)
	_, err := before.coord.Start(ctx, ModeCountdown, time.Minute)
	require.NoError(t, err)

	after := newHarness(t, store, clock.NewFake(epoch.Add(10*time.Second)), host)
	require.NoError(t, after.sched.Restore(ctx, WakeName))
	require.NoError(t, after.coord.Reconcile(ctx))
	assert.True(t, after.coord.Ticking(), "status tick resumes for a pending timer")

	st, err := after.coord.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Second, st.Remaining)

	after.clock.Advance(50 * time.Second)
	assert.Equal(t, []int{7}, host.closedTabs())
	assert.Equal(t, 1, after.pub.count(EventTimerComplete))
}

func TestReconcile_FiresTimerThatExpiredWhileDown(t *testing.T) {
	ctx := context.Background()
	store := openKV(t, t.TempDir())
	host := newFakeTabs(7, 7)

	before := newHarness(t, store, clock.NewFake(epoch), host)
	_, err := before.coord.Start(ctx, ModeCountdown, time.Minute)
	require.NoError(t, err)

	after := newHarness(t, store, clock.NewFake(epoch.Add(time.Hour)), host)
	require.NoError(t, after.sched.Restore(ctx, WakeName))
	require.NoError(t, after.coord.Reconcile(ctx))
	assert.False(t, after.coord.Ticking())

	after.clock.Advance(0)
	assert.Equal(t, []int{7}, host.closedTabs())
	assert.Nil(t, after.record(t))
}

func TestReconcile_ReregistersMissingWake(t *testing.T) {
	ctx := context.Background()
	store := openKV(t, t.TempDir())
	host := newFakeTabs(7, 7)

	before := newHarness(t, store, clock.NewFake(epoch), host)
	_, err := before.coord.Start(ctx, ModeCountdown, time.Minute)
	require.NoError(t, err)
	// Simulate a host that lost the wake-up registration.
	require.NoError(t, store.Delete(ctx, "alarm."+WakeName))

	after := newHarness(t, store, clock.NewFake(epoch.Add(5*time.Second)), host)
	require.NoError(t, after.sched.Restore(ctx, WakeName))
	require.NoError(t, after.coord.Reconcile(ctx))

	_, ok, err := after.sched.Lookup(ctx, WakeName)
	require.NoError(t, err)
	assert.True(t, ok)

	after.clock.Advance(55 * time.Second)
	assert.Equal(t, []int{7}, host.closedTabs())
}

func TestReconcile_NoTimerCancelsOrphanWake(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	require.NoError(t, h.sched.Schedule(ctx, WakeName, epoch.Add(time.Second), "orphan"))

	require.NoError(t, h.coord.Reconcile(ctx))

	_, ok, err := h.sched.Lookup(ctx, WakeName)
	require.NoError(t, err)
	assert.False(t, ok)
	h.clock.Advance(time.Minute)
	assert.Empty(t, h.tabs.closedTabs())
}

type undeletableStore struct{ Store }

func (undeletableStore) Delete(context.Context) error { return errors.New("read-only database") }

func TestReconcile_InactiveRecordDeleteFailureIsLogged(t *testing.T) {
	var stderr bytes.Buffer
	require.NoError(t, log.Init(log.Options{Stderr: &stderr}))
	defer log.Close()

	h := setup(t)
	ctx := context.Background()
	store := NewKVStore(h.kv)
	require.NoError(t, store.Save(ctx, Record{ID: "old", TabID: 7, ExpiresAt: epoch, Active: false}))
	require.NoError(t, h.sched.Schedule(ctx, WakeName, epoch.Add(time.Second), "old"))

	coord := New(Options{Store: undeletableStore{store}, Scheduler: h.sched, Tabs: h.tabs, Clock: h.clock})
	require.NoError(t, coord.Reconcile(ctx))

	assert.Contains(t, stderr.String(), "failed to delete inactive timer")
	assert.Contains(t, stderr.String(), "read-only database")
	_, ok, err := h.sched.Lookup(ctx, WakeName)
	require.NoError(t, err)
	assert.False(t, ok, "orphan wake-up is still canceled")
}

func TestHooks(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	var active, idle int
	h.coord.SetOnActive(func() { active++ })
	h.coord.SetOnIdle(func() { idle++ })

	_, err := h.coord.Start(ctx, ModeCountdown, time.Second)
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	require.NoError(t, h.coord.Reset(ctx))

	assert.Equal(t, 1, active)
	assert.Equal(t, 2, idle, "fire and reset both report idle")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeCountdown, m)

	m, err = ParseMode("absolute_time")
	require.NoError(t, err)
	assert.Equal(t, ModeAbsoluteTime, m)

	_, err = ParseMode("weekly")
	assert.Error(t, err)
}
