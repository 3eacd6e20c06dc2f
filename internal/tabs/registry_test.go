package tabs

import (
	"context"
	"errors"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/tabclose/internal/kv"
)

type fakePage struct {
	target   string
	url      string
	visible  bool
	focused  bool
	closed   bool
	evalErr error
}

func (p *fakePage) URL() string            { return p.url }
func (p *fakePage) Title() (string, error) { return "title of " + p.url, nil }
func (p *fakePage) IsClosed() bool         { return p.closed }

func (p *fakePage) Evaluate(string, ...interface{}) (interface{}, error) {
	if p.evalErr != nil {
		return nil, p.evalErr
	}
	return map[string]interface{}{"visible": p.visible, "focused": p.focused}, nil
}

func fakeTarget(p page) (string, error) {
	fp := p.(*fakePage)
	if fp.target == "" {
		return "", errors.New("no target")
	}
	return fp.target, nil
}

func (p *fakePage) Close(...playwright.PageCloseOptions) error {
	p.closed = true
	return nil
}

func TestPickActive(t *testing.T) {
	hidden := &fakePage{url: "https://hidden"}
	visibleA := &fakePage{url: "https://a", visible: true}
	visibleB := &fakePage{url: "https://b", visible: true}
	focused := &fakePage{url: "https://focused", visible: true, focused: true}
	broken := &fakePage{url: "https://broken", evalErr: errors.New("target closed")}
	closed := &fakePage{url: "https://closed", visible: true, focused: true, closed: true}

	tests := []struct {
		name  string
		pages []page
		want  page
		err   error
	}{
		{"focused wins", []page{visibleA, focused, visibleB}, focused, nil},
		{"last visible without focus", []page{visibleA, hidden, visibleB}, visibleB, nil},
		{"closed and broken skipped", []page{closed, broken, visibleA}, visibleA, nil},
		{"nothing visible", []page{hidden, broken}, nil, ErrNoActiveTab},
		{"no pages", nil, nil, ErrNoActiveTab},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickActive(tt.pages)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Same(t, tt.want, got)
		})
	}
}

func openStore(t *testing.T, dir string) kv.Store {
	t.Helper()
	store, err := kv.Open(kv.BackendSQLite, dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func mustID(t *testing.T, r *registry, p page) int {
	t.Helper()
	id, err := r.idFor(context.Background(), p)
	require.NoError(t, err)
	return id
}

func TestRegistry_StableIDs(t *testing.T) {
	r := newRegistry(nil, fakeTarget)
	a := &fakePage{target: "T-A", url: "https://a"}
	b := &fakePage{target: "T-B", url: "https://b"}

	assert.Equal(t, 1, mustID(t, r, a))
	assert.Equal(t, 2, mustID(t, r, b))
	assert.Equal(t, 1, mustID(t, r, a), "id must be stable for the page's lifetime")

	tab, err := r.describe(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, Tab{ID: 2, URL: "https://b", Title: "title of https://b"}, tab)
}

func TestRegistry_FindAndPrune(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(nil, fakeTarget)
	a := &fakePage{target: "T-A", url: "https://a"}
	b := &fakePage{target: "T-B", url: "https://b"}
	pages := []page{a, b}
	idA, idB := mustID(t, r, a), mustID(t, r, b)

	p, ok, err := r.find(ctx, idB, pages)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, b, p)

	b.closed = true
	_, ok, err = r.find(ctx, idB, pages)
	require.NoError(t, err)
	assert.False(t, ok, "closed page must not be found")

	require.NoError(t, r.prune(ctx, pages))
	c := &fakePage{target: "T-C", url: "https://c"}
	assert.Equal(t, 3, mustID(t, r, c), "ids are never reused")
	assert.Equal(t, idA, mustID(t, r, a))
}

func TestRegistry_IDsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	before := newRegistry(openStore(t, dir), fakeTarget)
	a := &fakePage{target: "T-A", url: "https://a"}
	b := &fakePage{target: "T-B", url: "https://b"}
	mustID(t, before, a)
	timerTab := mustID(t, before, b)
	require.Equal(t, 2, timerTab)

	// A restarted daemon reconnects and sees new page objects, in a
	// different order, for the same browser targets.
	after := newRegistry(openStore(t, dir), fakeTarget)
	b2 := &fakePage{target: "T-B", url: "https://b"}
	a2 := &fakePage{target: "T-A", url: "https://a"}
	pages := []page{a2, b2}
	require.NoError(t, after.prune(ctx, pages))

	p, ok, err := after.find(ctx, timerTab, pages)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, b2, p, "stored id must resolve to the same target")

	fresh := &fakePage{target: "T-N", url: "https://new"}
	assert.Equal(t, 3, mustID(t, after, fresh), "ids issued before the restart are not reused")
}

func TestRegistry_UnknownTargetAfterRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	before := newRegistry(openStore(t, dir), fakeTarget)
	timerTab := mustID(t, before, &fakePage{target: "T-A", url: "https://a"})

	// The browser was replaced: none of the old targets exist.
	after := newRegistry(openStore(t, dir), fakeTarget)
	other := &fakePage{target: "T-X", url: "https://x"}
	pages := []page{other}
	require.NoError(t, after.prune(ctx, pages))
	mustID(t, after, other)

	_, ok, err := after.find(ctx, timerTab, pages)
	require.NoError(t, err)
	assert.False(t, ok, "a stale id must not match a different page")
}

func TestRegistry_PageWithoutTargetStaysLocal(t *testing.T) {
	r := newRegistry(nil, fakeTarget)
	a := &fakePage{url: "https://a"}
	b := &fakePage{url: "https://b"}

	assert.Equal(t, 1, mustID(t, r, a))
	assert.Equal(t, 2, mustID(t, r, b))
	assert.Equal(t, 1, mustID(t, r, a))
}
