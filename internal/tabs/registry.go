package tabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/majorcontext/tabclose/internal/kv"
	"github.com/majorcontext/tabclose/internal/log"
)

// page is the subset of playwright.Page the tab host relies on.
type page interface {
	URL() string
	Title() (string, error)
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
	Close(options ...playwright.PageCloseOptions) error
	IsClosed() bool
}

// focusCheck reports whether a page's document is visible and focused.
const focusCheck = `() => ({ visible: document.visibilityState === "visible", focused: document.hasFocus() })`

// registryKey holds the persisted id table.
const registryKey = "tabs.ids"

// targetFunc returns a browser-wide identity for a page that outlives the
// playwright connection, such as the CDP target id.
type targetFunc func(p page) (string, error)

type registryState struct {
	Next int            `json:"next"`
	IDs  map[string]int `json:"ids"`
}

// registry hands out integer ids to pages. Ids are keyed by page target and
// persisted, so a restarted daemon attached to the same browser resolves a
// stored id to the same page. Ids are never reused.
type registry struct {
	mu      sync.Mutex
	store   kv.Store // nil keeps ids in memory only
	target  targetFunc
	loaded  bool
	state   registryState
	targets map[page]string
}

func newRegistry(store kv.Store, target targetFunc) *registry {
	return &registry{
		store:   store,
		target:  target,
		state:   registryState{IDs: make(map[string]int)},
		targets: make(map[page]string),
	}
}

func (r *registry) loadLocked(ctx context.Context) error {
	if r.loaded || r.store == nil {
		r.loaded = true
		return nil
	}
	data, ok, err := r.store.Get(ctx, registryKey)
	if err != nil {
		return fmt.Errorf("reading tab ids: %w", err)
	}
	if ok {
		var st registryState
		if err := json.Unmarshal(data, &st); err != nil {
			log.Warn("discarding unreadable tab ids", "error", err)
		} else {
			if st.IDs == nil {
				st.IDs = make(map[string]int)
			}
			r.state = st
		}
	}
	r.loaded = true
	return nil
}

func (r *registry) saveLocked(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	data, err := json.Marshal(r.state)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, registryKey, data); err != nil {
		return fmt.Errorf("saving tab ids: %w", err)
	}
	return nil
}

// targetLocked returns p's target key. A page whose target cannot be read
// gets a key local to this process.
func (r *registry) targetLocked(p page) string {
	if key, ok := r.targets[p]; ok {
		return key
	}
	key, err := r.target(p)
	if err != nil || key == "" {
		log.Debug("page target unavailable, id will not survive restart", "url", p.URL(), "error", err)
		key = fmt.Sprintf("local:%p", p)
	}
	r.targets[p] = key
	return key
}

// idFor returns p's id, assigning and persisting the next one on first sight.
func (r *registry) idFor(ctx context.Context, p page) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(ctx); err != nil {
		return 0, err
	}
	key := r.targetLocked(p)
	if id, ok := r.state.IDs[key]; ok {
		return id, nil
	}
	r.state.Next++
	r.state.IDs[key] = r.state.Next
	if err := r.saveLocked(ctx); err != nil {
		return 0, err
	}
	return r.state.Next, nil
}

// find returns the open page among pages carrying id.
func (r *registry) find(ctx context.Context, id int, pages []page) (page, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(ctx); err != nil {
		return nil, false, err
	}
	for _, p := range pages {
		if p.IsClosed() {
			continue
		}
		if got, ok := r.state.IDs[r.targetLocked(p)]; ok && got == id {
			return p, true, nil
		}
	}
	return nil, false, nil
}

// prune forgets pages that are closed or no longer listed.
func (r *registry) prune(ctx context.Context, pages []page) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(ctx); err != nil {
		return err
	}
	live := make(map[string]bool, len(pages))
	seen := make(map[page]bool, len(pages))
	for _, p := range pages {
		if !p.IsClosed() {
			live[r.targetLocked(p)] = true
			seen[p] = true
		}
	}
	for p := range r.targets {
		if !seen[p] {
			delete(r.targets, p)
		}
	}
	changed := false
	for key := range r.state.IDs {
		if !live[key] {
			delete(r.state.IDs, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return r.saveLocked(ctx)
}

func (r *registry) describe(ctx context.Context, p page) (Tab, error) {
	id, err := r.idFor(ctx, p)
	if err != nil {
		return Tab{}, err
	}
	title, _ := p.Title()
	return Tab{ID: id, URL: p.URL(), Title: title}, nil
}

// cdpTarget reads the CDP target id of a playwright page.
func cdpTarget(p page) (string, error) {
	pp, ok := p.(playwright.Page)
	if !ok {
		return "", errors.New("not a playwright page")
	}
	sess, err := pp.Context().NewCDPSession(pp)
	if err != nil {
		return "", fmt.Errorf("opening cdp session: %w", err)
	}
	defer sess.Detach()

	res, err := sess.Send("Target.getTargetInfo", map[string]interface{}{})
	if err != nil {
		return "", fmt.Errorf("reading target info: %w", err)
	}
	m, _ := res.(map[string]interface{})
	info, _ := m["targetInfo"].(map[string]interface{})
	id, _ := info["targetId"].(string)
	if id == "" {
		return "", errors.New("target info has no targetId")
	}
	return id, nil
}

// pickActive returns the first visible and focused page, else the last
// visible one.
func pickActive(pages []page) (page, error) {
	var lastVisible page
	for _, p := range pages {
		if p.IsClosed() {
			continue
		}
		res, err := p.Evaluate(focusCheck)
		if err != nil {
			continue
		}
		m, ok := res.(map[string]interface{})
		if !ok {
			continue
		}
		visible, _ := m["visible"].(bool)
		focused, _ := m["focused"].(bool)
		if !visible {
			continue
		}
		if focused {
			return p, nil
		}
		lastVisible = p
	}
	if lastVisible == nil {
		return nil, ErrNoActiveTab
	}
	return lastVisible, nil
}
