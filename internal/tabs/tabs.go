// Package tabs resolves and closes browser tabs through playwright-go.
//
// The daemon either attaches to a browser the user already runs (Chromium
// started with --remote-debugging-port, reached over CDP) or launches its own
// Chromium. Each page seen is given a small integer id, keyed by its CDP
// target id and kept in the daemon's store, so the id a timer record holds
// still names the same page after the daemon restarts. Ids are never reused.
package tabs

import "errors"

var (
	// ErrNoActiveTab is returned when no page is visible to target.
	ErrNoActiveTab = errors.New("no active tab")
	// ErrTabNotFound is returned when closing an id that no longer maps to an open page.
	ErrTabNotFound = errors.New("tab not found")
)

// Tab describes one open page.
type Tab struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}
