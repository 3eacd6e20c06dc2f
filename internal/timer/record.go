// Package timer implements the coordinator that owns the single pending
// close-tab timer: it persists the timer, schedules its wake-up, closes the
// tab when the wake-up fires and reports state to the CLI.
package timer

import (
	"fmt"
	"time"
)

// Mode records how the user expressed the timer. It does not affect firing.
type Mode string

const (
	ModeCountdown    Mode = "countdown"
	ModeAbsoluteTime Mode = "absolute_time"
)

// ParseMode accepts the wire names; empty means countdown.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeCountdown:
		return ModeCountdown, nil
	case ModeAbsoluteTime:
		return ModeAbsoluteTime, nil
	default:
		return "", fmt.Errorf("unknown timer mode %q", s)
	}
}

// Record is the persisted timer. At most one exists.
type Record struct {
	ID        string    `json:"id"`
	TabID     int       `json:"tab_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Mode      Mode      `json:"mode"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// State is what GetState reports.
type State struct {
	Active    bool
	TabID     int
	ExpiresAt time.Time
	Mode      Mode
	Remaining time.Duration
}

// EventKind names a push event.
type EventKind string

const (
	EventStatusUpdate  EventKind = "status_update"
	EventTimerComplete EventKind = "timer_complete"
)

// Event is pushed to whoever is watching the daemon.
type Event struct {
	Kind        EventKind `json:"kind"`
	RemainingMS int64     `json:"remaining_ms,omitempty"`
	Status      string    `json:"status,omitempty"`
}
