package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/majorcontext/tabclose/internal/config"
	"github.com/majorcontext/tabclose/internal/daemon"
	"github.com/majorcontext/tabclose/internal/tabs"
	"github.com/majorcontext/tabclose/internal/ui"
)

var errZeroDuration = errors.New("duration must be greater than 0")

// connect returns a client for the daemon, starting it if needed.
func connect() (*daemon.Client, error) {
	client, err := daemon.EnsureRunning(config.Home())
	if err != nil {
		return nil, fmt.Errorf("starting daemon: %w", err)
	}
	return client, nil
}

// parseCountdown accepts Go durations ("25m", "1h30m") or a bare number of
// minutes ("25").
func parseCountdown(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var d time.Duration
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		d = time.Duration(n * float64(time.Minute))
	} else {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: use 25m, 1h30m or a number of minutes", s)
		}
		d = parsed
	}
	// The daemon receives whole milliseconds.
	if d.Milliseconds() <= 0 {
		return 0, errZeroDuration
	}
	return d, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func reportError(err error) {
	switch {
	case errors.Is(err, tabs.ErrNoActiveTab):
		ui.Error("No active tab found.")
	case errors.Is(err, errZeroDuration):
		ui.Error("Please set a time greater than 0.")
	default:
		ui.Error(err.Error())
	}
}

func msDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
