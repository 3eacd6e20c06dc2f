// Package clockface turns wall-clock input such as "3:30 PM" into timer
// durations and suggests round end times.
package clockface

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTime is returned for input that is not a clock time.
var ErrInvalidTime = errors.New("invalid time")

var layouts = []string{
	"3:04PM",
	"3:04 PM",
	"3PM",
	"3 PM",
	"15:04",
}

// Resolve returns the next instant at or after now whose wall-clock time
// matches input, in now's location. A time at or before now means tomorrow.
func Resolve(input string, now time.Time) (time.Time, error) {
	s := strings.ToUpper(strings.TrimSpace(input))
	s = strings.ReplaceAll(strings.ReplaceAll(s, "A.M.", "AM"), "P.M.", "PM")

	for _, layout := range layouts {
		clock, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		target := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
		if !target.After(now) {
			target = target.AddDate(0, 0, 1)
		}
		return target, nil
	}
	return time.Time{}, fmt.Errorf("%w %q: use 3:30PM or 15:30", ErrInvalidTime, input)
}

const (
	quickStep = 15 * time.Minute
	quickLead = 10 * time.Minute
)

// QuickTimes returns n successive quarter-hour end times, the first being
// the earliest quarter hour at least ten minutes after now.
func QuickTimes(now time.Time, n int) []time.Time {
	earliest := now.Add(quickLead)
	first := earliest.Truncate(time.Minute)
	if first.Before(earliest) {
		first = first.Add(time.Minute)
	}
	if rem := first.Minute() % 15; rem != 0 {
		first = first.Add(time.Duration(15-rem) * time.Minute)
	}

	out := make([]time.Time, n)
	for i := range out {
		out[i] = first.Add(time.Duration(i) * quickStep)
	}
	return out
}
