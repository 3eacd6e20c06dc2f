package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/tabclose/internal/clockface"
	"github.com/majorcontext/tabclose/internal/daemon"
	"github.com/majorcontext/tabclose/internal/timer"
	"github.com/majorcontext/tabclose/internal/ui"
)

var startAt string

var startCmd = &cobra.Command{
	Use:   "start [duration]",
	Short: "Close the active tab after a countdown or at a clock time",
	Long: `Start a timer that closes the browser tab that is active right now.

The duration is a Go duration (25m, 1h30m, 90s) or a number of minutes.
With --at the tab closes at the next occurrence of that clock time, in
12-hour (3:30PM) or 24-hour (15:30) form.

Starting a timer replaces any timer already running.`,
	Example: `  tabclose start 25m
  tabclose start 1h2m3s
  tabclose start --at 5:30PM`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startAt, "at", "", "close the tab at this clock time (3:30PM or 15:30)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	req, target, err := buildStartRequest(args, startAt, time.Now())
	if err != nil {
		return err
	}

	client, err := connect()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := client.Start(ctx, req); err != nil {
		return err
	}

	if jsonOut {
		return writeJSON(cmd.OutOrStdout(), req)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Tab closes in %s (at %s)\n",
		ui.OKTag(), ui.Bold(ui.FormatRemaining(req.Duration())), ui.FormatClock(target))
	return nil
}

// buildStartRequest turns command arguments into a daemon request and the
// wall-clock time it should fire.
func buildStartRequest(args []string, at string, now time.Time) (daemon.StartRequest, time.Time, error) {
	switch {
	case at != "" && len(args) > 0:
		return daemon.StartRequest{}, time.Time{}, errors.New("give either a duration or --at, not both")
	case at != "":
		target, err := clockface.Resolve(at, now)
		if err != nil {
			return daemon.StartRequest{}, time.Time{}, err
		}
		ms := target.Sub(now).Milliseconds()
		if ms <= 0 {
			return daemon.StartRequest{}, time.Time{}, errZeroDuration
		}
		return daemon.StartRequest{
			Mode:       string(timer.ModeAbsoluteTime),
			DurationMS: ms,
			TargetTime: target.Format(time.RFC3339),
		}, target, nil
	case len(args) == 1:
		d, err := parseCountdown(args[0])
		if err != nil {
			return daemon.StartRequest{}, time.Time{}, err
		}
		return daemon.StartRequest{
			Mode:       string(timer.ModeCountdown),
			DurationMS: d.Milliseconds(),
		}, now.Add(d), nil
	default:
		return daemon.StartRequest{}, time.Time{}, errors.New("a duration or --at is required")
	}
}
