package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/majorcontext/tabclose/internal/timer"
	"github.com/majorcontext/tabclose/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live countdown until the tab closes",
	Long: `Follow the running timer. The countdown updates every tick and the
command exits when the tab is closed or the timer is reset.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	client, err := connect()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := client.State(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !st.Active {
		fmt.Fprintln(out, "No active timer.")
		return nil
	}

	r := newCountdownRenderer(out, isTerminal(out))
	r.remaining(st.RemainingMS)
	err = client.Watch(ctx, r.handle)
	r.finish()
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// countdownRenderer prints watch output. On a terminal the countdown line is
// redrawn in place; otherwise each update is its own line.
type countdownRenderer struct {
	w       io.Writer
	inPlace bool
	drawn   bool
}

func newCountdownRenderer(w io.Writer, inPlace bool) *countdownRenderer {
	return &countdownRenderer{w: w, inPlace: inPlace}
}

// handle consumes one event and reports whether to keep watching.
func (r *countdownRenderer) handle(ev timer.Event) bool {
	switch ev.Kind {
	case timer.EventTimerComplete:
		r.line(ui.OKTag() + " Time's up! Tab closed.")
		return false
	case timer.EventStatusUpdate:
		if ev.Status != "" {
			r.line(ev.Status)
			return false
		}
		r.remaining(ev.RemainingMS)
	}
	return true
}

func (r *countdownRenderer) remaining(ms int64) {
	text := "Time remaining: " + ui.Bold(ui.FormatRemaining(msDuration(ms)))
	if r.inPlace {
		fmt.Fprintf(r.w, "\r\033[K%s", text)
		r.drawn = true
		return
	}
	fmt.Fprintln(r.w, text)
}

// line prints a final message on its own line.
func (r *countdownRenderer) line(s string) {
	r.finish()
	fmt.Fprintln(r.w, s)
}

func (r *countdownRenderer) finish() {
	if r.drawn {
		fmt.Fprintln(r.w)
		r.drawn = false
	}
}
