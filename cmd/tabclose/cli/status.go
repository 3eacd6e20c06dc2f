package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/tabclose/internal/daemon"
	"github.com/majorcontext/tabclose/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the time left before the tab closes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		st, err := client.State(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(cmd.OutOrStdout(), st)
		}
		fmt.Fprintln(cmd.OutOrStdout(), describeState(st))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func describeState(st *daemon.StateResponse) string {
	if !st.Active {
		return "No active timer."
	}
	line := fmt.Sprintf("Closing tab %d in %s", st.TabID, ui.Bold(ui.FormatRemaining(st.Remaining())))
	if at, err := time.Parse(time.RFC3339, st.ExpiresAt); err == nil {
		line += " " + ui.Dim(fmt.Sprintf("(at %s, %s)", ui.FormatClock(at.Local()), st.Mode))
	}
	return line
}
