package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/tabclose/internal/clockface"
	"github.com/majorcontext/tabclose/internal/ui"
)

var suggestCount int

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest round end times for --at",
	Long: `Print the next quarter-hour end times that are at least ten minutes
away, ready to pass to "tabclose start --at".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		now := time.Now()
		times := clockface.QuickTimes(now, suggestCount)
		out := cmd.OutOrStdout()
		if jsonOut {
			list := make([]string, len(times))
			for i, t := range times {
				list[i] = t.Format(time.RFC3339)
			}
			return writeJSON(out, list)
		}
		for _, t := range times {
			fmt.Fprintf(out, "%-9s %s\n", ui.FormatClock(t), ui.Dim("in "+ui.FormatRemaining(t.Sub(now))))
		}
		return nil
	},
}

func init() {
	suggestCmd.Flags().IntVarP(&suggestCount, "count", "n", 3, "number of suggestions")
	rootCmd.AddCommand(suggestCmd)
}
