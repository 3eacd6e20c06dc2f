package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/tabclose/internal/ui"
)

var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "List the browser's open tabs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		list, err := client.Tabs(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No open tabs.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, ui.Bold("ID")+"\t"+ui.Bold("TITLE")+"\t"+ui.Bold("URL"))
		for _, t := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\n", t.ID, t.Title, ui.Dim(t.URL))
		}
		return w.Flush()
	},
}

var openCmd = &cobra.Command{
	Use:   "open <url>",
	Short: "Open a URL in a new tab and focus it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		tab, err := client.OpenTab(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return writeJSON(cmd.OutOrStdout(), tab)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Opened tab %d: %s\n", ui.OKTag(), tab.ID, tab.URL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tabsCmd)
	rootCmd.AddCommand(openCmd)
}
