package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/tabclose/internal/timer"
)

var resetCmd = &cobra.Command{
	Use:     "reset",
	Aliases: []string{"cancel"},
	Short:   "Cancel the running timer and keep the tab open",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := client.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), timer.IdleStatus)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
