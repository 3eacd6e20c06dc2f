package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/tabclose/internal/config"
	"github.com/majorcontext/tabclose/internal/daemon"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	Long: `Stop the background daemon. A pending timer is kept on disk and
resumes the next time the daemon starts; if it expired in the meantime the
tab is closed right away.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := daemon.Running(config.Home())
		if err != nil {
			return err
		}
		if client == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running.")
			return nil
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := client.Shutdown(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
