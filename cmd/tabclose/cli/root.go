// Package cli implements the tabclose command-line interface using Cobra.
// Commands talk to a background daemon that owns the close-tab timer.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/majorcontext/tabclose/internal/config"
	"github.com/majorcontext/tabclose/internal/log"
)

var (
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "tabclose",
	Short: "Close the active browser tab after a countdown or at a set time",
	Long: `tabclose closes the browser tab you are looking at once a timer runs out.

Set a countdown with "tabclose start 25m" or an end time with
"tabclose start --at 5:30PM". A background daemon keeps the timer running
after the command exits and across restarts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, _ := config.Load()
		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			DebugDir:      config.DebugDir(),
			RetentionDays: cfg.Debug.RetentionDays,
		}); err != nil {
			// Non-fatal: the default logger still works.
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		log.Close()
	},
}

// Execute runs the root command and reports any error to the user.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		reportError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
}
