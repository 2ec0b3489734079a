package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sweepCmd, toggleCmd)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Suspends active characters without a snapshot inside the stale window.",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(cmd *cobra.Command, a *app, _ []string) error {
		n, err := a.engine.SweepStale(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("Suspended %d stale character(s).\n", n)
		return nil
	}),
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <character-id>",
	Short: "Suspends an active character or reactivates a suspended one.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid character id %q", args[0])
		}
		active, err := a.engine.ToggleRecovery(cmd.Context(), id)
		if err != nil {
			return err
		}
		if active {
			fmt.Printf("Character %d is active and due now.\n", id)
		} else {
			fmt.Printf("Character %d is suspended.\n", id)
		}
		return nil
	}),
}
