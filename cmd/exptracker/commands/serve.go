package commands

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/denislee/exptracker/internal/config"
	"github.com/denislee/exptracker/internal/jobs"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the daily batch, the retry pass and the stale sweep until interrupted.",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(cmd *cobra.Command, a *app, _ []string) error {
		hour, minute, err := config.ParseClock(a.cfg.RunAt)
		if err != nil {
			return err
		}

		log.Printf("[I] [Main] Serving. Daily batch at %s %s, retry pass every %s.", a.cfg.RunAt, a.cfg.Location, a.cfg.RetryPassInterval)
		return jobs.Run(cmd.Context(), a.cfg.Location,
			jobs.Job{
				Name: "Daily Batch",
				Spec: jobs.Daily(hour, minute),
				Func: func(ctx context.Context) {
					if _, err := a.engine.RunScheduledBatch(ctx, time.Now()); err != nil {
						log.Printf("[E] [Main] Scheduled batch failed: %v", err)
					}
				},
			},
			jobs.Job{
				Name: "Retry Pass",
				Spec: jobs.Every(a.cfg.RetryPassInterval),
				Func: func(ctx context.Context) {
					if _, err := a.engine.RunRetryPass(ctx, time.Now()); err != nil {
						log.Printf("[E] [Main] Retry pass failed: %v", err)
					}
				},
			},
			jobs.Job{
				Name: "Stale Sweep",
				Spec: jobs.Daily(0, 5),
				Func: func(ctx context.Context) {
					if _, err := a.engine.SweepStale(ctx, time.Now()); err != nil {
						log.Printf("[E] [Main] Stale sweep failed: %v", err)
					}
				},
				RunAtStart: true,
			},
		)
	}),
}
