package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/denislee/exptracker/internal/scrape"
)

var runRetries bool

func init() {
	runCmd.Flags().BoolVar(&runRetries, "retries", false, "only retry due characters with a failure streak")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs one scheduled batch over every due character and prints the report.",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(cmd *cobra.Command, a *app, _ []string) error {
		run := a.engine.RunScheduledBatch
		if runRetries {
			run = a.engine.RunRetryPass
		}
		report, err := run(cmd.Context(), time.Now())
		if err != nil {
			return err
		}

		servers := make([]string, 0, len(report.Servers))
		for s := range report.Servers {
			servers = append(servers, s)
		}
		sort.Strings(servers)

		t := newTable()
		t.SetTitle("Run %s", report.RunID)
		t.AppendHeader(table.Row{"Server", "Due", "Succeeded", "Failed", "Skipped"})
		for _, s := range servers {
			l := report.Servers[s]
			t.AppendRow(table.Row{s, l.Due, l.Succeeded, l.Failed, l.Skipped})
		}
		t.AppendFooter(table.Row{"Total", report.Due, report.Succeeded, report.Failed, report.Skipped})
		t.Render()

		kinds := make([]string, 0, len(report.Failures))
		for kind := range report.Failures {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Printf("%s: %d\n", kind, report.Failures[scrape.ErrorKind(kind)])
		}
		if report.TimedOut {
			fmt.Println("Run timed out; skipped characters stay due.")
		}
		return nil
	}),
}
