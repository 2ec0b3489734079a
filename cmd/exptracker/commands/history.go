package commands

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/denislee/exptracker/internal/directory"
	"github.com/denislee/exptracker/internal/snapshot"
	"github.com/denislee/exptracker/internal/xp"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 30, "number of days to show, 0 for all")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <server> <world> <name>",
	Short: "Shows a character's daily experience history.",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		adapter, world, err := a.registry.Resolve(args[0], args[1])
		if err != nil {
			return err
		}
		c, err := a.store.Lookup(cmd.Context(), adapter.ID(), world, args[2])
		if errors.Is(err, directory.ErrNotFound) {
			return fmt.Errorf("%s is not tracked on %s/%s", args[2], adapter.ID(), world)
		}
		if err != nil {
			return err
		}
		rows, err := a.store.Snapshots(cmd.Context(), c.ID, historyLimit)
		if err != nil {
			return err
		}

		t := newTable()
		t.SetTitle("%s (%s/%s) level %d, %s", c.Name, c.Server, c.World, c.Level, c.Recovery.Phase())
		t.AppendHeader(table.Row{"Date", "Level", "Experience", "Deaths", "Source"})
		// Rows without a level get one walked back from the current level;
		// those are marked with "~".
		var total int64
		running := xp.Total(c.Level)
		for _, s := range rows {
			level := fmt.Sprintf("~%d", xp.LevelFor(running))
			if s.Level > 0 {
				level = fmt.Sprint(s.Level)
			}
			t.AppendRow(table.Row{snapshot.DateKey(s.Date), level, humanize.Comma(s.Experience), s.Deaths, s.Source})
			total += s.Experience
			running -= s.Experience
		}
		t.AppendFooter(table.Row{"Total", "", humanize.Comma(total), "", ""})
		t.Render()

		fmt.Printf("Next level needs %s experience.\n", humanize.Comma(xp.ToNext(c.Level)))
		if len(rows) > 0 {
			avg := total / int64(len(rows))
			if days := xp.DaysToLevel(c.Level, c.Level+1, avg); days > 0 {
				fmt.Printf("At this pace, level %d in about %d day(s) and level %d in 30 days.\n",
					c.Level+1, days, xp.Project(c.Level, avg, 30))
			}
		}
		fmt.Printf("Last scrape: %s\n", a.store.LastScrapeTime(cmd.Context()))
		return nil
	}),
}
