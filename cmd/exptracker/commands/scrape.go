package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/denislee/exptracker/internal/snapshot"
)

var scrapeRefresh bool

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeRefresh, "refresh", false, "record the scrape as a refresh instead of a manual scrape")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <server> <world> <name>",
	Short: "Scrapes one character now, registering it if the page exists.",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		source := snapshot.SourceManual
		if scrapeRefresh {
			source = snapshot.SourceRefresh
		}
		out, err := a.engine.ScrapeCharacter(cmd.Context(), args[0], args[1], args[2], source)
		if err != nil {
			if out.Err != nil && out.Err.RetryAfter > 0 {
				return fmt.Errorf("%w (retry in %s)", err, out.Err.RetryAfter)
			}
			return err
		}

		c := out.Character
		t := newTable()
		t.AppendRows([]table.Row{
			{"Character", fmt.Sprintf("%s (#%d)", c.Name, c.ID)},
			{"Server / World", c.Server + " / " + c.World},
			{"Level", c.Level},
			{"Vocation", c.Vocation},
			{"Guild", c.Guild},
			{"Exp today", humanize.Comma(out.Today.Experience)},
			{"Total exp for level", humanize.Comma(out.TotalExperience)},
			{"Rows", fmt.Sprintf("%d new, %d updated", out.Inserted, out.Updated)},
			{"Phase", out.Phase},
			{"Next scrape", humanize.Time(c.Recovery.NextScrapeAt)},
		})
		t.Render()
		return nil
	}),
}
