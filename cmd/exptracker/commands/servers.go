package commands

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/denislee/exptracker/internal/directory"
)

func init() {
	rootCmd.AddCommand(serversCmd)
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Lists the configured servers, their worlds and their request pacing.",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(cmd *cobra.Command, a *app, _ []string) error {
		t := newTable()
		t.AppendHeader(table.Row{"Server", "Worlds", "Min delay", "Fetch mode", "Timezone", "Tracked"})
		for _, id := range a.registry.IDs() {
			worlds, err := a.registry.Worlds(id)
			if err != nil {
				return err
			}
			pacing, err := a.registry.Pacing(id)
			if err != nil {
				return err
			}
			chars, err := a.store.List(cmd.Context(), directory.ListFilter{Server: id})
			if err != nil {
				return err
			}
			cfg := a.cfg.Servers[id]
			t.AppendRow(table.Row{id, strings.Join(worlds, ", "), pacing.MinDelay, cfg.FetchMode, cfg.Timezone, len(chars)})
		}
		t.Render()
		return nil
	}),
}
