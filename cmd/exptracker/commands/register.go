package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(registerCmd)
}

var registerCmd = &cobra.Command{
	Use:   "register <server> <world> <name>",
	Short: "Adds a character to the directory without scraping it.",
	Args:  cobra.ExactArgs(3),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		c, created, err := a.engine.Register(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Registered %s on %s/%s as #%d.\n", c.Name, c.Server, c.World, c.ID)
		} else {
			fmt.Printf("%s on %s/%s is already tracked as #%d.\n", c.Name, c.Server, c.World, c.ID)
		}
		return nil
	}),
}
