package commands

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/denislee/exptracker/internal/config"
	"github.com/denislee/exptracker/internal/directory"
	"github.com/denislee/exptracker/internal/engine"
	"github.com/denislee/exptracker/internal/notify"
	"github.com/denislee/exptracker/internal/recovery"
	"github.com/denislee/exptracker/internal/servers"
	"github.com/denislee/exptracker/internal/snapshot"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "exptracker",
	Short: "exptracker scrapes character profiles from game servers and keeps a daily experience history.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before the environment")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds everything a command needs. Commands that do not post to
// Discord leave notifier nil.
type app struct {
	cfg      *config.Config
	registry *servers.Registry
	store    *directory.Store
	engine   *engine.Engine
	notifier *notify.Discord
}

func openApp(ctx context.Context, withNotifier bool) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	merge, err := snapshot.ParseMergePolicy(cfg.HistoryMerge)
	if err != nil {
		return nil, err
	}
	store, err := directory.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: store, registry: servers.NewRegistry(ctx, cfg.Servers)}
	opts := engine.Options{
		Registry:   a.registry,
		Directory:  store,
		Reconciler: snapshot.NewReconciler(merge),
		Machine: recovery.NewMachine(recovery.Policy{
			Threshold:   cfg.ErrorThreshold,
			Interval:    cfg.ScrapeInterval,
			StaleWindow: cfg.StaleWindow,
		}),
		RunTimeout: cfg.RunTimeout,
	}
	if withNotifier {
		d, err := notify.NewDiscord(cfg.DiscordToken, cfg.DiscordChannelIDs)
		if err != nil {
			log.Printf("[W] [Main] Discord notifications disabled: %v", err)
		}
		if d != nil {
			a.notifier = d
			opts.Notifier = d
		}
	}
	a.engine = engine.New(opts)
	return a, nil
}

func (a *app) Close() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			log.Printf("[W] [Main] Error closing Discord session: %v", err)
		}
	}
	a.registry.Close()
	if err := a.store.Close(); err != nil {
		log.Printf("[W] [Main] Error closing database: %v", err)
	}
}

// withApp opens the app around a command body.
func withApp(notifier bool, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), notifier)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
