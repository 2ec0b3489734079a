// Package engine drives scrapes: it resolves adapters, reconciles profiles
// into snapshots, advances each character's recovery state and commits the
// result. RunScheduledBatch is the fleet-wide pass; ScrapeCharacter serves
// single on-demand requests.
package engine

import (
	"context"
	"time"

	"github.com/denislee/exptracker/internal/directory"
	"github.com/denislee/exptracker/internal/recovery"
	"github.com/denislee/exptracker/internal/scrape"
	"github.com/denislee/exptracker/internal/snapshot"
)

const enableEngineDebugLogs = false

// Resolver finds the adapter for a server.
type Resolver interface {
	Get(server string) (scrape.Adapter, error)
	Resolve(server, world string) (scrape.Adapter, string, error)
}

// Directory is the character store the engine reads and writes.
type Directory interface {
	Register(ctx context.Context, server, world, name string, now time.Time) (*directory.Character, bool, error)
	Lookup(ctx context.Context, server, world, name string) (*directory.Character, error)
	Get(ctx context.Context, id int64) (*directory.Character, error)
	List(ctx context.Context, f directory.ListFilter) ([]*directory.Character, error)
	Due(ctx context.Context, now time.Time) (map[string][]*directory.Character, error)
	SnapshotsOn(ctx context.Context, characterID int64, dates []time.Time) (map[time.Time]snapshot.Snapshot, error)
	Commit(ctx context.Context, c *directory.Character, plan snapshot.Plan, st recovery.State) error
	SaveState(ctx context.Context, id int64, st recovery.State) error
	RecordRun(ctx context.Context, r directory.Run) error
}

// Notifier receives run reports and suspensions. Implementations must not
// block for long.
type Notifier interface {
	RunFinished(ctx context.Context, r BatchReport)
	Suspended(ctx context.Context, c *directory.Character)
}

type Options struct {
	Registry   Resolver
	Directory  Directory
	Reconciler *snapshot.Reconciler
	Machine    *recovery.Machine
	Notifier   Notifier
	// RunTimeout bounds one scheduled batch; zero means 6h.
	RunTimeout time.Duration
	Now        func() time.Time
}

type Engine struct {
	registry   Resolver
	dir        Directory
	reconciler *snapshot.Reconciler
	machine    *recovery.Machine
	notifier   Notifier
	runTimeout time.Duration
	now        func() time.Time
	locks      *keyedMutex
	metrics    *metrics
}

func New(opts Options) *Engine {
	e := &Engine{
		registry:   opts.Registry,
		dir:        opts.Directory,
		reconciler: opts.Reconciler,
		machine:    opts.Machine,
		notifier:   opts.Notifier,
		runTimeout: opts.RunTimeout,
		now:        opts.Now,
		locks:      newKeyedMutex(),
		metrics:    newMetrics(),
	}
	if e.reconciler == nil {
		e.reconciler = snapshot.NewReconciler(snapshot.MergeMax)
	}
	if e.machine == nil {
		e.machine = recovery.NewMachine(recovery.DefaultPolicy())
	}
	if e.runTimeout <= 0 {
		e.runTimeout = 6 * time.Hour
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}
