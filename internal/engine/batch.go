package engine

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/denislee/exptracker/internal/directory"
	"github.com/denislee/exptracker/internal/recovery"
	"github.com/denislee/exptracker/internal/scrape"
	"github.com/denislee/exptracker/internal/snapshot"
)

// LaneStats counts outcomes for one server.
type LaneStats struct {
	Due       int
	Succeeded int
	Failed    int
	Skipped   int
}

// BatchReport summarizes one scheduled run.
type BatchReport struct {
	RunID      string
	AsOf       time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Due        int
	Succeeded  int
	Failed     int
	Skipped    int
	Failures   map[scrape.ErrorKind]int
	Servers    map[string]*LaneStats
	// Suspended names the characters this run suspended.
	Suspended []string
	TimedOut  bool
	// RetryPass is set for runs limited to characters with failures.
	RetryPass bool
}

func newReport(asOf, startedAt time.Time) *BatchReport {
	return &BatchReport{
		RunID:     uuid.NewString(),
		AsOf:      asOf,
		StartedAt: startedAt,
		Failures:  make(map[scrape.ErrorKind]int),
		Servers:   make(map[string]*LaneStats),
	}
}

func (r *BatchReport) lane(server string) *LaneStats {
	l, ok := r.Servers[server]
	if !ok {
		l = &LaneStats{}
		r.Servers[server] = l
	}
	return l
}

func (r *BatchReport) add(server string, o Outcome) {
	l := r.lane(server)
	switch {
	case o.Skipped:
		r.Skipped++
		l.Skipped++
	case o.Err != nil:
		r.Failed++
		l.Failed++
		r.Failures[o.Err.Kind]++
	default:
		r.Succeeded++
		l.Succeeded++
	}
	if o.Suspended && o.Character != nil {
		r.Suspended = append(r.Suspended, o.Character.Name)
	}
}

func (r *BatchReport) skip(server string, n int) {
	r.Skipped += n
	r.lane(server).Skipped += n
}

// Run converts the report to its stored form.
func (r *BatchReport) Run() directory.Run {
	failures := make(map[string]int, len(r.Failures))
	for k, v := range r.Failures {
		failures[string(k)] = v
	}
	return directory.Run{
		ID:         r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		Failures:   failures,
	}
}

// RunScheduledBatch scrapes every character due at asOf once. Servers run
// in parallel lanes; within a lane characters go one at a time through the
// server's pacer. Failures never stop the batch. When the run timeout
// expires the characters not yet started are counted as skipped and stay
// due.
func (e *Engine) RunScheduledBatch(ctx context.Context, asOf time.Time) (BatchReport, error) {
	return e.runBatch(ctx, asOf, false)
}

// RunRetryPass is RunScheduledBatch limited to due characters with a
// failure streak. Healthy characters wait for the daily batch, so a
// successful character is never fetched twice on one day by the
// automatic triggers. Passes with nothing due are neither recorded nor
// reported.
func (e *Engine) RunRetryPass(ctx context.Context, asOf time.Time) (BatchReport, error) {
	return e.runBatch(ctx, asOf, true)
}

func (e *Engine) runBatch(ctx context.Context, asOf time.Time, retryPass bool) (BatchReport, error) {
	name := "RunScheduledBatch"
	if retryPass {
		name = "RunRetryPass"
	}
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	report := newReport(asOf, e.now())
	report.RetryPass = retryPass
	span.SetAttributes(attribute.String("run_id", report.RunID))

	due, err := e.dir.Due(ctx, asOf)
	if err != nil {
		return *report, scrape.Wrap(scrape.KindStorage, err, "could not load due characters")
	}
	if retryPass {
		due = failingOnly(due)
		if len(due) == 0 {
			if enableEngineDebugLogs {
				log.Printf("[D] [Engine/Batch] Retry pass %s: nothing to retry.", report.RunID)
			}
			report.FinishedAt = e.now()
			return *report, nil
		}
	}
	servers := make([]string, 0, len(due))
	for server, chars := range due {
		servers = append(servers, server)
		report.Due += len(chars)
		report.lane(server).Due = len(chars)
	}
	sort.Strings(servers)
	log.Printf("[I] [Engine/Batch] Run %s: %d character(s) due across %d server(s).", report.RunID, report.Due, len(servers))

	runCtx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, server := range servers {
		chars := due[server]
		g.Go(func() error {
			e.runLane(runCtx, server, asOf, retryPass, chars, func(o Outcome) {
				mu.Lock()
				report.add(server, o)
				mu.Unlock()
			}, func(n int) {
				mu.Lock()
				report.skip(server, n)
				mu.Unlock()
			})
			return nil
		})
	}
	_ = g.Wait()

	report.TimedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded)
	report.FinishedAt = e.now()
	if err := e.dir.RecordRun(context.WithoutCancel(ctx), report.Run()); err != nil {
		log.Printf("[E] [Engine/Batch] Could not record run %s: %v", report.RunID, err)
	}

	log.Printf("[I] [Engine/Batch] Run %s finished in %s: %d succeeded, %d failed, %d skipped.",
		report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Second), report.Succeeded, report.Failed, report.Skipped)
	if report.TimedOut {
		log.Printf("[W] [Engine/Batch] Run %s hit its %s timeout.", report.RunID, e.runTimeout)
	}
	span.SetAttributes(
		attribute.Int("succeeded", report.Succeeded),
		attribute.Int("failed", report.Failed),
		attribute.Int("skipped", report.Skipped),
	)
	if e.notifier != nil {
		e.notifier.RunFinished(context.WithoutCancel(ctx), *report)
	}
	return *report, nil
}

func (e *Engine) runLane(ctx context.Context, server string, asOf time.Time, retryPass bool, chars []*directory.Character, record func(Outcome), skip func(int)) {
	adapter, err := e.registry.Get(server)
	if err != nil {
		log.Printf("[W] [Engine/Lane] No adapter for server '%s', skipping %d character(s).", server, len(chars))
		skip(len(chars))
		return
	}
	log.Printf("[I] [Engine/Lane] %s: starting %d character(s).", server, len(chars))

	for i, c := range chars {
		if ctx.Err() != nil {
			log.Printf("[W] [Engine/Lane] %s: run canceled, %d character(s) left unscraped.", server, len(chars)-i)
			skip(len(chars) - i)
			return
		}
		record(e.scrapeDue(ctx, adapter, c, asOf, retryPass))
	}
}

// scrapeDue scrapes c if it is still due once its lock is held. A manual
// scrape may have finished in the meantime.
func (e *Engine) scrapeDue(ctx context.Context, adapter scrape.Adapter, c *directory.Character, asOf time.Time, retryPass bool) Outcome {
	unlock := e.locks.Lock(characterKey(c.Server, c.World, c.Name))
	defer unlock()

	if ctx.Err() != nil {
		return Outcome{Character: c, Skipped: true}
	}
	fresh, err := e.dir.Get(ctx, c.ID)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Character: c, Skipped: true}
		}
		log.Printf("[E] [Engine/Lane] Could not reload '%s': %v", c.Name, err)
		return Outcome{Character: c, Err: scrape.Wrap(scrape.KindStorage, err, "could not reload character")}
	}
	if !fresh.Recovery.Due(asOf) || (retryPass && fresh.Recovery.ErrorCount == 0) {
		if enableEngineDebugLogs {
			log.Printf("[D] [Engine/Lane] '%s' no longer due, skipping.", fresh.Name)
		}
		return Outcome{Character: fresh, Skipped: true}
	}

	source := snapshot.SourceScheduled
	if fresh.Recovery.Phase() == recovery.Degraded {
		source = snapshot.SourceRetry
	}
	out, _ := e.scrapeLocked(ctx, adapter, fresh.World, fresh.Name, fresh, source)
	return out
}

// failingOnly keeps the characters with a failure streak.
func failingOnly(due map[string][]*directory.Character) map[string][]*directory.Character {
	out := make(map[string][]*directory.Character)
	for server, chars := range due {
		for _, c := range chars {
			if c.Recovery.ErrorCount > 0 {
				out[server] = append(out[server], c)
			}
		}
	}
	return out
}
