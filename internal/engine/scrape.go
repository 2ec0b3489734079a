package engine

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/denislee/exptracker/internal/directory"
	"github.com/denislee/exptracker/internal/recovery"
	"github.com/denislee/exptracker/internal/scrape"
	"github.com/denislee/exptracker/internal/snapshot"
	"github.com/denislee/exptracker/internal/xp"
)

// Outcome is the result of one character scrape.
type Outcome struct {
	Character *directory.Character
	Source    snapshot.Source
	// Today is the fetch-day row that was written.
	Today    snapshot.Snapshot
	Inserted int
	Updated  int
	Phase    recovery.Phase
	// TotalExperience is the experience needed for the current level.
	TotalExperience int64
	// Suspended is set when this scrape moved the character to suspended.
	Suspended bool
	Skipped   bool
	Err       *scrape.Error
	Duration  time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil && !o.Skipped }

// Register adds a character after validating its server and world.
func (e *Engine) Register(ctx context.Context, server, world, name string) (*directory.Character, bool, error) {
	adapter, canonical, err := e.registry.Resolve(server, world)
	if err != nil {
		return nil, false, err
	}
	return e.dir.Register(ctx, adapter.ID(), canonical, name, e.now())
}

// ScrapeCharacter fetches one character now, regardless of its schedule.
// Unknown servers and worlds fail before any I/O and change nothing. A
// character that is not registered yet is created on a successful fetch.
func (e *Engine) ScrapeCharacter(ctx context.Context, server, world, name string, source snapshot.Source) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "ScrapeCharacter")
	defer span.End()
	span.SetAttributes(
		attribute.String("server", server),
		attribute.String("world", world),
		attribute.String("character", name),
		attribute.String("source", string(source)),
	)

	adapter, canonical, err := e.registry.Resolve(server, world)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{Source: source}, err
	}

	unlock := e.locks.Lock(characterKey(adapter.ID(), canonical, name))
	defer unlock()

	c, err := e.dir.Lookup(ctx, adapter.ID(), canonical, name)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		se := scrape.Wrap(scrape.KindStorage, err, "could not look up character")
		return Outcome{Source: source, Err: se}, se
	}

	out, err := e.scrapeLocked(ctx, adapter, canonical, name, c, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

// scrapeLocked runs fetch, reconcile, state transition and commit for one
// character. The caller holds the character's lock; c is nil for a
// character that is not registered yet.
func (e *Engine) scrapeLocked(ctx context.Context, adapter scrape.Adapter, world, name string, c *directory.Character, source snapshot.Source) (Outcome, error) {
	began := time.Now()
	out := Outcome{Character: c, Source: source}
	logPrefix := "[Engine/Scrape]"

	profile, err := adapter.FetchProfile(ctx, world, name)
	if err != nil {
		se := scrape.AsError(err)
		out.Duration = time.Since(began)
		if ctx.Err() != nil || se.Kind == scrape.KindCanceled {
			// Nothing was fetched; this character stays due.
			out.Skipped = true
			out.Err = se
			e.metrics.recordScrape(ctx, adapter.ID(), string(source), "canceled", out.Duration)
			return out, se
		}
		e.metrics.recordScrape(ctx, adapter.ID(), string(source), string(se.Kind), out.Duration)
		out.Err = se
		if c == nil || !se.Kind.Retryable() {
			log.Printf("[W] %s %s/%s/%s failed: %v", logPrefix, adapter.ID(), world, name, se)
			return out, se
		}

		at := e.now()
		prev := c.Recovery
		next := e.machine.Apply(prev, recovery.Failure(at, se, source.OnDemand()))
		if wait := next.NextScrapeAt.Sub(at); wait > 0 {
			se.RetryAfter = wait
		}
		if err := e.dir.SaveState(context.WithoutCancel(ctx), c.ID, next); err != nil {
			log.Printf("[E] %s Could not save state of '%s': %v", logPrefix, c.Name, err)
			sErr := scrape.Wrap(scrape.KindStorage, err, "could not save recovery state")
			out.Err = sErr
			return out, sErr
		}
		c.Recovery = next
		out.Phase = next.Phase()
		out.Suspended = e.afterTransition(ctx, prev, c)
		log.Printf("[W] %s %s/%s/'%s' failed (%s, %d in a row, next try %s): %s",
			logPrefix, adapter.ID(), world, c.Name, se.Kind, next.ErrorCount,
			humanize.Time(next.NextScrapeAt), se.Message)
		return out, se
	}

	at := e.now()
	persistCtx := context.WithoutCancel(ctx)
	if c == nil {
		regName := name
		if strings.EqualFold(strings.TrimSpace(name), profile.Name) {
			regName = profile.Name
		}
		c, _, err = e.dir.Register(persistCtx, adapter.ID(), world, regName, at)
		if err != nil {
			return e.storageFailure(ctx, out, adapter.ID(), began, err, "could not register character")
		}
		log.Printf("[I] %s Registered new character '%s' on %s/%s.", logPrefix, c.Name, adapter.ID(), world)
	}

	existing, err := e.dir.SnapshotsOn(persistCtx, c.ID, candidateDates(profile))
	if err != nil {
		return e.storageFailure(ctx, out, adapter.ID(), began, err, "could not load existing snapshots")
	}
	plan := e.reconciler.Plan(c.ID, profile, source, existing)

	prev := c.Recovery
	updated := *c
	updated.ApplyProfile(profile)
	updated.Recovery = e.machine.Apply(prev, recovery.Success(at, source.OnDemand()))

	if err := e.dir.Commit(persistCtx, &updated, plan, updated.Recovery); err != nil {
		return e.storageFailure(ctx, out, adapter.ID(), began, err, "could not commit scrape")
	}

	out.Character = &updated
	out.Today = plan.Current
	out.Inserted = len(plan.Inserts)
	out.Updated = len(plan.Updates)
	out.Phase = updated.Recovery.Phase()
	out.TotalExperience = xp.Total(updated.Level)
	out.Duration = time.Since(began)
	e.metrics.recordScrape(ctx, adapter.ID(), string(source), "ok", out.Duration)
	e.metrics.recordSnapshots(ctx, adapter.ID(), plan.Writes())

	log.Printf("[I] %s %s/%s/'%s' level %d, %s exp today (%d new, %d updated rows, %s).",
		logPrefix, adapter.ID(), world, updated.Name, updated.Level, humanize.Comma(plan.Current.Experience),
		out.Inserted, out.Updated, source)
	if enableEngineDebugLogs {
		log.Printf("[D] %s '%s' next scrape at %s.", logPrefix, updated.Name, updated.Recovery.NextScrapeAt.Format(time.RFC3339))
	}
	return out, nil
}

// storageFailure reports a failed write. Recovery state is left untouched.
func (e *Engine) storageFailure(ctx context.Context, out Outcome, server string, began time.Time, err error, msg string) (Outcome, error) {
	se := scrape.AsError(err)
	if se.Kind != scrape.KindStorage {
		se = scrape.Wrap(scrape.KindStorage, err, msg)
	}
	out.Err = se
	out.Duration = time.Since(began)
	e.metrics.recordScrape(ctx, server, string(out.Source), string(se.Kind), out.Duration)
	log.Printf("[E] [Engine/Scrape] %s: %v", msg, err)
	return out, se
}

// afterTransition reports a move into suspended and returns whether one
// happened.
func (e *Engine) afterTransition(ctx context.Context, prev recovery.State, c *directory.Character) bool {
	if !prev.Active || c.Recovery.Active {
		return false
	}
	e.metrics.recordSuspension(ctx, string(c.Recovery.Reason))
	log.Printf("[W] [Engine/Recovery] Suspended '%s' (%s/%s): %s.", c.Name, c.Server, c.World, c.Recovery.Reason)
	if e.notifier != nil {
		e.notifier.Suspended(ctx, c)
	}
	return true
}

// candidateDates lists the distinct dates a profile can write.
func candidateDates(p *scrape.Profile) []time.Time {
	seen := map[time.Time]bool{p.Today: true}
	dates := []time.Time{p.Today}
	for _, h := range p.History {
		if !seen[h.Date] {
			seen[h.Date] = true
			dates = append(dates, h.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates
}
