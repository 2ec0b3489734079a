// Package jobs runs background work on cron schedules until its context is
// canceled.
package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const enableJobDebugLogs = false

// Job defines a background task with its function and schedule.
type Job struct {
	Name string
	Func func(ctx context.Context)
	// Spec is a standard five-field cron spec or a descriptor such as
	// "@every 15m". See Daily and Every.
	Spec string
	// RunAtStart runs Func once before the first scheduled slot.
	RunAtStart bool
}

// Daily is the spec for once a day at hour:minute.
func Daily(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// Every is the spec for a fixed interval.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// NextRun returns the first slot of spec after the given instant, read in loc.
func NextRun(spec string, loc *time.Location, after time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return sched.Next(after.In(loc)), nil
}

// Run schedules every job in loc and blocks until ctx is canceled and the
// running jobs have returned. A slot that comes up while the previous run
// of the same job is still going is skipped.
func Run(ctx context.Context, loc *time.Location, jobs ...Job) error {
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for _, job := range jobs {
		if _, err := c.AddFunc(job.Spec, func() {
			log.Printf("[I] [Job] Starting scheduled %s run...", job.Name)
			job.Func(ctx)
		}); err != nil {
			return fmt.Errorf("invalid schedule %q for %s job: %w", job.Spec, job.Name, err)
		}
	}

	var initial sync.WaitGroup
	c.Start()
	for _, job := range jobs {
		if next, err := NextRun(job.Spec, loc, time.Now()); err == nil {
			log.Printf("[I] [Job] %s job scheduled, next run %s.", job.Name, next.Format("2006-01-02 15:04 MST"))
		}
		if job.RunAtStart {
			initial.Add(1)
			go func(j Job) {
				defer initial.Done()
				log.Printf("[I] [Job] Starting initial run for %s job...", j.Name)
				j.Func(ctx)
			}(job)
		}
	}

	<-ctx.Done()
	log.Println("[I] [Job] Shutdown requested, waiting for running jobs...")
	<-c.Stop().Done()
	initial.Wait()
	log.Println("[I] [Job] All jobs stopped.")
	return nil
}

// cronLogger routes cron's own messages into the tagged log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if enableJobDebugLogs {
		log.Printf("[D] [Job/Cron] %s %v", msg, keysAndValues)
	}
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Printf("[E] [Job/Cron] %s: %v %v", msg, err, keysAndValues)
}
