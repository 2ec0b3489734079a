package engine

import (
	"context"
	"log"
	"time"

	"github.com/denislee/exptracker/internal/directory"
	"github.com/denislee/exptracker/internal/recovery"
)

// ToggleRecovery flips a character between active and suspended and
// returns the resulting recovery_active value. Reactivation clears the
// error streak and makes the character due immediately.
func (e *Engine) ToggleRecovery(ctx context.Context, characterID int64) (bool, error) {
	c, err := e.dir.Get(ctx, characterID)
	if err != nil {
		return false, err
	}
	unlock := e.locks.Lock(characterKey(c.Server, c.World, c.Name))
	defer unlock()

	if c, err = e.dir.Get(ctx, characterID); err != nil {
		return false, err
	}
	ev := recovery.Reactivate(e.now())
	if c.Recovery.Active {
		ev = recovery.Deactivate(e.now())
	}
	next := e.machine.Apply(c.Recovery, ev)
	if err := e.dir.SaveState(ctx, c.ID, next); err != nil {
		return c.Recovery.Active, err
	}
	log.Printf("[I] [Engine/Recovery] Toggled '%s' (%s/%s): %s -> %s.", c.Name, c.Server, c.World, c.Recovery.Phase(), next.Phase())
	return next.Active, nil
}

// SweepStale suspends every active character without a snapshot inside
// the stale window and returns how many were suspended.
func (e *Engine) SweepStale(ctx context.Context, asOf time.Time) (int, error) {
	active, err := e.dir.List(ctx, directory.ListFilter{ActiveOnly: true})
	if err != nil {
		return 0, err
	}
	suspended := 0
	for _, c := range active {
		if !e.machine.IsStale(c.Recovery, asOf) {
			continue
		}
		ok, err := e.sweepOne(ctx, c, asOf)
		if err != nil {
			return suspended, err
		}
		if ok {
			suspended++
		}
	}
	log.Printf("[I] [Engine/Sweep] Checked %d active character(s), suspended %d as stale.", len(active), suspended)
	return suspended, nil
}

func (e *Engine) sweepOne(ctx context.Context, c *directory.Character, asOf time.Time) (bool, error) {
	unlock := e.locks.Lock(characterKey(c.Server, c.World, c.Name))
	defer unlock()

	fresh, err := e.dir.Get(ctx, c.ID)
	if err != nil {
		return false, err
	}
	prev := fresh.Recovery
	next := e.machine.Apply(prev, recovery.Sweep(asOf))
	if next.Active == prev.Active {
		return false, nil
	}
	if err := e.dir.SaveState(ctx, fresh.ID, next); err != nil {
		return false, err
	}
	fresh.Recovery = next
	return e.afterTransition(ctx, prev, fresh), nil
}
