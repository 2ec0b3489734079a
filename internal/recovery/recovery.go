// Package recovery is the per-character health state machine. Transitions
// are pure functions of (State, Event); persistence belongs to the
// directory.
package recovery

import (
	"time"

	"github.com/denislee/exptracker/internal/scrape"
)

type Phase string

const (
	Healthy   Phase = "healthy"
	Degraded  Phase = "degraded"
	Suspended Phase = "suspended"
)

// Reason says why a character is suspended.
type Reason string

const (
	ReasonNone   Reason = ""
	ReasonErrors Reason = "errors"
	ReasonStale  Reason = "stale"
	ReasonManual Reason = "manual"
)

// State is the recovery overlay stored on a character row.
type State struct {
	ErrorCount     int
	LastError      string
	LastErrorKind  scrape.ErrorKind
	LastScrapeAt   time.Time
	LastSnapshotAt time.Time
	NextScrapeAt   time.Time
	Active         bool
	Reason         Reason
	CreatedAt      time.Time
}

// Initial is the state of a newly registered character: healthy and due now.
func Initial(now time.Time) State {
	return State{Active: true, NextScrapeAt: now, CreatedAt: now}
}

func (s State) Phase() Phase {
	switch {
	case !s.Active:
		return Suspended
	case s.ErrorCount > 0:
		return Degraded
	}
	return Healthy
}

// Due reports whether the automatic loop should scrape the character.
func (s State) Due(now time.Time) bool {
	return s.Active && !s.NextScrapeAt.After(now)
}

// LastSeen is the reference time for staleness: the latest snapshot, or the
// registration time when nothing was recorded yet.
func (s State) LastSeen() time.Time {
	if s.LastSnapshotAt.IsZero() {
		return s.CreatedAt
	}
	return s.LastSnapshotAt
}

type EventType int

const (
	EventSuccess EventType = iota
	EventFailure
	EventSweep
	EventReactivate
	EventDeactivate
)

func (t EventType) String() string {
	switch t {
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	case EventSweep:
		return "sweep"
	case EventReactivate:
		return "reactivate"
	case EventDeactivate:
		return "deactivate"
	}
	return "unknown"
}

// Event is one input to the machine. Kind and Message describe failures;
// OnDemand marks manual and refresh scrapes.
type Event struct {
	Type     EventType
	At       time.Time
	Kind     scrape.ErrorKind
	Message  string
	OnDemand bool
}

func Success(at time.Time, onDemand bool) Event {
	return Event{Type: EventSuccess, At: at, OnDemand: onDemand}
}

func Failure(at time.Time, err error, onDemand bool) Event {
	se := scrape.AsError(err)
	return Event{Type: EventFailure, At: at, Kind: se.Kind, Message: se.Error(), OnDemand: onDemand}
}

func Sweep(at time.Time) Event      { return Event{Type: EventSweep, At: at} }
func Reactivate(at time.Time) Event { return Event{Type: EventReactivate, At: at} }
func Deactivate(at time.Time) Event { return Event{Type: EventDeactivate, At: at} }
