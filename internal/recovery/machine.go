package recovery

import (
	"time"

	"github.com/denislee/exptracker/internal/scrape"
)

// Policy holds the tunables of the machine.
type Policy struct {
	Threshold   int
	Interval    time.Duration
	StaleWindow time.Duration
	Delays      map[scrape.ErrorKind]time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Threshold:   3,
		Interval:    20 * time.Hour,
		StaleWindow: 10 * 24 * time.Hour,
		Delays: map[scrape.ErrorKind]time.Duration{
			scrape.KindNotFound:         time.Hour,
			scrape.KindNetwork:          5 * time.Minute,
			scrape.KindTimeout:          5 * time.Minute,
			scrape.KindInsufficientData: 15 * time.Minute,
		},
	}
}

// RetryDelay is how long to wait after a failure of kind.
func (p Policy) RetryDelay(kind scrape.ErrorKind) time.Duration {
	if d, ok := p.Delays[kind]; ok {
		return d
	}
	return 5 * time.Minute
}

type Machine struct {
	policy Policy
}

func NewMachine(p Policy) *Machine {
	def := DefaultPolicy()
	if p.Threshold <= 0 {
		p.Threshold = def.Threshold
	}
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.StaleWindow <= 0 {
		p.StaleWindow = def.StaleWindow
	}
	if p.Delays == nil {
		p.Delays = def.Delays
	}
	return &Machine{policy: p}
}

func (m *Machine) Policy() Policy { return m.policy }

// Apply returns the state after e. s is never modified.
func (m *Machine) Apply(s State, e Event) State {
	switch e.Type {
	case EventSuccess:
		return m.success(s, e)
	case EventFailure:
		return m.failure(s, e)
	case EventSweep:
		return m.sweep(s, e)
	case EventReactivate:
		s.ErrorCount = 0
		s.LastError = ""
		s.LastErrorKind = ""
		s.Active = true
		s.Reason = ReasonNone
		s.NextScrapeAt = e.At
	case EventDeactivate:
		s.Active = false
		s.Reason = ReasonManual
	}
	return s
}

func (m *Machine) success(s State, e Event) State {
	next := e.At.Add(m.policy.Interval)
	if e.OnDemand {
		next = later(s.NextScrapeAt, next)
	}
	s.ErrorCount = 0
	s.LastError = ""
	s.LastErrorKind = ""
	s.LastScrapeAt = e.At
	s.LastSnapshotAt = e.At
	s.NextScrapeAt = next
	// A fresh snapshot lifts error and staleness suspensions, not a
	// suspension someone set by hand.
	if s.Reason != ReasonManual {
		s.Active = true
		s.Reason = ReasonNone
	}
	return s
}

func (m *Machine) failure(s State, e Event) State {
	next := e.At.Add(m.policy.RetryDelay(e.Kind))
	if e.OnDemand || e.Kind == s.LastErrorKind {
		next = later(s.NextScrapeAt, next)
	}
	s.ErrorCount++
	s.LastError = e.Message
	s.LastErrorKind = e.Kind
	s.NextScrapeAt = next
	if s.ErrorCount >= m.policy.Threshold && s.Active {
		s.Active = false
		s.Reason = ReasonErrors
	}
	return s
}

func (m *Machine) sweep(s State, e Event) State {
	if !s.Active {
		return s
	}
	if e.At.Sub(s.LastSeen()) > m.policy.StaleWindow {
		s.Active = false
		s.Reason = ReasonStale
	}
	return s
}

// IsStale reports whether a sweep at now would suspend s.
func (m *Machine) IsStale(s State, now time.Time) bool {
	return s.Active && now.Sub(s.LastSeen()) > m.policy.StaleWindow
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
