package snapshot

import (
	"log"
	"sort"
	"time"

	"github.com/denislee/exptracker/internal/scrape"
)

const enableReconcileDebugLogs = false

// Plan is the write set for one scrape of one character. It is committed
// as a single transaction.
type Plan struct {
	CharacterID int64
	// Current is the row for the fetch day carrying the full current state.
	Current   Snapshot
	Inserts   []Snapshot
	Updates   []Snapshot
	Unchanged int
}

// Writes returns how many rows the plan touches.
func (p Plan) Writes() int { return len(p.Inserts) + len(p.Updates) }

type Reconciler struct {
	Merge MergePolicy
}

func NewReconciler(policy MergePolicy) *Reconciler {
	if policy == "" {
		policy = MergeMax
	}
	return &Reconciler{Merge: policy}
}

// Candidates builds one row per distinct date: the current-state row for
// the fetch day plus one history row per remaining history date. Output is
// ordered newest first.
func (r *Reconciler) Candidates(characterID int64, p *scrape.Profile, source Source) []Snapshot {
	merged := r.mergeHistory(p.History)

	current := currentRow(characterID, p, source)
	if exp, ok := merged[current.Date]; ok {
		current.Experience = exp
		delete(merged, current.Date)
	}

	out := make([]Snapshot, 0, len(merged)+1)
	out = append(out, current)
	for date, exp := range merged {
		out = append(out, Snapshot{
			CharacterID: characterID,
			Date:        date,
			Experience:  exp,
			World:       p.World,
			ScrapedAt:   p.FetchedAt,
			Source:      SourceHistory,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// Plan compares the candidates against the rows already stored, keyed by
// date, and decides what to insert or update.
func (r *Reconciler) Plan(characterID int64, p *scrape.Profile, source Source, existing map[time.Time]Snapshot) Plan {
	plan := Plan{CharacterID: characterID}
	for _, c := range r.Candidates(characterID, p, source) {
		if c.Date.Equal(p.Today) && !c.Source.IsHistory() {
			plan.Current = c
		}
		old, ok := existing[c.Date]
		if !ok {
			plan.Inserts = append(plan.Inserts, c)
			continue
		}
		if !shouldReplace(old, c, p.Today) {
			plan.Unchanged++
			continue
		}
		c.ID = old.ID
		if c.Experience == 0 && old.Experience != 0 {
			c.Experience = old.Experience
		}
		plan.Updates = append(plan.Updates, c)
	}
	if enableReconcileDebugLogs {
		log.Printf("[D] [Snapshot/Reconcile] Character %d: %d insert(s), %d update(s), %d unchanged.",
			characterID, len(plan.Inserts), len(plan.Updates), plan.Unchanged)
	}
	return plan
}

// shouldReplace applies the precedence rules for a date that already has a
// row. A history row never overwrites a non-history row.
func shouldReplace(old, c Snapshot, today time.Time) bool {
	switch {
	case c.Source.IsHistory() && !old.Source.IsHistory():
		return false
	case old.Source.IsHistory() && !c.Source.IsHistory():
		return true
	case old.Experience == 0 && c.Experience != 0:
		return true
	case !c.Source.IsHistory() && c.Date.Equal(today):
		// The fetch day is still open, so the newest observation wins.
		return true
	}
	return false
}

func (r *Reconciler) mergeHistory(entries []scrape.HistoryEntry) map[time.Time]int64 {
	merged := make(map[time.Time]int64, len(entries))
	for _, e := range entries {
		prev, seen := merged[e.Date]
		switch {
		case !seen:
			merged[e.Date] = e.Experience
		case r.Merge == MergeSum:
			merged[e.Date] = prev + e.Experience
		case e.Experience > prev:
			merged[e.Date] = e.Experience
		}
		if seen {
			log.Printf("[W] [Snapshot/Reconcile] Duplicate history date %s merged by %s.", DateKey(e.Date), r.Merge)
		}
	}
	return merged
}

func currentRow(characterID int64, p *scrape.Profile, source Source) Snapshot {
	return Snapshot{
		CharacterID:       characterID,
		Date:              p.Today,
		Level:             p.Level,
		Deaths:            p.DeathsToday,
		Vocation:          p.Vocation,
		World:             p.World,
		Guild:             p.Guild,
		GuildRank:         p.GuildRank,
		AchievementPoints: p.AchievementPoints,
		LoyaltyPoints:     p.LoyaltyPoints,
		Online:            p.Online,
		OutfitURL:         p.OutfitURL,
		ScrapedAt:         p.FetchedAt,
		Source:            source,
	}
}
