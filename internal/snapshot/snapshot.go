// Package snapshot turns a scraped profile into date-keyed daily rows.
// Reconciliation is pure: it reads the rows already stored for a character
// and returns the inserts and updates needed, never more than one row per
// (character, date).
package snapshot

import (
	"fmt"
	"strings"
	"time"
)

// Source records where a snapshot row came from.
type Source string

const (
	SourceManual    Source = "manual"
	SourceScheduled Source = "scheduled"
	SourceRetry     Source = "retry"
	SourceHistory   Source = "history"
	SourceRefresh   Source = "refresh"
)

// IsHistory reports whether rows of this source were backfilled from a
// history table rather than observed directly.
func (s Source) IsHistory() bool { return s == SourceHistory }

// OnDemand reports whether the source is a caller-triggered scrape.
func (s Source) OnDemand() bool { return s == SourceManual || s == SourceRefresh }

// ParseSource accepts the provenance values a caller may request.
// "history" is reserved for backfilled rows.
func ParseSource(s string) (Source, error) {
	switch src := Source(strings.ToLower(strings.TrimSpace(s))); src {
	case SourceManual, SourceScheduled, SourceRetry, SourceRefresh:
		return src, nil
	}
	return "", fmt.Errorf("invalid scrape source %q (want manual, scheduled, retry or refresh)", s)
}

// MergePolicy decides how duplicate dates inside one history table combine.
type MergePolicy string

const (
	MergeMax MergePolicy = "max"
	MergeSum MergePolicy = "sum"
)

func ParseMergePolicy(s string) (MergePolicy, error) {
	switch p := MergePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", MergeMax:
		return MergeMax, nil
	case MergeSum:
		return MergeSum, nil
	}
	return "", fmt.Errorf("invalid merge policy %q (want max or sum)", s)
}

// Snapshot is one daily row. Experience is what was gained on Date, never a
// running total. Date is midnight UTC of the calendar day.
type Snapshot struct {
	ID                int64
	CharacterID       int64
	Date              time.Time
	Level             int
	Experience        int64
	Deaths            int
	Vocation          string
	World             string
	Guild             string
	GuildRank         string
	AchievementPoints int
	LoyaltyPoints     int
	Online            bool
	OutfitURL         string
	ScrapedAt         time.Time
	Source            Source
}

// DateKey formats a snapshot date the way it is stored.
func DateKey(d time.Time) string { return d.Format("2006-01-02") }
