// Package scrape holds the contract shared by every game-server adapter:
// the normalized profile record, the error taxonomy, the experience-history
// parsing rules and the page getters that adapters fetch through.
package scrape

import (
	"context"
	"time"
)

// HistoryEntry is one row of a profile's experience history table.
// Date is the calendar day at midnight UTC.
type HistoryEntry struct {
	Date       time.Time
	Experience int64
}

// Profile is the normalized result of parsing one character page.
type Profile struct {
	Name              string
	Level             int
	Vocation          string
	Sex               string
	World             string
	Guild             string
	GuildRank         string
	Residence         string
	House             string
	Online            bool
	LastLogin         *time.Time
	AchievementPoints int
	LoyaltyPoints     int
	DeathsToday       int
	OutfitURL         string
	ProfileURL        string

	// FetchedAt is the wall-clock time of the fetch. Relative history labels
	// were resolved against it.
	FetchedAt time.Time
	// Today is FetchedAt's calendar day in the adapter's timezone.
	Today   time.Time
	History []HistoryEntry
}

// Pacing is the static per-server request policy.
type Pacing struct {
	MinDelay time.Duration
	Headers  map[string]string
}

// Adapter knows one game server's URL scheme and HTML layout.
type Adapter interface {
	// ID is the lowercase registry key.
	ID() string
	Worlds() []string
	ProfileURL(world, name string) (string, error)
	FetchProfile(ctx context.Context, world, name string) (*Profile, error)
	Pacing() Pacing
	Location() *time.Location
}
