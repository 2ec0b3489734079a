package scrape

import (
	"log"
	"time"
)

// HistoryRow is a raw (label, value) pair lifted from a history table.
type HistoryRow struct {
	Label string
	Value string
}

// BuildHistory resolves raw history rows in source order. Rows whose label
// cannot be resolved are dropped; empty or non-numeric values become 0.
// Duplicate dates are kept here and merged by the reconciler.
func BuildHistory(rows []HistoryRow, fetchedAt time.Time, loc *time.Location, logPrefix string) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		date, err := ParseHistoryLabel(row.Label, fetchedAt, loc)
		if err != nil {
			log.Printf("[W] %s Skipping history row: %v", logPrefix, err)
			continue
		}
		entries = append(entries, HistoryEntry{Date: date, Experience: ParseNumber(row.Value)})
	}
	return entries
}
