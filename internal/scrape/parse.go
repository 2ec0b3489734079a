package scrape

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const historyDateLayout = "02/01/2006"

// DateOf returns the calendar day of t in loc, as midnight UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseHistoryLabel resolves a history row label against the fetch time.
// "Today" and "Yesterday" are relative to the fetch day in loc; anything
// else must be an explicit DD/MM/YYYY date.
func ParseHistoryLabel(label string, fetchedAt time.Time, loc *time.Location) (time.Time, error) {
	today := DateOf(fetchedAt, loc)
	clean := strings.TrimSpace(label)
	switch strings.ToLower(clean) {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	d, err := time.Parse(historyDateLayout, clean)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized history label %q: %w", label, err)
	}
	return d, nil
}

// ParseNumber reads an integer cell that may carry thousands separators,
// a leading sign or stray text. Cells without any digit parse as 0.
func ParseNumber(s string) int64 {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "-")
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	if negative {
		return -n
	}
	return n
}

// ParseInt is ParseNumber for fields that fit an int.
func ParseInt(s string) int {
	return int(ParseNumber(s))
}
