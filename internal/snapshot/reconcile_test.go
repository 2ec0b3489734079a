package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/denislee/exptracker/internal/scrape"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func gatesProfile() *scrape.Profile {
	return &scrape.Profile{
		Name:      "Gates",
		Level:     542,
		Vocation:  "Elite Knight",
		World:     "Elysian",
		Guild:     "Red Rose",
		GuildRank: "Leader",
		Online:    true,
		OutfitURL: "https://rubinot.com.br/images/outfits/131.gif",
		FetchedAt: time.Date(2025, 1, 9, 18, 0, 0, 0, time.UTC),
		Today:     day(2025, 1, 9),
		History: []scrape.HistoryEntry{
			{Date: day(2025, 1, 9), Experience: 1500000},
			{Date: day(2025, 1, 8), Experience: 800000},
			{Date: day(2025, 1, 8), Experience: 1200000},
			{Date: day(2025, 1, 7), Experience: 0},
			{Date: day(2025, 1, 6), Experience: 2100000},
		},
	}
}

func byDate(rows []Snapshot) map[time.Time]Snapshot {
	out := make(map[time.Time]Snapshot, len(rows))
	for _, r := range rows {
		out[r.Date] = r
	}
	return out
}

func TestPlanGatesScenario(t *testing.T) {
	plan := NewReconciler(MergeMax).Plan(7, gatesProfile(), SourceScheduled, nil)

	require.Empty(t, plan.Updates)
	require.Len(t, plan.Inserts, 4)

	rows := byDate(plan.Inserts)
	require.Len(t, rows, 4)

	today := rows[day(2025, 1, 9)]
	require.Equal(t, int64(1500000), today.Experience)
	require.Equal(t, SourceScheduled, today.Source)
	require.Equal(t, 542, today.Level)
	require.Equal(t, "Red Rose", today.Guild)
	require.Equal(t, "Leader", today.GuildRank)
	require.True(t, today.Online)
	require.Equal(t, today, plan.Current)

	require.Equal(t, int64(1200000), rows[day(2025, 1, 8)].Experience)
	require.Equal(t, int64(0), rows[day(2025, 1, 7)].Experience)
	require.Equal(t, int64(2100000), rows[day(2025, 1, 6)].Experience)
	for _, d := range []time.Time{day(2025, 1, 8), day(2025, 1, 7), day(2025, 1, 6)} {
		require.Equal(t, SourceHistory, rows[d].Source)
		require.Zero(t, rows[d].Level)
		require.Equal(t, int64(7), rows[d].CharacterID)
	}

	for i := 1; i < len(plan.Inserts); i++ {
		require.True(t, plan.Inserts[i-1].Date.After(plan.Inserts[i].Date))
	}
}

func TestMergeSumPolicy(t *testing.T) {
	plan := NewReconciler(MergeSum).Plan(7, gatesProfile(), SourceManual, nil)
	require.Equal(t, int64(2000000), byDate(plan.Inserts)[day(2025, 1, 8)].Experience)
}

func TestCurrentRowWithoutTodayHistory(t *testing.T) {
	p := gatesProfile()
	p.History = p.History[1:]

	plan := NewReconciler(MergeMax).Plan(7, p, SourceManual, nil)
	today := byDate(plan.Inserts)[day(2025, 1, 9)]
	require.Equal(t, SourceManual, today.Source)
	require.Zero(t, today.Experience)
}

func TestReplayIsIdempotent(t *testing.T) {
	r := NewReconciler(MergeMax)
	first := r.Plan(7, gatesProfile(), SourceScheduled, nil)

	existing := byDate(first.Inserts)
	second := r.Plan(7, gatesProfile(), SourceScheduled, existing)

	require.Empty(t, second.Inserts)
	// Only the still-open fetch day is refreshed.
	require.Len(t, second.Updates, 1)
	require.Equal(t, day(2025, 1, 9), second.Updates[0].Date)
	require.Equal(t, 3, second.Unchanged)
}

func TestCurrentStateOverwritesHistoryRow(t *testing.T) {
	existing := map[time.Time]Snapshot{
		day(2025, 1, 9): {ID: 11, Date: day(2025, 1, 9), Experience: 900000, Source: SourceHistory},
	}
	plan := NewReconciler(MergeMax).Plan(7, gatesProfile(), SourceRefresh, existing)

	require.Len(t, plan.Updates, 1)
	u := plan.Updates[0]
	require.Equal(t, int64(11), u.ID)
	require.Equal(t, SourceRefresh, u.Source)
	require.Equal(t, 542, u.Level)
	require.Equal(t, int64(1500000), u.Experience)
}

func TestHistoryNeverOverwritesNonHistoryRow(t *testing.T) {
	existing := map[time.Time]Snapshot{
		day(2025, 1, 8): {ID: 3, Date: day(2025, 1, 8), Experience: 0, Level: 541, Source: SourceScheduled},
		day(2025, 1, 6): {ID: 4, Date: day(2025, 1, 6), Experience: 5, Source: SourceManual},
	}
	plan := NewReconciler(MergeMax).Plan(7, gatesProfile(), SourceScheduled, existing)

	for _, u := range plan.Updates {
		require.NotEqual(t, day(2025, 1, 8), u.Date)
		require.NotEqual(t, day(2025, 1, 6), u.Date)
	}
	require.Equal(t, 2, plan.Unchanged)
}

func TestZeroHistoryRowIsRepaired(t *testing.T) {
	existing := map[time.Time]Snapshot{
		day(2025, 1, 6): {ID: 5, Date: day(2025, 1, 6), Experience: 0, Source: SourceHistory},
		day(2025, 1, 8): {ID: 6, Date: day(2025, 1, 8), Experience: 300, Source: SourceHistory},
	}
	plan := NewReconciler(MergeMax).Plan(7, gatesProfile(), SourceScheduled, existing)

	updates := byDate(plan.Updates)
	require.Contains(t, updates, day(2025, 1, 6))
	require.Equal(t, int64(5), updates[day(2025, 1, 6)].ID)
	require.Equal(t, int64(2100000), updates[day(2025, 1, 6)].Experience)
	require.NotContains(t, updates, day(2025, 1, 8))
}

func TestRefreshKeepsKnownExperience(t *testing.T) {
	p := gatesProfile()
	p.History = nil
	existing := map[time.Time]Snapshot{
		day(2025, 1, 9): {ID: 9, Date: day(2025, 1, 9), Experience: 1400000, Source: SourceScheduled},
	}
	plan := NewReconciler(MergeMax).Plan(7, p, SourceManual, existing)

	require.Len(t, plan.Updates, 1)
	require.Equal(t, int64(1400000), plan.Updates[0].Experience)
	require.Equal(t, SourceManual, plan.Updates[0].Source)
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource(" Manual ")
	require.NoError(t, err)
	require.Equal(t, SourceManual, s)
	require.True(t, s.OnDemand())

	_, err = ParseSource("history")
	require.Error(t, err)

	m, err := ParseMergePolicy("")
	require.NoError(t, err)
	require.Equal(t, MergeMax, m)
}
