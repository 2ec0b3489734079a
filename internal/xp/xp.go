// Package xp holds the experience curve shared by the tracked servers.
package xp

// MaxLevel bounds the precomputed tables.
const MaxLevel = 3000

// levelXPCumulative[L] is the total experience needed to reach level L.
var levelXPCumulative []int64

// levelXPDelta[L] is the experience needed to go from level L to L+1.
var levelXPDelta []int64

func init() {
	levelXPCumulative = make([]int64, MaxLevel+2)
	levelXPDelta = make([]int64, MaxLevel+1)
	for level := 1; level <= MaxLevel+1; level++ {
		levelXPCumulative[level] = formula(int64(level))
	}
	for level := 1; level <= MaxLevel; level++ {
		levelXPDelta[level] = levelXPCumulative[level+1] - levelXPCumulative[level]
	}
}

// formula is the standard curve: 50/3 * (L^3 - 6L^2 + 17L - 12).
func formula(l int64) int64 {
	return (50*l*l*l - 300*l*l + 850*l - 600) / 3
}

// Total returns the experience needed to reach level. Out-of-range levels
// return 0.
func Total(level int) int64 {
	if level < 1 || level > MaxLevel+1 {
		return 0
	}
	return levelXPCumulative[level]
}

// ToNext returns the experience needed to go from level to level+1.
func ToNext(level int) int64 {
	if level < 1 || level > MaxLevel {
		return 0
	}
	return levelXPDelta[level]
}

// LevelFor returns the level a character with total experience exp has.
func LevelFor(exp int64) int {
	lo, hi := 1, MaxLevel
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if levelXPCumulative[mid] <= exp {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// DaysToLevel estimates how many days of gain at dailyRate are needed to
// go from the start of level to target. It returns -1 when unreachable.
func DaysToLevel(level, target int, dailyRate int64) int {
	need := Total(target) - Total(level)
	if need <= 0 {
		return 0
	}
	if dailyRate <= 0 {
		return -1
	}
	return int((need + dailyRate - 1) / dailyRate)
}

// Project returns the level reached from the start of level after days of
// gain at dailyRate.
func Project(level int, dailyRate int64, days int) int {
	if dailyRate <= 0 || days <= 0 {
		return level
	}
	return LevelFor(Total(level) + dailyRate*int64(days))
}
