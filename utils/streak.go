package utils

import (
	"sort"
	"time"
)

// LogEntry is the slice of completion history the streak walk needs.
type LogEntry struct {
	Date      time.Time
	Completed bool
}

// CalculateStreaks derives the current and longest streak from a completion
// history, anchored at "today". A recent window of entries (60-100) is
// enough; the walk only ever moves backward one calendar day at a time.
//
// Current streak is 0 when the most recent completed day is more than one
// calendar day before today (lapsed). Longest streak is the longest run of
// consecutive completed days anywhere in the history, never less than the
// current streak.
func CalculateStreaks(entries []LogEntry, today time.Time) (current, longest int) {
	completed := make([]time.Time, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.Completed {
			continue
		}
		day := truncateDay(e.Date)
		key := day.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		completed = append(completed, day)
	}
	if len(completed) == 0 {
		return 0, 0
	}

	sort.Slice(completed, func(i, j int) bool { return completed[i].After(completed[j]) })

	anchor := truncateDay(today)
	mostRecent := completed[0]
	if daysBetween(mostRecent, anchor) <= 1 {
		current = 1
		cursor := mostRecent
		for _, day := range completed[1:] {
			if daysBetween(day, cursor) != 1 {
				break
			}
			current++
			cursor = day
		}
	}

	run := 1
	longest = 1
	for i := 1; i < len(completed); i++ {
		if daysBetween(completed[i], completed[i-1]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	if longest < current {
		longest = current
	}
	return current, longest
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(earlier, later time.Time) int {
	return int(later.Sub(earlier).Hours() / 24)
}
