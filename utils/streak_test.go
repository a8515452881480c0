package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad test date %q: %v", s, err)
	}
	return d
}

func entries(t *testing.T, dates ...string) []LogEntry {
	t.Helper()
	out := make([]LogEntry, 0, len(dates))
	for _, d := range dates {
		out = append(out, LogEntry{Date: day(t, d), Completed: true})
	}
	return out
}

func TestCalculateStreaksEmpty(t *testing.T) {
	current, longest := CalculateStreaks(nil, day(t, "2026-08-30"))
	assert.Equal(t, 0, current)
	assert.Equal(t, 0, longest)
}

func TestCalculateStreaksConsecutiveDays(t *testing.T) {
	today := day(t, "2026-08-30")
	history := entries(t,
		"2026-08-30", "2026-08-29", "2026-08-28", "2026-08-27",
		"2026-08-26", "2026-08-25", "2026-08-24",
	)

	current, longest := CalculateStreaks(history, today)
	assert.Equal(t, 7, current)
	assert.Equal(t, 7, longest)
}

func TestCalculateStreaksYesterdayStillCounts(t *testing.T) {
	// Completing through yesterday keeps the streak alive; the user has
	// until end of today to extend it.
	today := day(t, "2026-08-30")
	history := entries(t, "2026-08-29", "2026-08-28", "2026-08-27")

	current, longest := CalculateStreaks(history, today)
	assert.Equal(t, 3, current)
	assert.Equal(t, 3, longest)
}

func TestCalculateStreaksLapsed(t *testing.T) {
	// Most recent completion two days ago: current resets, longest remains.
	today := day(t, "2026-08-30")
	history := entries(t, "2026-08-28", "2026-08-27", "2026-08-26")

	current, longest := CalculateStreaks(history, today)
	assert.Equal(t, 0, current)
	assert.Equal(t, 3, longest)
}

func TestCalculateStreaksGapBreaksRun(t *testing.T) {
	today := day(t, "2026-08-30")
	history := entries(t,
		"2026-08-30", "2026-08-29",
		// gap on the 28th
		"2026-08-27", "2026-08-26", "2026-08-25", "2026-08-24",
	)

	current, longest := CalculateStreaks(history, today)
	assert.Equal(t, 2, current)
	assert.Equal(t, 4, longest)
}

func TestCalculateStreaksDuplicateDaysCountOnce(t *testing.T) {
	// Two habits logged the same day must not double the streak.
	today := day(t, "2026-08-30")
	history := entries(t, "2026-08-30", "2026-08-30", "2026-08-29", "2026-08-29")

	current, longest := CalculateStreaks(history, today)
	assert.Equal(t, 2, current)
	assert.Equal(t, 2, longest)
}

func TestCalculateStreaksIgnoresUncompleted(t *testing.T) {
	today := day(t, "2026-08-30")
	history := []LogEntry{
		{Date: day(t, "2026-08-30"), Completed: true},
		{Date: day(t, "2026-08-29"), Completed: false},
		{Date: day(t, "2026-08-28"), Completed: true},
	}

	current, longest := CalculateStreaks(history, today)
	assert.Equal(t, 1, current)
	assert.Equal(t, 1, longest)
}

func TestCalculateStreaksLongestNeverBelowCurrent(t *testing.T) {
	today := day(t, "2026-08-30")
	history := entries(t, "2026-08-30", "2026-08-29", "2026-08-28")

	current, longest := CalculateStreaks(history, today)
	assert.GreaterOrEqual(t, longest, current)
}

func TestCalculateStreaksUnorderedInput(t *testing.T) {
	today := day(t, "2026-08-30")
	history := entries(t, "2026-08-28", "2026-08-30", "2026-08-29")

	current, longest := CalculateStreaks(history, today)
	assert.Equal(t, 3, current)
	assert.Equal(t, 3, longest)
}
