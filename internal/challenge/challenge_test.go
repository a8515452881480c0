package challenge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncrementForDailyCompletions(t *testing.T) {
	assert.Equal(t, 1, IncrementFor(TargetDailyCompletions, 7, 0, 0, 0))
	assert.Equal(t, 1, IncrementFor(TargetDailyCompletions, 7, 6, 0, 0))
}

func TestIncrementForTotalCompletions(t *testing.T) {
	assert.Equal(t, 1, IncrementFor(TargetTotalCompletions, 50, 49, 0, 0))
}

func TestIncrementForStreakDays(t *testing.T) {
	// Progress jumps to the current streak, capped at the target.
	assert.Equal(t, 5, IncrementFor(TargetStreakDays, 14, 0, 5, 0))
	assert.Equal(t, 1, IncrementFor(TargetStreakDays, 14, 5, 6, 0))
	assert.Equal(t, 14, IncrementFor(TargetStreakDays, 14, 0, 20, 0))
	// A streak reset never moves progress backwards.
	assert.Equal(t, 0, IncrementFor(TargetStreakDays, 14, 10, 1, 0))
}

func TestIncrementForXPGain(t *testing.T) {
	assert.Equal(t, 17, IncrementFor(TargetXPGain, 500, 100, 3, 17))
	assert.Equal(t, 0, IncrementFor(TargetXPGain, 500, 100, 3, 0))
}

func TestIncrementForPerfectWeekNeverCredits(t *testing.T) {
	assert.Equal(t, 0, IncrementFor(TargetPerfectWeek, 1, 0, 30, 100))
}

func TestApplyIncrementClamps(t *testing.T) {
	assert.Equal(t, 7, ApplyIncrement(6, 1, 7))
	assert.Equal(t, 7, ApplyIncrement(6, 5, 7))
	assert.Equal(t, 3, ApplyIncrement(2, 1, 7))
}
