package xp

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIdempotencyKeyDeterministic(t *testing.T) {
	userID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	date := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)

	a := IdempotencyKey(userID, SourceHabitComplete, "habit-1", date)
	b := IdempotencyKey(userID, SourceHabitComplete, "habit-1", date)
	assert.Equal(t, a, b)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555:habit_complete:habit-1:2026-08-30", a)
}

func TestIdempotencyKeyEmptySourceID(t *testing.T) {
	userID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	key := IdempotencyKey(userID, SourceStreakBonus, "", date)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555:streak_bonus:none:2026-08-30", key)
}

func TestIdempotencyKeySeparatesDays(t *testing.T) {
	userID := uuid.New()
	d1 := time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 31, 1, 0, 0, 0, time.UTC)

	assert.NotEqual(t,
		IdempotencyKey(userID, SourceHabitComplete, "h", d1),
		IdempotencyKey(userID, SourceHabitComplete, "h", d2),
	)
}

func TestIdempotencyKeyUsesUTCDay(t *testing.T) {
	userID := uuid.New()
	loc := time.FixedZone("UTC+3", 3*60*60)
	// 01:00 local on the 31st is still the 30th in UTC.
	local := time.Date(2026, 8, 31, 1, 0, 0, 0, loc)
	utc := time.Date(2026, 8, 30, 22, 0, 0, 0, time.UTC)

	assert.Equal(t,
		IdempotencyKey(userID, SourceHabitComplete, "h", utc),
		IdempotencyKey(userID, SourceHabitComplete, "h", local),
	)
}

func TestIdempotencyKeySeparatesSources(t *testing.T) {
	userID := uuid.New()
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	assert.NotEqual(t,
		IdempotencyKey(userID, SourceHabitComplete, "x", date),
		IdempotencyKey(userID, SourceBadgeUnlock, "x", date),
	)
}
