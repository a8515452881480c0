package xp

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Source string

const (
	SourceHabitComplete     Source = "habit_complete"
	SourceBadgeUnlock       Source = "badge_unlock"
	SourceChallengeComplete Source = "challenge_complete"
	SourceStreakBonus       Source = "streak_bonus"
	SourcePerfectWeek       Source = "perfect_week"
)

// Transaction is one signed entry in the append-only XP ledger.
// Rows are never updated or deleted; the sum per user is the user's balance.
type Transaction struct {
	ID             uuid.UUID `json:"id" db:"id"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	Amount         int       `json:"amount" db:"amount"`
	Source         Source    `json:"source" db:"source"`
	SourceID       string    `json:"source_id,omitempty" db:"source_id"`
	IdempotencyKey string    `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// IdempotencyKey derives the unique key that makes an award safe under
// retries and concurrent requests: same user, source, entity and UTC
// calendar day always map to the same key.
func IdempotencyKey(userID uuid.UUID, source Source, sourceID string, date time.Time) string {
	if sourceID == "" {
		sourceID = "none"
	}
	day := date.UTC().Format("2006-01-02")
	return fmt.Sprintf("%s:%s:%s:%s", userID, source, sourceID, day)
}

type AwardResult struct {
	Awarded    bool `json:"awarded"`
	Amount     int  `json:"amount"`
	NewTotalXP int  `json:"newTotalXp"`
	NewLevel   int  `json:"newLevel"`
	LeveledUp  bool `json:"leveledUp"`
}
