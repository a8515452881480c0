package habit

import (
	"time"

	"github.com/google/uuid"
)

type Habit struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Icon        string    `json:"icon" db:"icon"`
	IsArchived  bool      `json:"is_archived" db:"is_archived"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Log is one completion record. (habit_id, log_date) is unique, which is
// what makes a retried completion idempotent.
type Log struct {
	ID        uuid.UUID `json:"id" db:"id"`
	HabitID   uuid.UUID `json:"habit_id" db:"habit_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	LogDate   time.Time `json:"log_date" db:"log_date"`
	Completed bool      `json:"completed" db:"completed"`
	LoggedAt  time.Time `json:"logged_at" db:"logged_at"`
}

type CreateHabitRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

type LogHabitRequest struct {
	HabitID string `json:"habitId" validate:"required"`
	Date    string `json:"date,omitempty"` // YYYY-MM-DD, defaults to today (UTC)
}

type StreakInfo struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// LogResult is the habit-log response shape. Badge and challenge stages are
// best effort: when one fails its slice stays empty and the completion still
// succeeds.
type LogResult struct {
	Log              *Log       `json:"log"`
	AlreadyCompleted bool       `json:"alreadyCompleted"`
	Streak           StreakInfo `json:"streak"`
	XPEarned         int        `json:"xpEarned"`
	NewTotalXP       int        `json:"newTotalXp"`
	NewLevel         int        `json:"newLevel"`
	LeveledUp        bool       `json:"leveledUp"`
	NewBadges        []string   `json:"newBadges"`
}
