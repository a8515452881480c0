package badge

import (
	"time"

	"github.com/google/uuid"
)

type Metric string

const (
	MetricCurrentStreak     Metric = "current_streak"
	MetricLongestStreak     Metric = "longest_streak"
	MetricTotalCompletions  Metric = "total_completions"
	MetricWeeklyCompletions Metric = "weekly_completions"
	MetricTotalXP           Metric = "total_xp"
	MetricPerfectWeeks      Metric = "perfect_weeks"
	// MetricManual badges are granted elsewhere; the automatic
	// evaluation pass never moves their progress.
	MetricManual Metric = "manual"
)

type State string

const (
	StateLocked     State = "locked"
	StateInProgress State = "in_progress"
	StateEarned     State = "earned"
)

// Badge is one row of the immutable catalog, seeded at process start and
// upserted idempotently by name.
type Badge struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Category  string    `json:"category" db:"category"`
	Tier      int       `json:"tier" db:"tier"`
	Rarity    string    `json:"rarity" db:"rarity"`
	Threshold int       `json:"threshold" db:"threshold"`
	XPReward  int       `json:"xpReward" db:"xp_reward"`
	Metric    Metric    `json:"metric" db:"metric"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	SortOrder int       `json:"sortOrder" db:"sort_order"`
}

// UserBadge keys on (user_id, badge_id). Earned is terminal: once set it
// never reverts, even if progress later recomputes lower.
type UserBadge struct {
	UserID   uuid.UUID  `json:"user_id" db:"user_id"`
	BadgeID  uuid.UUID  `json:"badge_id" db:"badge_id"`
	Progress int        `json:"progress" db:"progress"`
	State    State      `json:"state" db:"state"`
	EarnedAt *time.Time `json:"earned_at,omitempty" db:"earned_at"`
}

type BadgeWithStatus struct {
	Badge
	Progress int        `json:"progress"`
	State    State      `json:"state"`
	EarnedAt *time.Time `json:"earnedAt,omitempty"`
}

// EvaluationContext is the point-in-time snapshot of a user's aggregates
// that badge metrics read from. It is rebuilt fresh on every evaluation
// and never persisted.
type EvaluationContext struct {
	UserID            uuid.UUID
	CurrentStreak     int
	LongestStreak     int
	TotalCompletions  int
	WeeklyCompletions int
	TotalXP           int
	PerfectWeeks      int
	DaysSinceSignup   int
	WeekStart         string
}

// ProgressFor extracts the metric value from the context. Manual badges
// always report 0 here so the automatic pass leaves them alone.
func ProgressFor(m Metric, ec *EvaluationContext) int {
	switch m {
	case MetricCurrentStreak:
		return ec.CurrentStreak
	case MetricLongestStreak:
		return ec.LongestStreak
	case MetricTotalCompletions:
		return ec.TotalCompletions
	case MetricWeeklyCompletions:
		return ec.WeeklyCompletions
	case MetricTotalXP:
		return ec.TotalXP
	case MetricPerfectWeeks:
		return ec.PerfectWeeks
	default:
		return 0
	}
}

// NextState maps clamped progress to the badge state for this pass.
// Callers must not call this for badges already earned.
func NextState(progress, threshold int) State {
	if progress >= threshold {
		return StateEarned
	}
	if progress > 0 {
		return StateInProgress
	}
	return StateLocked
}

// Clamp bounds progress to [0, threshold].
func Clamp(progress, threshold int) int {
	if progress < 0 {
		return 0
	}
	if progress > threshold {
		return threshold
	}
	return progress
}
