package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"habitQuestAPI/internal/habit"
	"habitQuestAPI/internal/xp"
	"habitQuestAPI/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	baseCompletionXP = 10
	maxStreakBonusXP = 20
)

type HabitService struct {
	db         *pgxpool.Pool
	xp         *XPService
	badges     *BadgeService
	challenges *ChallengeService
}

func NewHabitService(db *pgxpool.Pool, xpService *XPService, badgeService *BadgeService, challengeService *ChallengeService) *HabitService {
	return &HabitService{db: db, xp: xpService, badges: badgeService, challenges: challengeService}
}

func (s *HabitService) CreateHabit(ctx context.Context, clerkID string, req *habit.CreateHabitRequest) (*habit.Habit, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	h := &habit.Habit{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		CreatedAt:   time.Now().UTC(),
	}

	query := `
	INSERT INTO habits (id, user_id, name, description, icon, is_archived, created_at)
	VALUES ($1, $2, $3, $4, $5, false, $6)
	`
	_, err = s.db.Exec(ctx, query, h.ID, h.UserID, h.Name, h.Description, h.Icon, h.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}

	return h, nil
}

func (s *HabitService) GetHabits(ctx context.Context, clerkID string) ([]*habit.Habit, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	rows, err := s.db.Query(ctx, `
	SELECT id, user_id, name, description, icon, is_archived, created_at
	FROM habits
	WHERE user_id = $1 AND is_archived = false
	ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch habits: %w", err)
	}
	defer rows.Close()

	var habits []*habit.Habit
	for rows.Next() {
		h := &habit.Habit{}
		err := rows.Scan(&h.ID, &h.UserID, &h.Name, &h.Description, &h.Icon, &h.IsArchived, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating habits: %w", err)
	}

	if habits == nil {
		habits = []*habit.Habit{}
	}
	return habits, nil
}

// CompleteHabit runs the full gamification pipeline for one completion:
//
//	streak -> XP award -> badge evaluation -> challenge progress
//
// The habit log insert and the XP award share one transaction and are the
// critical path; everything after that commit is best effort, so a badge or
// challenge failure can never roll back a recorded completion.
func (s *HabitService) CompleteHabit(ctx context.Context, clerkID string, req *habit.LogHabitRequest) (*habit.LogResult, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	habitID, err := uuid.Parse(req.HabitID)
	if err != nil {
		return nil, fmt.Errorf("invalid habit ID: %w", err)
	}

	logDate := time.Now().UTC()
	if req.Date != "" {
		logDate, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid date, expected YYYY-MM-DD: %w", err)
		}
	}
	logDate = time.Date(logDate.Year(), logDate.Month(), logDate.Day(), 0, 0, 0, 0, time.UTC)

	var ownerID uuid.UUID
	err = s.db.QueryRow(ctx, `SELECT user_id FROM habits WHERE id = $1 AND is_archived = false`, habitID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("habit not found")
		}
		return nil, fmt.Errorf("failed to get habit: %w", err)
	}
	if ownerID != userID {
		return nil, fmt.Errorf("habit not found")
	}

	result := &habit.LogResult{NewBadges: []string{}}

	// Critical section: the completion record and its XP award commit
	// together or not at all.
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	logEntry := &habit.Log{
		ID:        uuid.New(),
		HabitID:   habitID,
		UserID:    userID,
		LogDate:   logDate,
		Completed: true,
		LoggedAt:  time.Now().UTC(),
	}

	tag, err := tx.Exec(ctx, `
	INSERT INTO habit_logs (id, habit_id, user_id, log_date, completed, logged_at)
	VALUES ($1, $2, $3, $4, true, $5)
	ON CONFLICT (habit_id, log_date) DO NOTHING
	`, logEntry.ID, habitID, userID, logDate, logEntry.LoggedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to log habit: %w", err)
	}
	alreadyCompleted := tag.RowsAffected() == 0

	entries, err := s.logEntriesTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	current, longest := utils.CalculateStreaks(entries, time.Now().UTC())
	result.Streak = habit.StreakInfo{Current: current, Longest: longest}

	bonus := current
	if bonus > maxStreakBonusXP {
		bonus = maxStreakBonusXP
	}
	award, err := s.xp.AwardXP(ctx, tx, userID, baseCompletionXP+bonus, xp.SourceHabitComplete, habitID.String(), logDate)
	if err != nil {
		return nil, fmt.Errorf("failed to award completion xp: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit habit completion: %w", err)
	}

	result.AlreadyCompleted = alreadyCompleted && !award.Awarded
	if !alreadyCompleted {
		result.Log = logEntry
	}
	if award.Awarded {
		result.XPEarned = award.Amount
	}
	result.NewTotalXP = award.NewTotalXP
	result.NewLevel = award.NewLevel
	result.LeveledUp = award.LeveledUp

	if result.AlreadyCompleted {
		return result, nil
	}

	// Best-effort stages. Each failure is logged and excluded from the
	// response; the completion above is already durable.
	ec, err := s.badges.BuildEvaluationContext(ctx, userID)
	if err != nil {
		log.Printf("Failed to build evaluation context for user %s: %v", userID, err)
	} else {
		newBadges, err := s.badges.EvaluateAndAwardBadges(ctx, nil, ec)
		if err != nil {
			log.Printf("Badge evaluation failed for user %s: %v", userID, err)
		} else {
			for _, b := range newBadges {
				result.NewBadges = append(result.NewBadges, b.Name)
			}
			if len(newBadges) > 0 {
				// Badge rewards moved the total; refresh the response numbers.
				var total, level int
				if err := s.db.QueryRow(ctx, `SELECT total_xp, level FROM users WHERE id = $1`, userID).Scan(&total, &level); err == nil {
					result.NewTotalXP = total
					result.NewLevel = level
				}
			}
		}
	}

	err = s.challenges.UpdateChallengeProgress(ctx, nil, userID, logDate, current, result.XPEarned)
	if err != nil {
		log.Printf("Challenge progress update failed for user %s: %v", userID, err)
	}

	return result, nil
}

func (s *HabitService) logEntriesTx(ctx context.Context, q Querier, userID uuid.UUID) ([]utils.LogEntry, error) {
	rows, err := q.Query(ctx, `
	SELECT log_date, completed FROM habit_logs
	WHERE user_id = $1
	ORDER BY log_date DESC
	LIMIT 100
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query habit logs: %w", err)
	}
	defer rows.Close()

	var entries []utils.LogEntry
	for rows.Next() {
		var e utils.LogEntry
		if err := rows.Scan(&e.Date, &e.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan habit log: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating habit logs: %w", err)
	}
	return entries, nil
}

// GetCalendar returns the completion map for a month, for the calendar view.
func (s *HabitService) GetCalendar(ctx context.Context, clerkID string, year int, month time.Month) (map[string]int, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	rows, err := s.db.Query(ctx, `
	SELECT log_date, COUNT(*) FROM habit_logs
	WHERE user_id = $1 AND completed = true AND log_date >= $2 AND log_date < $3
	GROUP BY log_date
	ORDER BY log_date
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar: %w", err)
	}
	defer rows.Close()

	calendar := make(map[string]int)
	for rows.Next() {
		var day time.Time
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan calendar day: %w", err)
		}
		calendar[day.Format("2006-01-02")] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calendar: %w", err)
	}

	return calendar, nil
}
