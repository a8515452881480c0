package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habitQuestAPI/internal/user"
	"habitQuestAPI/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserService struct {
	db *pgxpool.Pool
}

func NewUserService(db *pgxpool.Pool) *UserService {
	return &UserService{db: db}
}

func (s *UserService) CreateUser(ctx context.Context, req *user.CreateUserRequest) (*user.User, error) {
	u := &user.User{
		ID:        uuid.New(),
		ClerkID:   req.ClerkID,
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		ImageURL:  req.ImageURL,
		WeekStart: user.WeekStartMonday,
		Level:     1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	query := `
	INSERT INTO users (id, clerk_id, email, username, first_name, last_name, image_url, total_xp, level, week_start, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 1, $8, $9, $10)
	RETURNING id, clerk_id, email, username, first_name, last_name, image_url, email_verified, total_xp, level, week_start, created_at, updated_at
	`

	err := s.db.QueryRow(
		ctx,
		query,
		u.ID,
		u.ClerkID,
		u.Email,
		u.Username,
		u.FirstName,
		u.LastName,
		u.ImageURL,
		u.WeekStart,
		u.CreatedAt,
		u.UpdatedAt,
	).Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.EmailVerified,
		&u.TotalXP,
		&u.Level,
		&u.WeekStart,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	query := `
	SELECT id, clerk_id, email, username, first_name, last_name, image_url, email_verified, total_xp, level, week_start, created_at, updated_at
	FROM users
	WHERE clerk_id = $1
	`

	u := &user.User{}
	err := s.db.QueryRow(ctx, query, clerkID).Scan(
		&u.ID,
		&u.ClerkID,
		&u.Email,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.EmailVerified,
		&u.TotalXP,
		&u.Level,
		&u.WeekStart,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return u, nil
}

func (s *UserService) UpdateProfileByClerkID(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	weekStart := ""
	if req.WeekStart != nil {
		if *req.WeekStart != user.WeekStartMonday && *req.WeekStart != user.WeekStartSunday {
			return nil, fmt.Errorf("invalid week start: %s", *req.WeekStart)
		}
		weekStart = string(*req.WeekStart)
	}

	query := `
	UPDATE users SET
		username = COALESCE(NULLIF($2, ''), username),
		first_name = COALESCE(NULLIF($3, ''), first_name),
		last_name = COALESCE(NULLIF($4, ''), last_name),
		image_url = COALESCE(NULLIF($5, ''), image_url),
		week_start = COALESCE(NULLIF($6, ''), week_start),
		updated_at = NOW()
	WHERE clerk_id = $1
	`
	_, err := s.db.Exec(ctx, query, clerkID, req.Username, req.FirstName, req.LastName, req.ImageURL, weekStart)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return s.GetUserByClerkID(ctx, clerkID)
}

func (s *UserService) DeleteUserByClerkID(ctx context.Context, clerkID string) error {
	// XP transactions, habit logs and user badges cascade with the row.
	result, err := s.db.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

func (s *UserService) UpdateEmailVerification(ctx context.Context, clerkID string, verified bool) error {
	query := `
	UPDATE users SET email_verified = $2, updated_at = NOW()
	WHERE clerk_id = $1
	`
	_, err := s.db.Exec(ctx, query, clerkID, verified)
	return err
}

// GetUserStats aggregates the profile header numbers: streaks from the log
// history, completion counts, cached XP/level and the distance to the next
// level.
func (s *UserService) GetUserStats(ctx context.Context, clerkID string) (*user.UserStats, error) {
	u, err := s.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	userID := u.ID

	stats := &user.UserStats{
		TotalXP:        u.TotalXP,
		Level:          u.Level,
		XPForNextLevel: utils.XPForLevel(u.Level + 1),
	}

	query := `
	SELECT
		COALESCE(COUNT(*) FILTER (WHERE hl.completed = true), 0) AS total_completions,
		COALESCE(COUNT(*) FILTER (WHERE hl.completed = true AND hl.log_date >= $2), 0) AS weekly_completions
	FROM habit_logs hl
	WHERE hl.user_id = $1
	`
	weekAnchor := startOfWeek(time.Now().UTC(), string(u.WeekStart))
	err = s.db.QueryRow(ctx, query, userID, weekAnchor).Scan(&stats.TotalCompletions, &stats.WeeklyCompletions)
	if err != nil {
		return nil, fmt.Errorf("failed to get completion stats: %w", err)
	}

	err = s.db.QueryRow(ctx, `
	SELECT COUNT(*) FROM user_badges WHERE user_id = $1 AND state = 'earned'
	`, userID).Scan(&stats.BadgesEarned)
	if err != nil {
		return nil, fmt.Errorf("failed to count earned badges: %w", err)
	}

	err = s.db.QueryRow(ctx, `
	SELECT COUNT(*) FROM challenge_participants WHERE user_id = $1 AND state = 'active'
	`, userID).Scan(&stats.ActiveChallenges)
	if err != nil {
		return nil, fmt.Errorf("failed to count active challenges: %w", err)
	}

	rows, err := s.db.Query(ctx, `
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

	stats.CurrentStreak, stats.LongestStreak = utils.CalculateStreaks(entries, time.Now().UTC())
	return stats, nil
}
