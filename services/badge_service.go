package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"habitQuestAPI/internal/badge"
	"habitQuestAPI/internal/events"
	"habitQuestAPI/internal/xp"
	"habitQuestAPI/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BadgeService struct {
	db     *pgxpool.Pool
	xp     *XPService
	events *EventBus
}

func NewBadgeService(db *pgxpool.Pool, xpService *XPService, bus *EventBus) *BadgeService {
	return &BadgeService{db: db, xp: xpService, events: bus}
}

// BuildEvaluationContext rebuilds the aggregate snapshot the badge metrics
// read from. Nothing here is cached between calls; stored badge progress is
// never an input.
func (s *BadgeService) BuildEvaluationContext(ctx context.Context, userID uuid.UUID) (*badge.EvaluationContext, error) {
	ec := &badge.EvaluationContext{UserID: userID}

	var createdAt time.Time
	var weekStart string
	err := s.db.QueryRow(ctx, `
	SELECT total_xp, week_start, created_at FROM users WHERE id = $1
	`, userID).Scan(&ec.TotalXP, &weekStart, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load user for evaluation: %w", err)
	}
	ec.WeekStart = weekStart
	ec.DaysSinceSignup = int(time.Since(createdAt).Hours() / 24)

	err = s.db.QueryRow(ctx, `
	SELECT COUNT(*) FROM habit_logs WHERE user_id = $1 AND completed = true
	`, userID).Scan(&ec.TotalCompletions)
	if err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}

	weekAnchor := startOfWeek(time.Now().UTC(), weekStart)
	err = s.db.QueryRow(ctx, `
	SELECT COUNT(*) FROM habit_logs
	WHERE user_id = $1 AND completed = true AND log_date >= $2
	`, userID, weekAnchor).Scan(&ec.WeeklyCompletions)
	if err != nil {
		return nil, fmt.Errorf("failed to count weekly completions: %w", err)
	}

	entries, err := s.recentLogEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	ec.CurrentStreak, ec.LongestStreak = utils.CalculateStreaks(entries, time.Now().UTC())

	// PerfectWeeks is never computed anywhere, so perfect-week badges stay
	// unearnable. Known gap, kept as-is rather than silently invented.
	ec.PerfectWeeks = 0

	return ec, nil
}

func (s *BadgeService) recentLogEntries(ctx context.Context, userID uuid.UUID) ([]utils.LogEntry, error) {
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
	return entries, nil
}

// EvaluateAndAwardBadges recomputes every active, not-yet-earned badge for
// the user and returns the badges newly earned by this call. The pass is
// idempotent: only the stored earned flag is trusted, so re-running it with
// the same context changes nothing and returns an empty slice.
func (s *BadgeService) EvaluateAndAwardBadges(ctx context.Context, q Querier, ec *badge.EvaluationContext) ([]*badge.Badge, error) {
	if q == nil {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		earned, evts, err := s.evaluate(ctx, tx, ec)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit badge evaluation: %w", err)
		}
		s.events.Publish(ctx, evts...)
		return earned, nil
	}

	earned, evts, err := s.evaluate(ctx, q, ec)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, evts...)
	return earned, nil
}

type badgeRow struct {
	badge.Badge
	storedProgress int
	storedState    badge.State
}

func (s *BadgeService) evaluate(ctx context.Context, q Querier, ec *badge.EvaluationContext) ([]*badge.Badge, []events.Event, error) {
	rows, err := q.Query(ctx, `
	SELECT b.id, b.name, b.category, b.tier, b.rarity, b.threshold, b.xp_reward, b.metric, b.is_active, b.sort_order,
	       COALESCE(ub.progress, 0), COALESCE(ub.state, 'locked')
	FROM badges b
	LEFT JOIN user_badges ub ON b.id = ub.badge_id AND ub.user_id = $1
	WHERE b.is_active = true
	ORDER BY b.sort_order
	`, ec.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query badge catalog: %w", err)
	}

	var candidates []badgeRow
	for rows.Next() {
		var r badgeRow
		err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.Tier, &r.Rarity, &r.Threshold, &r.XPReward,
			&r.Metric, &r.IsActive, &r.SortOrder, &r.storedProgress, &r.storedState)
		if err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		candidates = append(candidates, r)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating badges: %w", err)
	}

	var newlyEarned []*badge.Badge
	var evts []events.Event
	now := time.Now().UTC()

	for i := range candidates {
		r := &candidates[i]
		if r.storedState == badge.StateEarned {
			// Earned is terminal, never re-evaluated and never reverted.
			continue
		}

		progress := badge.Clamp(badge.ProgressFor(r.Metric, ec), r.Threshold)
		state := badge.NextState(progress, r.Threshold)

		if state == badge.StateEarned {
			err := s.persistBadge(ctx, q, ec.UserID, r.ID, progress, state, &now)
			if err != nil {
				return nil, nil, err
			}
			if r.XPReward > 0 {
				_, err = s.xp.AwardXP(ctx, q, ec.UserID, r.XPReward, xp.SourceBadgeUnlock, r.ID.String(), now)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to pay badge reward for %s: %w", r.Name, err)
				}
			}
			b := r.Badge
			newlyEarned = append(newlyEarned, &b)
			evts = append(evts, events.New(events.BadgeEarned, ec.UserID, map[string]any{
				"badgeId":  r.ID.String(),
				"name":     r.Name,
				"xpReward": r.XPReward,
			}))
			continue
		}

		if progress == r.storedProgress && state == r.storedState {
			continue
		}
		if err := s.persistBadge(ctx, q, ec.UserID, r.ID, progress, state, nil); err != nil {
			return nil, nil, err
		}
		evts = append(evts, events.New(events.BadgeProgress, ec.UserID, map[string]any{
			"badgeId":   r.ID.String(),
			"name":      r.Name,
			"progress":  progress,
			"threshold": r.Threshold,
		}))
	}

	if newlyEarned == nil {
		newlyEarned = []*badge.Badge{}
	}
	return newlyEarned, evts, nil
}

func (s *BadgeService) persistBadge(ctx context.Context, q Querier, userID, badgeID uuid.UUID, progress int, state badge.State, earnedAt *time.Time) error {
	query := `
	INSERT INTO user_badges (user_id, badge_id, progress, state, earned_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id, badge_id)
	DO UPDATE SET progress = $3, state = $4, earned_at = COALESCE(user_badges.earned_at, $5)
	`
	_, err := q.Exec(ctx, query, userID, badgeID, progress, state, earnedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user badge: %w", err)
	}
	return nil
}

// GetBadges returns the catalog with the user's per-badge status, grouped
// by category, with earned / in-progress counts for the header UI.
func (s *BadgeService) GetBadges(ctx context.Context, userID uuid.UUID) (map[string][]*badge.BadgeWithStatus, map[string]int, error) {
	rows, err := s.db.Query(ctx, `
	SELECT b.id, b.name, b.category, b.tier, b.rarity, b.threshold, b.xp_reward, b.metric, b.is_active, b.sort_order,
	       COALESCE(ub.progress, 0), COALESCE(ub.state, 'locked'), ub.earned_at
	FROM badges b
	LEFT JOIN user_badges ub ON b.id = ub.badge_id AND ub.user_id = $1
	WHERE b.is_active = true
	ORDER BY b.category, b.sort_order
	`, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch badges: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string][]*badge.BadgeWithStatus)
	counts := map[string]int{"earned": 0, "in_progress": 0}
	for rows.Next() {
		b := &badge.BadgeWithStatus{}
		err := rows.Scan(&b.ID, &b.Name, &b.Category, &b.Tier, &b.Rarity, &b.Threshold, &b.XPReward,
			&b.Metric, &b.IsActive, &b.SortOrder, &b.Progress, &b.State, &b.EarnedAt)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		grouped[b.Category] = append(grouped[b.Category], b)
		switch b.State {
		case badge.StateEarned:
			counts["earned"]++
		case badge.StateInProgress:
			counts["in_progress"]++
		}
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating badges: %w", err)
	}

	return grouped, counts, nil
}

// SeedBadges upserts the badge catalog by name. It must run at process
// start outside any open transaction; seeding inside one risks
// self-deadlock against the same tables.
func (s *BadgeService) SeedBadges(ctx context.Context) error {
	for _, b := range defaultBadges {
		query := `
		INSERT INTO badges (id, name, category, tier, rarity, threshold, xp_reward, metric, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name)
		DO UPDATE SET category = $3, tier = $4, rarity = $5, threshold = $6, xp_reward = $7, metric = $8, is_active = $9, sort_order = $10
		`
		_, err := s.db.Exec(ctx, query, uuid.New(), b.Name, b.Category, b.Tier, b.Rarity,
			b.Threshold, b.XPReward, b.Metric, b.IsActive, b.SortOrder)
		if err != nil {
			return fmt.Errorf("failed to seed badge %s: %w", b.Name, err)
		}
	}
	log.Printf("Seeded %d badges", len(defaultBadges))
	return nil
}

// startOfWeek returns the most recent week boundary (UTC midnight) for the
// user's week-start preference.
func startOfWeek(now time.Time, weekStart string) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	anchor := time.Monday
	if weekStart == "sunday" {
		anchor = time.Sunday
	}
	for day.Weekday() != anchor {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

var defaultBadges = []badge.Badge{
	{Name: "First Step", Category: "milestones", Tier: 1, Rarity: "common", Threshold: 1, XPReward: 10, Metric: badge.MetricTotalCompletions, IsActive: true, SortOrder: 1},
	{Name: "Committed", Category: "milestones", Tier: 2, Rarity: "common", Threshold: 25, XPReward: 30, Metric: badge.MetricTotalCompletions, IsActive: true, SortOrder: 2},
	{Name: "Centurion", Category: "milestones", Tier: 3, Rarity: "rare", Threshold: 100, XPReward: 100, Metric: badge.MetricTotalCompletions, IsActive: true, SortOrder: 3},
	{Name: "Spark", Category: "streaks", Tier: 1, Rarity: "common", Threshold: 3, XPReward: 15, Metric: badge.MetricCurrentStreak, IsActive: true, SortOrder: 4},
	{Name: "Flame", Category: "streaks", Tier: 2, Rarity: "common", Threshold: 7, XPReward: 50, Metric: badge.MetricCurrentStreak, IsActive: true, SortOrder: 5},
	{Name: "Inferno", Category: "streaks", Tier: 3, Rarity: "rare", Threshold: 30, XPReward: 150, Metric: badge.MetricCurrentStreak, IsActive: true, SortOrder: 6},
	{Name: "Marathon", Category: "streaks", Tier: 4, Rarity: "epic", Threshold: 100, XPReward: 500, Metric: badge.MetricLongestStreak, IsActive: true, SortOrder: 7},
	{Name: "Full Week", Category: "weekly", Tier: 1, Rarity: "common", Threshold: 7, XPReward: 25, Metric: badge.MetricWeeklyCompletions, IsActive: true, SortOrder: 8},
	{Name: "Collector", Category: "xp", Tier: 1, Rarity: "common", Threshold: 500, XPReward: 50, Metric: badge.MetricTotalXP, IsActive: true, SortOrder: 9},
	{Name: "Hoarder", Category: "xp", Tier: 2, Rarity: "rare", Threshold: 5000, XPReward: 200, Metric: badge.MetricTotalXP, IsActive: true, SortOrder: 10},
	{Name: "Perfectionist", Category: "weekly", Tier: 2, Rarity: "epic", Threshold: 4, XPReward: 200, Metric: badge.MetricPerfectWeeks, IsActive: true, SortOrder: 11},
	{Name: "Founder", Category: "special", Tier: 1, Rarity: "legendary", Threshold: 1, XPReward: 0, Metric: badge.MetricManual, IsActive: true, SortOrder: 12},
}
