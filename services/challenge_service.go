package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"habitQuestAPI/internal/challenge"
	"habitQuestAPI/internal/events"
	"habitQuestAPI/internal/xp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChallengeService struct {
	db     *pgxpool.Pool
	xp     *XPService
	events *EventBus
}

func NewChallengeService(db *pgxpool.Pool, xpService *XPService, bus *EventBus) *ChallengeService {
	return &ChallengeService{db: db, xp: xpService, events: bus}
}

// UpdateChallengeProgress fans one habit completion out to every active
// participant row of an active challenge whose window contains the
// completion date. Rows are updated independently: a failure on one is
// logged and the rest still get their increment.
func (s *ChallengeService) UpdateChallengeProgress(ctx context.Context, q Querier, userID uuid.UUID, completionDate time.Time, currentStreak, xpEarned int) error {
	if q == nil {
		q = s.db
	}

	// Completion dates are midnight-truncated days, so the window opens at
	// the start date's day, not its timestamp.
	rows, err := q.Query(ctx, `
	SELECT cp.challenge_id, cp.progress, c.target_type, c.target_value, c.xp_reward, c.title
	FROM challenge_participants cp
	JOIN challenges c ON c.id = cp.challenge_id
	WHERE cp.user_id = $1
	  AND cp.state = 'active'
	  AND c.status = 'active'
	  AND date_trunc('day', c.start_date) <= $2
	  AND (c.end_date IS NULL OR c.end_date >= $2)
	`, userID, completionDate)
	if err != nil {
		return fmt.Errorf("failed to query active participants: %w", err)
	}

	type row struct {
		challengeID uuid.UUID
		progress    int
		targetType  challenge.TargetType
		targetValue int
		xpReward    int
		title       string
	}
	var participants []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.challengeID, &r.progress, &r.targetType, &r.targetValue, &r.xpReward, &r.title); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, r)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating participants: %w", err)
	}

	for _, p := range participants {
		inc := challenge.IncrementFor(p.targetType, p.targetValue, p.progress, currentStreak, xpEarned)
		if inc == 0 {
			continue
		}
		newProgress := challenge.ApplyIncrement(p.progress, inc, p.targetValue)

		if newProgress >= p.targetValue {
			err = s.completeParticipant(ctx, q, p.challengeID, userID, newProgress, p.xpReward, p.title)
		} else {
			_, err = q.Exec(ctx, `
			UPDATE challenge_participants SET progress = $3
			WHERE challenge_id = $1 AND user_id = $2 AND state = 'active'
			`, p.challengeID, userID, newProgress)
		}
		if err != nil {
			log.Printf("Failed to update challenge %s progress for user %s: %v", p.challengeID, userID, err)
			continue
		}
	}

	return nil
}

func (s *ChallengeService) completeParticipant(ctx context.Context, q Querier, challengeID, userID uuid.UUID, progress, xpReward int, title string) error {
	// The stored completion time and the payout's ledger key must share one
	// timestamp: the lifecycle sweep later re-derives the key from
	// completed_at, and only an identical day makes its payout a no-op.
	completedAt := time.Now().UTC()

	tag, err := q.Exec(ctx, `
	UPDATE challenge_participants SET progress = $3, state = 'completed', completed_at = $4
	WHERE challenge_id = $1 AND user_id = $2 AND state = 'active'
	`, challengeID, userID, progress, completedAt)
	if err != nil {
		return fmt.Errorf("failed to complete participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Someone else finished this row first; the ledger key would make a
		// second payout a no-op anyway.
		return nil
	}

	if xpReward > 0 {
		_, err = s.xp.AwardXP(ctx, q, userID, xpReward, xp.SourceChallengeComplete, challengeID.String(), completedAt)
		if err != nil {
			return fmt.Errorf("failed to pay challenge reward: %w", err)
		}
	}

	s.events.Publish(ctx, events.New(events.ChallengeCompleted, userID, map[string]any{
		"challengeId": challengeID.String(),
		"title":       title,
		"xpReward":    xpReward,
	}))
	return nil
}

// ProcessExpiredChallenges is the lazy lifecycle sweep, run whenever
// challenges are listed. Upcoming challenges whose start date has passed
// become active; active challenges past their end date are closed, their
// participants classified, and winners paid. Payouts happen after the
// closing transaction commits; the ledger's idempotency key makes a repeat
// payout for an already-paid participant a no-op.
func (s *ChallengeService) ProcessExpiredChallenges(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
	UPDATE challenges SET status = 'active'
	WHERE status = 'upcoming' AND start_date <= NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to promote upcoming challenges: %w", err)
	}

	rows, err := s.db.Query(ctx, `
	SELECT id, title, target_value, xp_reward FROM challenges
	WHERE status = 'active' AND end_date IS NOT NULL AND end_date < NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to query ended challenges: %w", err)
	}

	type ended struct {
		id          uuid.UUID
		title       string
		targetValue int
		xpReward    int
	}
	var endedChallenges []ended
	for rows.Next() {
		var e ended
		if err := rows.Scan(&e.id, &e.title, &e.targetValue, &e.xpReward); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan ended challenge: %w", err)
		}
		endedChallenges = append(endedChallenges, e)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating ended challenges: %w", err)
	}

	for _, e := range endedChallenges {
		if err := s.closeChallenge(ctx, e.id, e.title, e.targetValue, e.xpReward); err != nil {
			log.Printf("Failed to close challenge %s: %v", e.id, err)
		}
	}
	return nil
}

func (s *ChallengeService) closeChallenge(ctx context.Context, challengeID uuid.UUID, title string, targetValue, xpReward int) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
	UPDATE challenges SET status = 'completed' WHERE id = $1 AND status = 'active'
	`, challengeID)
	if err != nil {
		return fmt.Errorf("failed to close challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// A concurrent sweep already closed it.
		return nil
	}

	_, err = tx.Exec(ctx, `
	UPDATE challenge_participants
	SET state = CASE WHEN progress >= $2 THEN 'completed' ELSE 'failed' END,
	    completed_at = CASE WHEN progress >= $2 THEN NOW() ELSE completed_at END
	WHERE challenge_id = $1 AND state = 'active'
	`, challengeID, targetValue)
	if err != nil {
		return fmt.Errorf("failed to classify participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit challenge close: %w", err)
	}

	// Winners are every non-withdrawn participant at or past the target,
	// including ones completed (and possibly paid) before the sweep. The
	// payout key is derived from each winner's completed_at day, so a
	// participant paid on an earlier day repeats that day's key and the
	// ledger absorbs it instead of paying twice.
	rows, err := s.db.Query(ctx, `
	SELECT user_id, completed_at FROM challenge_participants
	WHERE challenge_id = $1 AND state != 'withdrawn' AND progress >= $2
	`, challengeID, targetValue)
	if err != nil {
		return fmt.Errorf("failed to query winners: %w", err)
	}
	type winner struct {
		userID      uuid.UUID
		completedAt *time.Time
	}
	var winners []winner
	for rows.Next() {
		var w winner
		if err := rows.Scan(&w.userID, &w.completedAt); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan winner: %w", err)
		}
		winners = append(winners, w)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating winners: %w", err)
	}

	for _, w := range winners {
		payDate := time.Now().UTC()
		if w.completedAt != nil {
			payDate = *w.completedAt
		}
		if xpReward > 0 {
			_, err := s.xp.AwardXP(ctx, nil, w.userID, xpReward, xp.SourceChallengeComplete, challengeID.String(), payDate)
			if err != nil {
				log.Printf("Failed to pay challenge %s winner %s: %v", challengeID, w.userID, err)
				continue
			}
		}
		s.events.Publish(ctx, events.New(events.ChallengeCompleted, w.userID, map[string]any{
			"challengeId": challengeID.String(),
			"title":       title,
			"xpReward":    xpReward,
		}))
	}
	return nil
}

// GetChallenges lists the catalog with the caller's participation, running
// the lazy sweep first so listed statuses are current.
func (s *ChallengeService) GetChallenges(ctx context.Context, userID uuid.UUID) ([]*challenge.ChallengeWithProgress, error) {
	if err := s.ProcessExpiredChallenges(ctx); err != nil {
		log.Printf("Challenge lifecycle sweep failed: %v", err)
	}

	rows, err := s.db.Query(ctx, `
	SELECT c.id, c.title, c.description, c.target_type, c.target_value, c.difficulty, c.xp_reward,
	       c.start_date, c.end_date, c.status,
	       COALESCE(cp.progress, 0), COALESCE(cp.state, ''), (cp.user_id IS NOT NULL)
	FROM challenges c
	LEFT JOIN challenge_participants cp ON c.id = cp.challenge_id AND cp.user_id = $1
	WHERE c.status IN ('upcoming', 'active')
	ORDER BY c.start_date
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch challenges: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var list []*challenge.ChallengeWithProgress
	for rows.Next() {
		c := &challenge.ChallengeWithProgress{}
		err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.TargetType, &c.TargetValue, &c.Difficulty,
			&c.XPReward, &c.StartDate, &c.EndDate, &c.Status, &c.Progress, &c.ParticipantState, &c.Joined)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		if c.TargetValue > 0 {
			c.ProgressPercent = float64(c.Progress) / float64(c.TargetValue) * 100
		}
		if c.EndDate != nil && c.EndDate.After(now) {
			remaining := c.EndDate.Sub(now)
			c.TimeRemaining = remaining.Round(time.Minute).String()
			c.DaysRemaining = int(remaining.Hours() / 24)
		}
		list = append(list, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}

	if list == nil {
		list = []*challenge.ChallengeWithProgress{}
	}
	return list, nil
}

// JoinChallenge enrolls the user. Re-joining an already-joined challenge is
// a no-op rather than an error.
func (s *ChallengeService) JoinChallenge(ctx context.Context, userID, challengeID uuid.UUID) error {
	var status challenge.Status
	err := s.db.QueryRow(ctx, `SELECT status FROM challenges WHERE id = $1`, challengeID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("challenge not found")
		}
		return fmt.Errorf("failed to get challenge: %w", err)
	}
	if status != challenge.StatusUpcoming && status != challenge.StatusActive {
		return fmt.Errorf("challenge is not open for joining")
	}

	tag, err := s.db.Exec(ctx, `
	INSERT INTO challenge_participants (challenge_id, user_id, progress, state, joined_at)
	VALUES ($1, $2, 0, 'active', NOW())
	ON CONFLICT (challenge_id, user_id) DO NOTHING
	`, challengeID, userID)
	if err != nil {
		return fmt.Errorf("failed to join challenge: %w", err)
	}

	if tag.RowsAffected() > 0 {
		s.events.Publish(ctx, events.New(events.ChallengeJoined, userID, map[string]any{
			"challengeId": challengeID.String(),
		}))
	}
	return nil
}

// LeaveChallenge moves an active participant to withdrawn (terminal).
func (s *ChallengeService) LeaveChallenge(ctx context.Context, userID, challengeID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
	UPDATE challenge_participants SET state = 'withdrawn'
	WHERE challenge_id = $1 AND user_id = $2 AND state = 'active'
	`, challengeID, userID)
	if err != nil {
		return fmt.Errorf("failed to leave challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no active participation found")
	}
	return nil
}

// SeedChallenges upserts the challenge catalog by title at process start,
// outside any open transaction (same constraint as badge seeding).
func (s *ChallengeService) SeedChallenges(ctx context.Context) error {
	// Start dates sit on UTC midnight so a completion logged on launch day
	// falls inside the window.
	now := time.Now().UTC()
	now = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	week := now.AddDate(0, 0, 7)
	month := now.AddDate(0, 1, 0)

	seeds := []challenge.Challenge{
		{Title: "Seven in Seven", Description: "Complete a habit every day this week.", TargetType: challenge.TargetDailyCompletions, TargetValue: 7, Difficulty: "easy", XPReward: 100, StartDate: now, EndDate: &week, Status: challenge.StatusActive},
		{Title: "Streak Builder", Description: "Reach a 14-day streak.", TargetType: challenge.TargetStreakDays, TargetValue: 14, Difficulty: "medium", XPReward: 250, StartDate: now, EndDate: &month, Status: challenge.StatusActive},
		{Title: "XP Rush", Description: "Earn 500 XP this month.", TargetType: challenge.TargetXPGain, TargetValue: 500, Difficulty: "medium", XPReward: 200, StartDate: now, EndDate: &month, Status: challenge.StatusActive},
		{Title: "Grinder", Description: "Log 50 completions, any habit counts.", TargetType: challenge.TargetTotalCompletions, TargetValue: 50, Difficulty: "hard", XPReward: 400, StartDate: now, EndDate: &month, Status: challenge.StatusActive},
	}

	for _, c := range seeds {
		query := `
		INSERT INTO challenges (id, title, description, target_type, target_value, difficulty, xp_reward, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (title) DO NOTHING
		`
		_, err := s.db.Exec(ctx, query, uuid.New(), c.Title, c.Description, c.TargetType, c.TargetValue,
			c.Difficulty, c.XPReward, c.StartDate, c.EndDate, c.Status)
		if err != nil {
			return fmt.Errorf("failed to seed challenge %s: %w", c.Title, err)
		}
	}
	log.Printf("Seeded %d challenges", len(seeds))
	return nil
}
