package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitQuestAPI/internal/habit"
	"habitQuestAPI/internal/xp"
	"habitQuestAPI/services"
	"habitQuestAPI/tests/helpers"
)

type gamificationEnv struct {
	pool       *pgxpool.Pool
	users      *services.UserService
	habits     *services.HabitService
	xp         *services.XPService
	challenges *services.ChallengeService
}

func setupGamification(t *testing.T) *gamificationEnv {
	pool := helpers.SetupTestDB(t)

	eventBus := services.NewEventBus()
	userService := services.NewUserService(pool)
	xpService := services.NewXPService(pool, eventBus)
	badgeService := services.NewBadgeService(pool, xpService, eventBus)
	challengeService := services.NewChallengeService(pool, xpService, eventBus)
	habitService := services.NewHabitService(pool, xpService, badgeService, challengeService)

	require.NoError(t, badgeService.SeedBadges(context.Background()))

	return &gamificationEnv{
		pool:       pool,
		users:      userService,
		habits:     habitService,
		xp:         xpService,
		challenges: challengeService,
	}
}

func TestAwardXPIdempotent(t *testing.T) {
	env := setupGamification(t)
	defer helpers.CleanupTestDB(t, env.pool)

	clerkID := "user_test_" + time.Now().Format("20060102150405")
	u := helpers.CreateTestUser(t, env.users, clerkID)
	userID := u.ID

	ctx := context.Background()
	date := time.Now().UTC()

	first, err := env.xp.AwardXP(ctx, nil, userID, 25, xp.SourceHabitComplete, "habit-x", date)
	require.NoError(t, err)
	assert.True(t, first.Awarded)
	assert.Equal(t, 25, first.Amount)
	assert.Equal(t, 25, first.NewTotalXP)

	// Same user, source, entity and day: the second award is a no-op.
	second, err := env.xp.AwardXP(ctx, nil, userID, 25, xp.SourceHabitComplete, "habit-x", date)
	require.NoError(t, err)
	assert.False(t, second.Awarded)
	assert.Equal(t, 0, second.Amount)
	assert.Equal(t, 25, second.NewTotalXP, "balance unchanged by the duplicate")

	// A different day is a different key and awards again.
	third, err := env.xp.AwardXP(ctx, nil, userID, 25, xp.SourceHabitComplete, "habit-x", date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, third.Awarded)
	assert.Equal(t, 50, third.NewTotalXP)

	txns, err := env.xp.GetTransactions(ctx, userID, 10)
	require.NoError(t, err)
	assert.Len(t, txns, 2, "only two ledger rows despite three award calls")
}

func TestLogHabitSameDayIsIdempotent(t *testing.T) {
	env := setupGamification(t)
	defer helpers.CleanupTestDB(t, env.pool)

	clerkID := "user_test_" + time.Now().Format("20060102150405")
	helpers.CreateTestUser(t, env.users, clerkID)

	ctx := context.Background()
	h, err := env.habits.CreateHabit(ctx, clerkID, &habit.CreateHabitRequest{Name: "Morning run"})
	require.NoError(t, err)

	today := time.Now().UTC().Format("2006-01-02")

	first, err := env.habits.CompleteHabit(ctx, clerkID, &habit.LogHabitRequest{HabitID: h.ID.String(), Date: today})
	require.NoError(t, err)
	assert.False(t, first.AlreadyCompleted)
	assert.Equal(t, 11, first.XPEarned, "base 10 plus streak bonus 1")
	assert.Equal(t, 1, first.Streak.Current)

	second, err := env.habits.CompleteHabit(ctx, clerkID, &habit.LogHabitRequest{HabitID: h.ID.String(), Date: today})
	require.NoError(t, err)
	assert.True(t, second.AlreadyCompleted)
	assert.Equal(t, 0, second.XPEarned, "no XP for the duplicate log")
	assert.Equal(t, first.NewTotalXP, second.NewTotalXP)
}

func TestSevenDayStreakEarnsBadgeOnce(t *testing.T) {
	env := setupGamification(t)
	defer helpers.CleanupTestDB(t, env.pool)

	clerkID := "user_test_" + time.Now().Format("20060102150405")
	u := helpers.CreateTestUser(t, env.users, clerkID)
	userID := u.ID

	ctx := context.Background()
	h, err := env.habits.CreateHabit(ctx, clerkID, &habit.CreateHabitRequest{Name: "Read"})
	require.NoError(t, err)

	// Log seven consecutive days ending today.
	today := time.Now().UTC()
	var last *habit.LogResult
	for i := 6; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		last, err = env.habits.CompleteHabit(ctx, clerkID, &habit.LogHabitRequest{HabitID: h.ID.String(), Date: date})
		require.NoError(t, err)
	}

	assert.Equal(t, 7, last.Streak.Current)
	assert.Contains(t, last.NewBadges, "Flame", "the 7-day streak badge lands on the seventh log")

	// Earned once: exactly one earned row and one reward ledger entry for it.
	var earnedCount int
	err = env.pool.QueryRow(ctx, `
	SELECT COUNT(*) FROM user_badges ub
	JOIN badges b ON b.id = ub.badge_id
	WHERE ub.user_id = $1 AND b.name = 'Flame' AND ub.state = 'earned'
	`, userID).Scan(&earnedCount)
	require.NoError(t, err)
	assert.Equal(t, 1, earnedCount)

	var rewardCount int
	err = env.pool.QueryRow(ctx, `
	SELECT COUNT(*) FROM xp_transactions
	WHERE user_id = $1 AND source = 'badge_unlock'
	  AND source_id = (SELECT id::text FROM badges WHERE name = 'Flame')
	`, userID).Scan(&rewardCount)
	require.NoError(t, err)
	assert.Equal(t, 1, rewardCount, "badge reward is paid exactly once")
}

func TestChallengeProgressAndCompletion(t *testing.T) {
	env := setupGamification(t)
	defer helpers.CleanupTestDB(t, env.pool)

	clerkID := "user_test_" + time.Now().Format("20060102150405")
	u := helpers.CreateTestUser(t, env.users, clerkID)
	userID := u.ID

	ctx := context.Background()

	// Insert a short active challenge whose window covers the logged days.
	challengeID := uuid.New()
	_, err := env.pool.Exec(ctx, `
	INSERT INTO challenges (id, title, description, target_type, target_value, difficulty, xp_reward, start_date, end_date, status)
	VALUES ($1, $2, '', 'daily_completions', 3, 'easy', 50, NOW() - INTERVAL '4 days', NOW() + INTERVAL '7 days', 'active')
	`, challengeID, "test-challenge-"+challengeID.String()[:8])
	require.NoError(t, err)
	defer env.pool.Exec(ctx, `DELETE FROM challenges WHERE id = $1`, challengeID)

	require.NoError(t, env.challenges.JoinChallenge(ctx, userID, challengeID))

	h, err := env.habits.CreateHabit(ctx, clerkID, &habit.CreateHabitRequest{Name: "Meditate"})
	require.NoError(t, err)

	today := time.Now().UTC()
	for i := 2; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		_, err = env.habits.CompleteHabit(ctx, clerkID, &habit.LogHabitRequest{HabitID: h.ID.String(), Date: date})
		require.NoError(t, err)
	}

	var progress int
	var state string
	err = env.pool.QueryRow(ctx, `
	SELECT progress, state FROM challenge_participants
	WHERE challenge_id = $1 AND user_id = $2
	`, challengeID, userID).Scan(&progress, &state)
	require.NoError(t, err)
	assert.Equal(t, 3, progress)
	assert.Equal(t, "completed", state)

	// Completion pays the reward through the ledger, exactly once.
	var rewardCount int
	err = env.pool.QueryRow(ctx, `
	SELECT COUNT(*) FROM xp_transactions
	WHERE user_id = $1 AND source = 'challenge_complete' AND source_id = $2
	`, userID, challengeID.String()).Scan(&rewardCount)
	require.NoError(t, err)
	assert.Equal(t, 1, rewardCount)
}

func TestJoinChallengeTwiceIsNoOp(t *testing.T) {
	env := setupGamification(t)
	defer helpers.CleanupTestDB(t, env.pool)

	clerkID := "user_test_" + time.Now().Format("20060102150405")
	u := helpers.CreateTestUser(t, env.users, clerkID)
	userID := u.ID

	ctx := context.Background()

	challengeID := uuid.New()
	_, err := env.pool.Exec(ctx, `
	INSERT INTO challenges (id, title, description, target_type, target_value, difficulty, xp_reward, start_date, end_date, status)
	VALUES ($1, $2, '', 'total_completions', 10, 'easy', 25, NOW(), NOW() + INTERVAL '7 days', 'active')
	`, challengeID, "test-rejoin-"+challengeID.String()[:8])
	require.NoError(t, err)
	defer env.pool.Exec(ctx, `DELETE FROM challenges WHERE id = $1`, challengeID)

	require.NoError(t, env.challenges.JoinChallenge(ctx, userID, challengeID))
	require.NoError(t, env.challenges.JoinChallenge(ctx, userID, challengeID), "re-joining is not an error")

	var count int
	err = env.pool.QueryRow(ctx, `
	SELECT COUNT(*) FROM challenge_participants WHERE challenge_id = $1 AND user_id = $2
	`, challengeID, userID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChallengeWindowOpensOnStartDay(t *testing.T) {
	env := setupGamification(t)
	defer helpers.CleanupTestDB(t, env.pool)

	clerkID := "user_test_" + time.Now().Format("20060102150405")
	u := helpers.CreateTestUser(t, env.users, clerkID)
	userID := u.ID

	ctx := context.Background()

	// Start date is mid-day NOW(); a completion logged today lands on the
	// midnight-truncated day and must still fall inside the window.
	challengeID := uuid.New()
	_, err := env.pool.Exec(ctx, `
	INSERT INTO challenges (id, title, description, target_type, target_value, difficulty, xp_reward, start_date, end_date, status)
	VALUES ($1, $2, '', 'daily_completions', 3, 'easy', 50, NOW(), NOW() + INTERVAL '7 days', 'active')
	`, challengeID, "test-launch-"+challengeID.String()[:8])
	require.NoError(t, err)
	defer env.pool.Exec(ctx, `DELETE FROM challenges WHERE id = $1`, challengeID)

	require.NoError(t, env.challenges.JoinChallenge(ctx, userID, challengeID))

	h, err := env.habits.CreateHabit(ctx, clerkID, &habit.CreateHabitRequest{Name: "Stretch"})
	require.NoError(t, err)

	today := time.Now().UTC().Format("2006-01-02")
	_, err = env.habits.CompleteHabit(ctx, clerkID, &habit.LogHabitRequest{HabitID: h.ID.String(), Date: today})
	require.NoError(t, err)

	var progress int
	err = env.pool.QueryRow(ctx, `
	SELECT progress FROM challenge_participants WHERE challenge_id = $1 AND user_id = $2
	`, challengeID, userID).Scan(&progress)
	require.NoError(t, err)
	assert.Equal(t, 1, progress, "a completion on the launch day counts")
}

func TestSweepDoesNotRepayEarlierWinner(t *testing.T) {
	env := setupGamification(t)
	defer helpers.CleanupTestDB(t, env.pool)

	clerkID := "user_test_" + time.Now().Format("20060102150405")
	u := helpers.CreateTestUser(t, env.users, clerkID)
	userID := u.ID

	ctx := context.Background()

	challengeID := uuid.New()
	_, err := env.pool.Exec(ctx, `
	INSERT INTO challenges (id, title, description, target_type, target_value, difficulty, xp_reward, start_date, end_date, status)
	VALUES ($1, $2, '', 'daily_completions', 1, 'easy', 50, NOW() - INTERVAL '10 days', NOW() + INTERVAL '1 hour', 'active')
	`, challengeID, "test-early-win-"+challengeID.String()[:8])
	require.NoError(t, err)
	defer env.pool.Exec(ctx, `DELETE FROM challenges WHERE id = $1`, challengeID)

	require.NoError(t, env.challenges.JoinChallenge(ctx, userID, challengeID))

	// Finish through the normal pipeline; the reward is paid with a ledger
	// key derived from the completion timestamp.
	h, err := env.habits.CreateHabit(ctx, clerkID, &habit.CreateHabitRequest{Name: "Journal"})
	require.NoError(t, err)
	today := time.Now().UTC().Format("2006-01-02")
	_, err = env.habits.CompleteHabit(ctx, clerkID, &habit.LogHabitRequest{HabitID: h.ID.String(), Date: today})
	require.NoError(t, err)

	// Shift the completion (and its ledger row) three days into the past so
	// the sweep runs on a different calendar day than the original payout.
	threeDaysAgo := time.Now().UTC().AddDate(0, 0, -3)
	_, err = env.pool.Exec(ctx, `
	UPDATE challenge_participants SET completed_at = $3
	WHERE challenge_id = $1 AND user_id = $2
	`, challengeID, userID, threeDaysAgo)
	require.NoError(t, err)
	oldKey := xp.IdempotencyKey(userID, xp.SourceChallengeComplete, challengeID.String(), threeDaysAgo)
	_, err = env.pool.Exec(ctx, `
	UPDATE xp_transactions SET idempotency_key = $3, created_at = $4
	WHERE user_id = $1 AND source = 'challenge_complete' AND source_id = $2
	`, userID, challengeID.String(), oldKey, threeDaysAgo)
	require.NoError(t, err)

	_, err = env.pool.Exec(ctx, `UPDATE challenges SET end_date = NOW() - INTERVAL '1 hour' WHERE id = $1`, challengeID)
	require.NoError(t, err)
	require.NoError(t, env.challenges.ProcessExpiredChallenges(ctx))

	var rewardCount int
	err = env.pool.QueryRow(ctx, `
	SELECT COUNT(*) FROM xp_transactions
	WHERE user_id = $1 AND source = 'challenge_complete' AND source_id = $2
	`, userID, challengeID.String()).Scan(&rewardCount)
	require.NoError(t, err)
	assert.Equal(t, 1, rewardCount, "the sweep repeats the original day's key instead of paying a second time")
}

func TestLifecycleSweepClosesEndedChallenges(t *testing.T) {
	env := setupGamification(t)
	defer helpers.CleanupTestDB(t, env.pool)

	ctx := context.Background()
	stamp := time.Now().Format("20060102150405")
	winner := helpers.CreateTestUser(t, env.users, "user_test_win_"+stamp)
	loser := helpers.CreateTestUser(t, env.users, "user_test_lose_"+stamp)

	// One challenge past its end date, one upcoming whose start has passed.
	endedID := uuid.New()
	_, err := env.pool.Exec(ctx, `
	INSERT INTO challenges (id, title, description, target_type, target_value, difficulty, xp_reward, start_date, end_date, status)
	VALUES ($1, $2, '', 'total_completions', 5, 'medium', 40, NOW() - INTERVAL '7 days', NOW() - INTERVAL '1 hour', 'active')
	`, endedID, "test-ended-"+endedID.String()[:8])
	require.NoError(t, err)
	defer env.pool.Exec(ctx, `DELETE FROM challenges WHERE id = $1`, endedID)

	upcomingID := uuid.New()
	_, err = env.pool.Exec(ctx, `
	INSERT INTO challenges (id, title, description, target_type, target_value, difficulty, xp_reward, start_date, end_date, status)
	VALUES ($1, $2, '', 'total_completions', 10, 'easy', 25, NOW() - INTERVAL '1 hour', NOW() + INTERVAL '7 days', 'upcoming')
	`, upcomingID, "test-upcoming-"+upcomingID.String()[:8])
	require.NoError(t, err)
	defer env.pool.Exec(ctx, `DELETE FROM challenges WHERE id = $1`, upcomingID)

	require.NoError(t, env.challenges.JoinChallenge(ctx, winner.ID, endedID))
	require.NoError(t, env.challenges.JoinChallenge(ctx, loser.ID, endedID))

	_, err = env.pool.Exec(ctx, `
	UPDATE challenge_participants SET progress = 5 WHERE challenge_id = $1 AND user_id = $2
	`, endedID, winner.ID)
	require.NoError(t, err)
	_, err = env.pool.Exec(ctx, `
	UPDATE challenge_participants SET progress = 2 WHERE challenge_id = $1 AND user_id = $2
	`, endedID, loser.ID)
	require.NoError(t, err)

	require.NoError(t, env.challenges.ProcessExpiredChallenges(ctx))

	var status string
	err = env.pool.QueryRow(ctx, `SELECT status FROM challenges WHERE id = $1`, upcomingID).Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, "active", status, "upcoming challenge past its start date is promoted")

	err = env.pool.QueryRow(ctx, `SELECT status FROM challenges WHERE id = $1`, endedID).Scan(&status)
	require.NoError(t, err)
	assert.Equal(t, "completed", status)

	var state string
	var completedAt *time.Time
	err = env.pool.QueryRow(ctx, `
	SELECT state, completed_at FROM challenge_participants WHERE challenge_id = $1 AND user_id = $2
	`, endedID, winner.ID).Scan(&state, &completedAt)
	require.NoError(t, err)
	assert.Equal(t, "completed", state)
	assert.NotNil(t, completedAt)

	err = env.pool.QueryRow(ctx, `
	SELECT state, completed_at FROM challenge_participants WHERE challenge_id = $1 AND user_id = $2
	`, endedID, loser.ID).Scan(&state, &completedAt)
	require.NoError(t, err)
	assert.Equal(t, "failed", state)

	countRewards := func(userID uuid.UUID) int {
		var n int
		err := env.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM xp_transactions
		WHERE user_id = $1 AND source = 'challenge_complete' AND source_id = $2
		`, userID, endedID.String()).Scan(&n)
		require.NoError(t, err)
		return n
	}
	assert.Equal(t, 1, countRewards(winner.ID), "winner paid exactly once")
	assert.Equal(t, 0, countRewards(loser.ID), "failed participant gets nothing")

	// Running the sweep again must not produce a second payout.
	require.NoError(t, env.challenges.ProcessExpiredChallenges(ctx))
	assert.Equal(t, 1, countRewards(winner.ID))
}
