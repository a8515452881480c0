package services

import (
	"context"
	"fmt"
	"time"

	"habitQuestAPI/internal/events"
	"habitQuestAPI/internal/xp"
	"habitQuestAPI/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// XPService is the append-only XP ledger. Every XP mutation in the system
// goes through AwardXP, which is idempotent per (user, source, entity, UTC
// day) and keeps the user's cached total and level in sync with the ledger.
type XPService struct {
	db     *pgxpool.Pool
	events *EventBus
}

func NewXPService(db *pgxpool.Pool, bus *EventBus) *XPService {
	return &XPService{db: db, events: bus}
}

// AwardXP appends one ledger entry and updates the cached total/level. A
// duplicate award (same idempotency key) returns Awarded=false with the
// current total and is not an error; a lost insert race is handled the
// same way. Pass q to join a caller's transaction, or nil to let the
// ledger open and commit its own.
func (s *XPService) AwardXP(ctx context.Context, q Querier, userID uuid.UUID, amount int, source xp.Source, sourceID string, date time.Time) (*xp.AwardResult, error) {
	if q == nil {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		result, err := s.awardXP(ctx, tx, userID, amount, source, sourceID, date)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit xp award: %w", err)
		}
		s.publishAward(ctx, userID, source, sourceID, result)
		return result, nil
	}

	result, err := s.awardXP(ctx, q, userID, amount, source, sourceID, date)
	if err != nil {
		return nil, err
	}
	s.publishAward(ctx, userID, source, sourceID, result)
	return result, nil
}

func (s *XPService) awardXP(ctx context.Context, q Querier, userID uuid.UUID, amount int, source xp.Source, sourceID string, date time.Time) (*xp.AwardResult, error) {
	key := xp.IdempotencyKey(userID, source, sourceID, date)

	// The conflict target is the whole duplicate guard: a retry, a repeated
	// request or a concurrent identical award all collapse into zero inserted
	// rows, without aborting an enclosing transaction.
	insertQuery := `
	INSERT INTO xp_transactions (id, user_id, amount, source, source_id, idempotency_key, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW())
	ON CONFLICT (idempotency_key) DO NOTHING
	`
	tag, err := q.Exec(ctx, insertQuery, uuid.New(), userID, amount, source, sourceID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to insert xp transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.currentState(ctx, q, userID)
	}

	var newTotal int
	err = q.QueryRow(ctx, `
	UPDATE users SET total_xp = total_xp + $2, updated_at = NOW()
	WHERE id = $1
	RETURNING total_xp
	`, userID, amount).Scan(&newTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to update user total xp: %w", err)
	}

	oldLevel := utils.LevelFromXP(newTotal - amount)
	newLevel := utils.LevelFromXP(newTotal)
	if newLevel != oldLevel {
		_, err = q.Exec(ctx, `UPDATE users SET level = $2 WHERE id = $1`, userID, newLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to update user level: %w", err)
		}
	}

	return &xp.AwardResult{
		Awarded:    true,
		Amount:     amount,
		NewTotalXP: newTotal,
		NewLevel:   newLevel,
		LeveledUp:  newLevel > oldLevel,
	}, nil
}

// currentState resolves the no-op path: the award already exists, so the
// caller just needs the user's present total and level.
func (s *XPService) currentState(ctx context.Context, q Querier, userID uuid.UUID) (*xp.AwardResult, error) {
	var total, level int
	err := q.QueryRow(ctx, `SELECT total_xp, level FROM users WHERE id = $1`, userID).Scan(&total, &level)
	if err != nil {
		return nil, fmt.Errorf("failed to read user xp state: %w", err)
	}
	return &xp.AwardResult{
		Awarded:    false,
		Amount:     0,
		NewTotalXP: total,
		NewLevel:   level,
		LeveledUp:  false,
	}, nil
}

func (s *XPService) publishAward(ctx context.Context, userID uuid.UUID, source xp.Source, sourceID string, result *xp.AwardResult) {
	if s.events == nil || !result.Awarded {
		return
	}
	evts := []events.Event{
		events.New(events.XPGained, userID, map[string]any{
			"amount":   result.Amount,
			"source":   string(source),
			"sourceId": sourceID,
			"totalXp":  result.NewTotalXP,
		}),
	}
	if result.LeveledUp {
		evts = append(evts, events.New(events.LevelUp, userID, map[string]any{
			"level":   result.NewLevel,
			"totalXp": result.NewTotalXP,
		}))
	}
	s.events.Publish(ctx, evts...)
}

// GetTransactions exposes the ledger for later querying, newest first.
func (s *XPService) GetTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*xp.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
	SELECT id, user_id, amount, source, COALESCE(source_id, ''), idempotency_key, created_at
	FROM xp_transactions
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query xp transactions: %w", err)
	}
	defer rows.Close()

	var txns []*xp.Transaction
	for rows.Next() {
		t := &xp.Transaction{}
		err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Source, &t.SourceID, &t.IdempotencyKey, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan xp transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating xp transactions: %w", err)
	}

	if txns == nil {
		txns = []*xp.Transaction{}
	}
	return txns, nil
}
