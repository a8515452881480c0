package services

import (
	"context"
	"fmt"
	"time"

	"habitQuestAPI/internal/events"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationService consumes gamification events from the bus and stores
// in-app notifications. No push or email delivery happens here.
type NotificationService struct {
	db *pgxpool.Pool
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	return &NotificationService{db: db}
}

// HandleEvent is subscribed to the event bus in main. Event types without a
// user-facing message are ignored.
func (s *NotificationService) HandleEvent(ctx context.Context, e events.Event) error {
	var title, body string

	switch e.Type {
	case events.LevelUp:
		title = "Level up!"
		body = fmt.Sprintf("You reached level %v.", e.Payload["level"])
	case events.BadgeEarned:
		title = "Badge earned"
		body = fmt.Sprintf("You earned the %v badge.", e.Payload["name"])
	case events.ChallengeCompleted:
		title = "Challenge complete"
		body = fmt.Sprintf("You finished %v and earned %v XP.", e.Payload["title"], e.Payload["xpReward"])
	default:
		return nil
	}

	query := `
	INSERT INTO notifications (id, user_id, type, title, body, is_read, created_at)
	VALUES ($1, $2, $3, $4, $5, false, NOW())
	`
	_, err := s.db.Exec(ctx, query, uuid.New(), e.UserID, string(e.Type), title, body)
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

func (s *NotificationService) GetNotifications(ctx context.Context, clerkID string, limit int) ([]*Notification, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
	SELECT id, user_id, type, title, body, is_read, created_at
	FROM notifications
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	defer rows.Close()

	var list []*Notification
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	if list == nil {
		list = []*Notification{}
	}
	return list, nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, clerkID string) error {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", err)
	}

	_, err = s.db.Exec(ctx, `UPDATE notifications SET is_read = true WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}
