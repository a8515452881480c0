package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	XPGained           Type = "XP_GAINED"
	LevelUp            Type = "LEVEL_UP"
	BadgeEarned        Type = "BADGE_EARNED"
	BadgeProgress      Type = "BADGE_PROGRESS"
	ChallengeJoined    Type = "CHALLENGE_JOINED"
	ChallengeCompleted Type = "CHALLENGE_COMPLETED"
)

// Event is a state-change notification delivered synchronously, at least
// once, within the request that triggered it.
type Event struct {
	Type       Type           `json:"type"`
	UserID     uuid.UUID      `json:"userId"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

func New(t Type, userID uuid.UUID, payload map[string]any) Event {
	return Event{
		Type:       t,
		UserID:     userID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}
