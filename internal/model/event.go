package model

import "time"

// ProcessedEvent records a domain event that has already been applied.
type ProcessedEvent struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	EventType   string    `json:"event_type"`
	EntityID    string    `json:"entity_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	ProcessedAt time.Time `json:"processed_at"`
}
