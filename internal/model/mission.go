package model

import (
	"time"

	"github.com/dukerupert/freelancequest/internal/cadence"
)

type Mission struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Cadence     cadence.Cadence `json:"cadence"`
	GoalCount   int             `json:"goal_count"`
	XPReward    int             `json:"xp_reward"`
	PointReward int             `json:"point_reward"`
	Triggers    []string        `json:"triggers"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RespondsTo reports whether the mission counts events of the given type.
func (m Mission) RespondsTo(eventType string) bool {
	for _, t := range m.Triggers {
		if t == eventType {
			return true
		}
	}
	return false
}

type MissionProgress struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	MissionID    int64      `json:"mission_id"`
	WindowKey    string     `json:"window_key"`
	WindowStart  *time.Time `json:"window_start"`
	CurrentCount int        `json:"current_count"`
	GoalCount    int        `json:"goal_count"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"completed_at"`
	Seen         bool       `json:"seen"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ProgressWithMission is a progress row joined with its catalog entry, as
// returned to clients.
type ProgressWithMission struct {
	MissionProgress
	Mission Mission `json:"mission"`
}
