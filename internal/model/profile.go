package model

import "time"

type Profile struct {
	UserID    int64     `json:"user_id"`
	XP        int64     `json:"xp"`
	Level     int       `json:"level"`
	Points    int64     `json:"points"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LeaderboardEntry struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Level    int    `json:"level"`
	XP       int64  `json:"xp"`
	Points   int64  `json:"points"`
}

// Stats is the aggregate gamification state badge rules are evaluated over.
type Stats struct {
	UserID             int64
	XP                 int64
	Level              int
	Points             int64
	MissionsCompleted  int
	CompletedByCadence map[string]int
	CompletedByMission map[string]int
	EventCounts        map[string]int
}
