package model

import "time"

type Badge struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Rule        string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// BadgeWithStatus is a catalog badge annotated for a single user.
type BadgeWithStatus struct {
	Badge
	Unlocked bool `json:"unlocked"`
}

type UserBadge struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	BadgeID    int64     `json:"badge_id"`
	UnlockedAt time.Time `json:"unlocked_at"`
	Seen       bool      `json:"seen"`
	Badge      Badge     `json:"badge"`
}
