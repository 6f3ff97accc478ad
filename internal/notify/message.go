// Package notify delivers gamification notifications to connected users and
// records their acknowledgement.
package notify

import (
	"github.com/dukerupert/freelancequest/internal/gamification"
)

// Message types pushed over the real-time channel.
const (
	TypeMissionCompleted = "mission_completed"
	TypeBadgeUnlocked    = "badge_unlocked"
)

// Message is a tagged union discriminated by Type. Mission messages carry
// ProgressID; badge messages carry BadgeID and UserBadgeID. Either id is what
// the client passes back to acknowledge the toast.
type Message struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	XP          int64  `json:"xp,omitempty"`
	Points      int64  `json:"points,omitempty"`
	Level       int    `json:"level,omitempty"`
	LevelUp     bool   `json:"level_up,omitempty"`
	ProgressID  int64  `json:"progress_id,omitempty"`
	BadgeID     int64  `json:"badge_id,omitempty"`
	UserBadgeID int64  `json:"user_badge_id,omitempty"`
}

// Envelope addresses a message to a user across instances.
type Envelope struct {
	ID      string  `json:"id"`
	UserID  int64   `json:"user_id"`
	Message Message `json:"message"`
}

// Messages lists the notifications an outcome produces: each completion
// followed by the badges it unlocked, then badges unlocked by the event
// itself.
func Messages(out *gamification.Outcome) []Message {
	if out == nil || out.Duplicate {
		return nil
	}

	var msgs []Message
	for _, a := range out.Awards {
		msgs = append(msgs, Message{
			Type:        TypeMissionCompleted,
			Title:       a.Mission.Title,
			Description: a.Mission.Description,
			XP:          a.XP,
			Points:      a.Points,
			Level:       a.Level,
			LevelUp:     a.LevelUp,
			ProgressID:  a.Progress.ID,
		})
		for _, b := range a.Badges {
			msgs = append(msgs, badgeMessage(b.ID, b.BadgeID, b.Badge.Name, b.Badge.Description, b.Badge.Icon))
		}
	}
	for _, b := range out.Badges {
		msgs = append(msgs, badgeMessage(b.ID, b.BadgeID, b.Badge.Name, b.Badge.Description, b.Badge.Icon))
	}
	return msgs
}

func badgeMessage(userBadgeID, badgeID int64, name, description, icon string) Message {
	return Message{
		Type:        TypeBadgeUnlocked,
		Title:       name,
		Description: description,
		Icon:        icon,
		BadgeID:     badgeID,
		UserBadgeID: userBadgeID,
	}
}
