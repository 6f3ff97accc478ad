package gamification

import (
	"errors"
	"time"

	"github.com/dukerupert/freelancequest/internal/model"
)

// Event types understood by the default catalog.
const (
	EventUserLoggedIn         = "user_logged_in"
	EventGigCreated           = "gig_created"
	EventApplicationSubmitted = "application_submitted"
	EventSubmissionCreated    = "submission_created"
	EventReviewWritten        = "review_written"
	EventReviewReceived       = "review_received"
	EventGigCompleted         = "gig_completed"
	EventChatMessageSent      = "chat_message_sent"

	// EventMissionCompleted is emitted internally for every settled mission
	// so that missions and badges can count completions.
	EventMissionCompleted = "mission_completed"
)

var (
	ErrInvalidEvent  = errors.New("invalid event")
	ErrReservedEvent = errors.New("event type is reserved for internal use")
)

// Event is a domain signal from an external collaborator. EntityID identifies
// the acted-upon entity (an application, a review, a gig) and is what makes
// redelivery of the same action idempotent. OccurredAt is recorded in the
// event ledger; progress windows follow the time the event is processed.
type Event struct {
	UserID     int64     `json:"user_id"`
	Type       string    `json:"event_type"`
	EntityID   string    `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e Event) validate() error {
	if e.UserID <= 0 || e.Type == "" || e.EntityID == "" {
		return ErrInvalidEvent
	}
	if e.Type == EventMissionCompleted {
		return ErrReservedEvent
	}
	return nil
}

// AwardResult describes the side effects of settling one mission.
type AwardResult struct {
	Progress      model.MissionProgress `json:"progress"`
	Mission       model.Mission         `json:"mission"`
	PreviousLevel int                   `json:"previous_level"`
	Level         int                   `json:"level"`
	LevelUp       bool                  `json:"level_up"`
	XP            int64                 `json:"xp"`
	Points        int64                 `json:"points"`
	Badges        []model.UserBadge     `json:"badges"`
}

// Outcome is everything one RecordEvent call changed.
type Outcome struct {
	Event     Event                   `json:"event"`
	Duplicate bool                    `json:"duplicate"`
	Changed   []model.MissionProgress `json:"changed"`
	Awards    []AwardResult           `json:"awards"`
	// Badges unlocked by the event itself rather than by a settlement, for
	// example an event-count badge.
	Badges []model.UserBadge `json:"badges"`
}

// UnlockedBadges returns every badge unlocked by the outcome, in unlock order.
func (o *Outcome) UnlockedBadges() []model.UserBadge {
	var all []model.UserBadge
	for _, a := range o.Awards {
		all = append(all, a.Badges...)
	}
	return append(all, o.Badges...)
}
