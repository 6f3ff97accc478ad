// Package ingest turns marketplace actions reported by other services into
// gamification events and feeds them to the engine.
package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/freelancequest/internal/cadence"
	"github.com/dukerupert/freelancequest/internal/gamification"
)

// Action kinds accepted on the internal API.
const (
	ActionGigCreated           = "gig_created"
	ActionApplicationSubmitted = "application_submitted"
	ActionSubmissionCreated    = "submission_created"
	ActionReviewPosted         = "review_posted"
	ActionGigCompleted         = "gig_completed"
	ActionUserLoggedIn         = "user_logged_in"
	ActionChatMessageSent      = "chat_message_sent"
)

var (
	ErrUnknownAction  = errors.New("unknown action")
	ErrMissingEntity  = errors.New("entity id is required")
	ErrMissingActor   = errors.New("actor id is required")
	ErrMissingSubject = errors.New("counterpart id is required")
)

// Action is a domain fact as reported by the marketplace. ActorID is the user
// who performed it. For a review the actor is the client who wrote it and
// CounterpartID the freelancer who received it.
type Action struct {
	Kind          string    `json:"action"`
	ActorID       int64     `json:"actor_id"`
	CounterpartID int64     `json:"counterpart_id,omitempty"`
	EntityID      string    `json:"entity_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Translator maps actions to per-user events. Loc is the timezone login days
// are bucketed in and must match the engine's. Now stamps actions that carry
// no timestamp and defaults to time.Now.
type Translator struct {
	Loc *time.Location
	Now func() time.Time
}

// Translate returns the events an action produces. It does not touch storage.
func (t Translator) Translate(a Action) ([]gamification.Event, error) {
	if a.ActorID <= 0 {
		return nil, ErrMissingActor
	}
	if a.Kind != ActionUserLoggedIn && a.EntityID == "" {
		return nil, ErrMissingEntity
	}
	// Stamp once so a login's day key and its event carry the same instant.
	if a.OccurredAt.IsZero() {
		a.OccurredAt = t.now()
	}

	event := func(userID int64, eventType, entityID string) gamification.Event {
		return gamification.Event{UserID: userID, Type: eventType, EntityID: entityID, OccurredAt: a.OccurredAt}
	}

	switch a.Kind {
	case ActionGigCreated, ActionApplicationSubmitted, ActionSubmissionCreated,
		ActionGigCompleted, ActionChatMessageSent:
		// Action kinds and event types share names for single-user actions.
		return []gamification.Event{event(a.ActorID, a.Kind, a.EntityID)}, nil

	case ActionReviewPosted:
		if a.CounterpartID <= 0 {
			return nil, ErrMissingSubject
		}
		return []gamification.Event{
			event(a.ActorID, gamification.EventReviewWritten, a.EntityID),
			event(a.CounterpartID, gamification.EventReviewReceived, a.EntityID),
		}, nil

	case ActionUserLoggedIn:
		// Logins count once per calendar day so that a streak mission measures
		// distinct days rather than sessions.
		w, err := cadence.Resolve(cadence.Daily, a.OccurredAt, t.location())
		if err != nil {
			return nil, err
		}
		return []gamification.Event{event(a.ActorID, gamification.EventUserLoggedIn, "login:"+w.Key)}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
}

func (t Translator) location() *time.Location {
	if t.Loc == nil {
		return time.UTC
	}
	return t.Loc
}

func (t Translator) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}
