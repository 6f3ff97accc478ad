// Package gamification records domain events against mission progress and
// settles completed missions into xp, points, levels and badges.
package gamification

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukerupert/freelancequest/internal/badge"
	"github.com/dukerupert/freelancequest/internal/level"
	"github.com/dukerupert/freelancequest/internal/store"
)

// maxChainDepth bounds how deep mission_completed events may cascade, e.g. a
// completion that completes "complete 10 missions" which in turn counts
// towards "complete 100 missions this year".
const maxChainDepth = 4

type Engine struct {
	db       *sql.DB
	progress *store.ProgressStore
	profiles *store.ProfileStore
	badges   *store.BadgeStore
	events   *store.EventStore
	rules    *badge.Set
	curve    level.Table
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an Engine. Cadence windows are resolved in loc.
func New(db *sql.DB, rules *badge.Set, curve level.Table, loc *time.Location, logger *slog.Logger) *Engine {
	return &Engine{
		db:       db,
		progress: store.NewProgressStore(db, loc),
		profiles: store.NewProfileStore(db),
		badges:   store.NewBadgeStore(db),
		events:   store.NewEventStore(db),
		rules:    rules,
		curve:    curve,
		now:      time.Now,
		logger:   logger,
	}
}

// Curve returns the level table the engine settles with.
func (e *Engine) Curve() level.Table {
	return e.curve
}

// RecordEvent applies a domain event: it claims the event for idempotency,
// increments every matching mission in its current window, settles the
// missions that reached their goal and evaluates badges. Everything happens
// in one write transaction, so either all of it is visible or none of it is.
//
// Progress windows are resolved from the engine clock at processing time.
// OccurredAt is kept in the event ledger only, so a late or early delivery can
// neither reopen a closed window nor open one ahead of time.
//
// A redelivered event returns an Outcome with Duplicate set and changes
// nothing. Only storage failures are returned as errors; the caller may retry
// them safely because the idempotency claim rolls back with the rest.
func (e *Engine) RecordEvent(ctx context.Context, ev Event) (*Outcome, error) {
	if err := ev.validate(); err != nil {
		return nil, err
	}
	now := e.now()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}

	out := &Outcome{Event: ev}
	err := store.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		claimed, err := e.events.WithTx(tx).Claim(ev.UserID, ev.Type, ev.EntityID, ev.OccurredAt)
		if err != nil {
			return err
		}
		if !claimed {
			out.Duplicate = true
			return nil
		}

		if err := e.apply(tx, ev.UserID, ev.Type, now, out, 0); err != nil {
			return err
		}

		unlocked, err := e.evaluateBadges(tx, ev.UserID)
		if err != nil {
			return err
		}
		out.Badges = append(out.Badges, unlocked...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record event %s for user %d: %w", ev.Type, ev.UserID, err)
	}

	if out.Duplicate {
		e.logger.Debug("duplicate event ignored", "user_id", ev.UserID, "event_type", ev.Type, "entity_id", ev.EntityID)
	} else if len(out.Awards) > 0 || len(out.Badges) > 0 {
		e.logger.Info("event settled",
			"user_id", ev.UserID,
			"event_type", ev.Type,
			"changed", len(out.Changed),
			"completed", len(out.Awards),
			"badges", len(out.UnlockedBadges()),
		)
	}
	return out, nil
}

// apply increments progress for eventType and settles every row that reached
// its goal. Each settlement emits an internal mission_completed event.
func (e *Engine) apply(tx *sql.Tx, userID int64, eventType string, at time.Time, out *Outcome, depth int) error {
	changed, err := e.progress.WithTx(tx).RecordEvent(userID, eventType, at)
	if err != nil {
		return err
	}
	out.Changed = append(out.Changed, changed...)

	for _, p := range changed {
		if p.Completed || p.CurrentCount < p.GoalCount {
			continue
		}

		award, err := e.settle(tx, p)
		if err != nil {
			return err
		}
		if award == nil {
			continue
		}
		out.Awards = append(out.Awards, *award)

		if depth >= maxChainDepth {
			e.logger.Warn("mission chain depth reached", "user_id", userID, "mission", award.Mission.Code)
			continue
		}
		entityID := "progress:" + strconv.FormatInt(p.ID, 10)
		claimed, err := e.events.WithTx(tx).Claim(userID, EventMissionCompleted, entityID, at)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}
		if err := e.apply(tx, userID, EventMissionCompleted, at, out, depth+1); err != nil {
			return err
		}
	}
	return nil
}
