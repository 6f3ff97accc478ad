package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/freelancequest/internal/gamification"
	"github.com/dukerupert/freelancequest/internal/store"
)

const publishTimeout = 5 * time.Second

// Sink receives forwarded messages; the WebSocket hub implements it.
type Sink interface {
	Send(userID int64, v any) int
}

// Dispatcher publishes the notifications of committed outcomes and records
// acknowledgements. Delivery is best-effort: a notification that never
// reaches a socket stays unseen and is picked up by reconciliation.
type Dispatcher struct {
	bus      Bus
	progress *store.ProgressStore
	badges   *store.BadgeStore
	logger   *slog.Logger
}

func NewDispatcher(bus Bus, progress *store.ProgressStore, badges *store.BadgeStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		progress: progress,
		badges:   badges,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch publishes one message per completion and per unlocked badge. It
// never returns an error; failures are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, userID int64, out *gamification.Outcome) {
	msgs := Messages(out)
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, m := range msgs {
		env := Envelope{ID: uuid.NewString(), UserID: userID, Message: m}
		if err := d.bus.Publish(ctx, env); err != nil {
			d.logger.Warn("publish notification", "user_id", userID, "type", m.Type, "envelope_id", env.ID, "error", err)
		}
	}
}

// MarkSeen acknowledges a mission completion. Idempotent.
func (d *Dispatcher) MarkSeen(userID, progressID int64) error {
	return d.progress.MarkSeen(userID, progressID)
}

// MarkBadgeSeen acknowledges a badge unlock. Idempotent.
func (d *Dispatcher) MarkBadgeSeen(userID, userBadgeID int64) error {
	return d.badges.MarkSeen(userID, userBadgeID)
}

// Forward subscribes sink to bus until ctx is done.
func Forward(ctx context.Context, bus Bus, sink Sink, logger *slog.Logger) error {
	return bus.StartForwarder(ctx, func(env Envelope) {
		n := sink.Send(env.UserID, env.Message)
		logger.Debug("notification forwarded", "user_id", env.UserID, "type", env.Message.Type, "sockets", n)
	})
}
