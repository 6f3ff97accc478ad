package ingest

import (
	"context"
	"log/slog"

	"github.com/dukerupert/freelancequest/internal/gamification"
)

// Recorder applies one event transactionally.
type Recorder interface {
	RecordEvent(ctx context.Context, ev gamification.Event) (*gamification.Outcome, error)
}

// Notifier pushes the visible effects of a committed outcome. It must not
// fail the caller.
type Notifier interface {
	Dispatch(ctx context.Context, userID int64, out *gamification.Outcome)
}

type Ingester struct {
	translator Translator
	recorder   Recorder
	notifier   Notifier
	logger     *slog.Logger
}

func NewIngester(t Translator, r Recorder, n Notifier, logger *slog.Logger) *Ingester {
	return &Ingester{translator: t, recorder: r, notifier: n, logger: logger}
}

// HandleEvent records ev and, once committed, dispatches its notifications.
func (i *Ingester) HandleEvent(ctx context.Context, ev gamification.Event) (*gamification.Outcome, error) {
	out, err := i.recorder.RecordEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	if i.notifier != nil && !out.Duplicate {
		i.notifier.Dispatch(ctx, ev.UserID, out)
	}
	return out, nil
}

// HandleAction translates a and records each resulting event in turn. Every
// event commits on its own, so when one fails the outcomes recorded so far
// are returned with the error and a redelivery of the whole action skips them
// as duplicates.
func (i *Ingester) HandleAction(ctx context.Context, a Action) ([]*gamification.Outcome, error) {
	events, err := i.translator.Translate(a)
	if err != nil {
		return nil, err
	}

	outcomes := make([]*gamification.Outcome, 0, len(events))
	for _, ev := range events {
		out, err := i.HandleEvent(ctx, ev)
		if err != nil {
			i.logger.Error("record action event", "action", a.Kind, "user_id", ev.UserID, "event_type", ev.Type, "error", err)
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
