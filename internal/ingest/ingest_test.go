package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/freelancequest/internal/gamification"
)

func TestTranslateSingleUserActions(t *testing.T) {
	tr := Translator{Loc: time.UTC}
	at := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)

	for _, kind := range []string{ActionGigCreated, ActionApplicationSubmitted, ActionSubmissionCreated, ActionGigCompleted, ActionChatMessageSent} {
		events, err := tr.Translate(Action{Kind: kind, ActorID: 7, EntityID: "e-1", OccurredAt: at})
		if err != nil {
			t.Fatalf("translate %s: %v", kind, err)
		}
		if len(events) != 1 {
			t.Fatalf("%s produced %d events, want 1", kind, len(events))
		}
		ev := events[0]
		if ev.UserID != 7 || ev.Type != kind || ev.EntityID != "e-1" || !ev.OccurredAt.Equal(at) {
			t.Errorf("%s -> %+v", kind, ev)
		}
	}
}

func TestTranslateReviewFansOut(t *testing.T) {
	tr := Translator{Loc: time.UTC}

	events, err := tr.Translate(Action{Kind: ActionReviewPosted, ActorID: 1, CounterpartID: 2, EntityID: "review-9"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].UserID != 1 || events[0].Type != gamification.EventReviewWritten {
		t.Errorf("writer event = %+v", events[0])
	}
	if events[1].UserID != 2 || events[1].Type != gamification.EventReviewReceived {
		t.Errorf("receiver event = %+v", events[1])
	}

	if _, err := tr.Translate(Action{Kind: ActionReviewPosted, ActorID: 1, EntityID: "review-9"}); !errors.Is(err, ErrMissingSubject) {
		t.Errorf("review without counterpart = %v, want ErrMissingSubject", err)
	}
}

func TestTranslateLoginKeyedByDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Vilnius")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tr := Translator{Loc: loc}

	// 22:30 UTC on the 2nd is already the 3rd in Vilnius.
	morning, _ := tr.Translate(Action{Kind: ActionUserLoggedIn, ActorID: 1, OccurredAt: time.Date(2024, 5, 2, 22, 30, 0, 0, time.UTC)})
	evening, _ := tr.Translate(Action{Kind: ActionUserLoggedIn, ActorID: 1, OccurredAt: time.Date(2024, 5, 3, 18, 0, 0, 0, time.UTC)})

	if morning[0].EntityID != "login:2024-05-03" {
		t.Errorf("entity = %q, want login:2024-05-03", morning[0].EntityID)
	}
	if morning[0].EntityID != evening[0].EntityID {
		t.Errorf("same local day produced %q and %q", morning[0].EntityID, evening[0].EntityID)
	}
}

func TestTranslateStampsMissingTime(t *testing.T) {
	nearMidnight := time.Date(2024, 5, 3, 23, 59, 59, 900_000_000, time.UTC)
	tr := Translator{Loc: time.UTC, Now: func() time.Time { return nearMidnight }}

	events, err := tr.Translate(Action{Kind: ActionUserLoggedIn, ActorID: 1})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if !events[0].OccurredAt.Equal(nearMidnight) {
		t.Errorf("occurred_at = %v, want %v", events[0].OccurredAt, nearMidnight)
	}
	if events[0].EntityID != "login:2024-05-03" {
		t.Errorf("entity = %q, want login:2024-05-03", events[0].EntityID)
	}

	reviews, err := tr.Translate(Action{Kind: ActionReviewPosted, ActorID: 1, CounterpartID: 2, EntityID: "r-1"})
	if err != nil {
		t.Fatalf("translate review: %v", err)
	}
	for _, ev := range reviews {
		if !ev.OccurredAt.Equal(nearMidnight) {
			t.Errorf("%s occurred_at = %v, want %v", ev.Type, ev.OccurredAt, nearMidnight)
		}
	}
}

func TestTranslateRejects(t *testing.T) {
	tr := Translator{}
	cases := []struct {
		name string
		a    Action
		want error
	}{
		{"no actor", Action{Kind: ActionGigCreated, EntityID: "g"}, ErrMissingActor},
		{"no entity", Action{Kind: ActionGigCreated, ActorID: 1}, ErrMissingEntity},
		{"unknown", Action{Kind: "gig_deleted", ActorID: 1, EntityID: "g"}, ErrUnknownAction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tr.Translate(tc.a); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

type fakeRecorder struct {
	failOn string
	seen   map[string]bool
	events []gamification.Event
}

func (f *fakeRecorder) RecordEvent(ctx context.Context, ev gamification.Event) (*gamification.Outcome, error) {
	if ev.Type == f.failOn {
		return nil, errors.New("database is locked")
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	key := ev.Type + "/" + ev.EntityID
	dup := f.seen[key]
	f.seen[key] = true
	f.events = append(f.events, ev)
	return &gamification.Outcome{Event: ev, Duplicate: dup}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	users []int64
}

func (f *fakeNotifier) Dispatch(ctx context.Context, userID int64, out *gamification.Outcome) {
	f.mu.Lock()
	f.users = append(f.users, userID)
	f.mu.Unlock()
}

func TestHandleActionDispatchesPerUser(t *testing.T) {
	rec := &fakeRecorder{}
	n := &fakeNotifier{}
	in := NewIngester(Translator{Loc: time.UTC}, rec, n, slog.Default())

	outs, err := in.HandleAction(context.Background(), Action{Kind: ActionReviewPosted, ActorID: 1, CounterpartID: 2, EntityID: "r-1"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outs))
	}
	if len(n.users) != 2 || n.users[0] != 1 || n.users[1] != 2 {
		t.Errorf("dispatched to %v, want [1 2]", n.users)
	}

	// Redelivery is recorded as duplicate and not dispatched again.
	if _, err := in.HandleAction(context.Background(), Action{Kind: ActionReviewPosted, ActorID: 1, CounterpartID: 2, EntityID: "r-1"}); err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if len(n.users) != 2 {
		t.Errorf("duplicate dispatched: %v", n.users)
	}
}

func TestHandleActionStopsOnError(t *testing.T) {
	rec := &fakeRecorder{failOn: gamification.EventReviewReceived}
	n := &fakeNotifier{}
	in := NewIngester(Translator{}, rec, n, slog.Default())

	outs, err := in.HandleAction(context.Background(), Action{Kind: ActionReviewPosted, ActorID: 1, CounterpartID: 2, EntityID: "r-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(outs) != 1 || outs[0].Event.Type != gamification.EventReviewWritten {
		t.Errorf("outcomes before failure = %+v", outs)
	}
	if len(n.users) != 1 {
		t.Errorf("dispatches = %v, want only the committed event", n.users)
	}
}
