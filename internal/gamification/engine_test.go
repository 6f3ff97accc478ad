package gamification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/freelancequest/internal/badge"
	"github.com/dukerupert/freelancequest/internal/catalog"
	"github.com/dukerupert/freelancequest/internal/database"
	"github.com/dukerupert/freelancequest/internal/level"
	"github.com/dukerupert/freelancequest/internal/store"
)

var testDay = time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Missions: []catalog.Mission{
			{Code: "daily_apply_3", Title: "Apply three times", Cadence: "daily", GoalCount: 3, XPReward: 50, PointReward: 10, Triggers: []string{EventApplicationSubmitted}},
			{Code: "first_gig", Title: "First gig", Cadence: "once", GoalCount: 1, XPReward: 100, PointReward: 20, Triggers: []string{EventGigCreated}},
			{Code: "first_review", Title: "First review", Cadence: "once", GoalCount: 1, XPReward: 30, PointReward: 5, Triggers: []string{EventReviewWritten}},
			{Code: "two_missions", Title: "Complete two missions", Cadence: "once", GoalCount: 2, XPReward: 500, PointReward: 50, Triggers: []string{EventMissionCompleted}},
		},
		Badges: []catalog.Badge{
			{Code: "first_application", Name: "First application", Description: "Applied once", Icon: "📄", Rule: badge.Rule{Kind: badge.KindEventCount, Event: EventApplicationSubmitted, Min: 1}},
			{Code: "three_missions", Name: "Three missions", Icon: "🎯", Rule: badge.Rule{Kind: badge.KindMissionsCompleted, Min: 3}},
			{Code: "level_four", Name: "Level four", Icon: "⭐", Rule: badge.Rule{Kind: badge.KindLevel, Min: 4}},
		},
	}
}

func newTestEngine(t *testing.T, dbPath string) (*Engine, *sql.DB) {
	t.Helper()
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	c := testCatalog()
	if err := store.NewMissionStore(db).Sync(c.Missions); err != nil {
		t.Fatalf("sync missions: %v", err)
	}
	bs := store.NewBadgeStore(db)
	if err := bs.Sync(c.Badges); err != nil {
		t.Fatalf("sync badges: %v", err)
	}
	badges, err := bs.List()
	if err != nil {
		t.Fatalf("list badges: %v", err)
	}
	rules, err := badge.NewSet(badges)
	if err != nil {
		t.Fatalf("compile badges: %v", err)
	}

	e := New(db, rules, level.Default(), time.UTC, slog.Default())
	setClock(e, testDay.Add(time.Hour))
	return e, db
}

func setClock(e *Engine, at time.Time) {
	e.now = func() time.Time { return at }
}

func apply(t *testing.T, e *Engine, userID int64, eventType, entityID string, at time.Time) *Outcome {
	t.Helper()
	out, err := e.RecordEvent(context.Background(), Event{UserID: userID, Type: eventType, EntityID: entityID, OccurredAt: at})
	if err != nil {
		t.Fatalf("record %s/%s: %v", eventType, entityID, err)
	}
	return out
}

func profile(t *testing.T, db *sql.DB, userID int64) (xp, points int64, lvl int) {
	t.Helper()
	p, err := store.NewProfileStore(db).Get(userID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	return p.XP, p.Points, p.Level
}

func TestDailyMissionCompletesOnce(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")

	var awards int
	for i := 1; i <= 3; i++ {
		out := apply(t, e, 1, EventApplicationSubmitted, fmt.Sprintf("app-%d", i), testDay.Add(time.Duration(i)*time.Minute))
		awards += len(out.Awards)
	}
	if awards != 1 {
		t.Fatalf("awards = %d, want 1", awards)
	}

	rows, err := store.NewProgressStore(db, time.UTC).List(1, store.ProgressFilter{})
	if err != nil {
		t.Fatalf("list progress: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("progress rows = %d, want 1", len(rows))
	}
	if rows[0].CurrentCount != 3 || !rows[0].Completed || rows[0].CompletedAt == nil {
		t.Errorf("row = %+v, want count 3 completed", rows[0].MissionProgress)
	}

	xp, points, _ := profile(t, db, 1)
	if xp != 50 || points != 10 {
		t.Errorf("xp = %d points = %d, want 50 and 10", xp, points)
	}

	// A fourth event the same day is capped and awards nothing.
	out := apply(t, e, 1, EventApplicationSubmitted, "app-4", testDay.Add(time.Hour))
	if len(out.Changed) != 0 || len(out.Awards) != 0 {
		t.Errorf("fourth event changed=%d awards=%d, want 0 and 0", len(out.Changed), len(out.Awards))
	}
	rows, _ = store.NewProgressStore(db, time.UTC).List(1, store.ProgressFilter{})
	if rows[0].CurrentCount != 3 {
		t.Errorf("current_count = %d, want 3", rows[0].CurrentCount)
	}
	if xp, _, _ := profile(t, db, 1); xp != 50 {
		t.Errorf("xp after fourth event = %d, want 50", xp)
	}
}

func TestNextDayStartsNewWindow(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")

	for i := 1; i <= 3; i++ {
		apply(t, e, 1, EventApplicationSubmitted, fmt.Sprintf("d1-%d", i), testDay)
	}
	setClock(e, testDay.AddDate(0, 0, 1))
	out := apply(t, e, 1, EventApplicationSubmitted, "d2-1", testDay.AddDate(0, 0, 1))
	if len(out.Changed) != 1 || out.Changed[0].CurrentCount != 1 {
		t.Fatalf("next day changed = %+v, want one row at count 1", out.Changed)
	}

	rows, _ := store.NewProgressStore(db, time.UTC).List(1, store.ProgressFilter{})
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	for _, r := range rows {
		if r.WindowKey == "2024-05-03" && (r.CurrentCount != 3 || !r.Completed) {
			t.Errorf("previous window changed: %+v", r.MissionProgress)
		}
	}
}

func TestDuplicateDeliveryIsAbsorbed(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")

	first := apply(t, e, 1, EventApplicationSubmitted, "app-1", testDay)
	if first.Duplicate {
		t.Fatal("first delivery flagged duplicate")
	}
	for i := 0; i < 3; i++ {
		out := apply(t, e, 1, EventApplicationSubmitted, "app-1", testDay)
		if !out.Duplicate {
			t.Fatalf("redelivery %d not flagged duplicate", i+1)
		}
		if len(out.Changed) != 0 || len(out.Awards) != 0 || len(out.Badges) != 0 {
			t.Errorf("duplicate produced effects: %+v", out)
		}
	}

	rows, _ := store.NewProgressStore(db, time.UTC).List(1, store.ProgressFilter{})
	if rows[0].CurrentCount != 1 {
		t.Errorf("current_count = %d, want 1", rows[0].CurrentCount)
	}
}

func TestUnknownEventTypeIsNoop(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")

	out := apply(t, e, 1, "profile_edited", "p-1", testDay)
	if len(out.Changed) != 0 || len(out.Awards) != 0 {
		t.Errorf("outcome = %+v, want no changes", out)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM mission_progress`).Scan(&n)
	if n != 0 {
		t.Errorf("progress rows = %d, want 0", n)
	}
}

func TestCompletedOnceMissionIsNoop(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")

	out := apply(t, e, 1, EventGigCreated, "gig-1", testDay)
	if len(out.Awards) != 1 {
		t.Fatalf("awards = %d, want 1", len(out.Awards))
	}
	setClock(e, testDay.AddDate(1, 0, 0))
	out = apply(t, e, 1, EventGigCreated, "gig-2", testDay.AddDate(1, 0, 0))
	if len(out.Changed) != 0 || len(out.Awards) != 0 {
		t.Errorf("second gig outcome = %+v, want no effects", out)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM mission_progress WHERE user_id = 1`).Scan(&n)
	if n != 1 {
		t.Errorf("progress rows = %d, want 1", n)
	}
	if xp, _, _ := profile(t, db, 1); xp != 100 {
		t.Errorf("xp = %d, want 100", xp)
	}
}

func TestConcurrentEventsSettleOnce(t *testing.T) {
	e, db := newTestEngine(t, filepath.Join(t.TempDir(), "race.db"))

	apply(t, e, 1, EventApplicationSubmitted, "app-1", testDay)
	apply(t, e, 1, EventApplicationSubmitted, "app-2", testDay)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	awards := 0
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := e.RecordEvent(context.Background(), Event{
				UserID:     1,
				Type:       EventApplicationSubmitted,
				EntityID:   fmt.Sprintf("race-%d", i),
				OccurredAt: testDay,
			})
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			awards += len(out.Awards)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent record: %v", err)
	}
	if awards != 1 {
		t.Errorf("awards = %d, want exactly 1", awards)
	}

	rows, _ := store.NewProgressStore(db, time.UTC).List(1, store.ProgressFilter{})
	if len(rows) != 1 || rows[0].CurrentCount != 3 || !rows[0].Completed {
		t.Errorf("rows = %+v, want one completed row at 3", rows)
	}
	if xp, _, _ := profile(t, db, 1); xp != 50 {
		t.Errorf("xp = %d, want 50", xp)
	}
}

func TestConcurrentFirstEventsInNewWindow(t *testing.T) {
	e, db := newTestEngine(t, filepath.Join(t.TempDir(), "window.db"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.RecordEvent(context.Background(), Event{
				UserID: 1, Type: EventApplicationSubmitted, EntityID: fmt.Sprintf("w-%d", i), OccurredAt: testDay,
			})
		}(i)
	}
	wg.Wait()

	var n, count int
	db.QueryRow(`SELECT COUNT(*), MAX(current_count) FROM mission_progress WHERE user_id = 1`).Scan(&n, &count)
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
	if count != 3 {
		t.Errorf("current_count = %d, want 3", count)
	}
}

func TestMissionCompletedChainsAndUnlocksBadges(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")

	apply(t, e, 1, EventGigCreated, "gig-1", testDay)
	out := apply(t, e, 1, EventReviewWritten, "review-1", testDay)

	// first_review settles, which completes two_missions through the
	// internal mission_completed event.
	if len(out.Awards) != 2 {
		t.Fatalf("awards = %d, want 2", len(out.Awards))
	}
	if out.Awards[0].Mission.Code != "first_review" || out.Awards[1].Mission.Code != "two_missions" {
		t.Errorf("award order = %s, %s", out.Awards[0].Mission.Code, out.Awards[1].Mission.Code)
	}

	// 100 + 30 + 500 = 630 xp is level 3; three completions unlock the badge.
	xp, points, lvl := profile(t, db, 1)
	if xp != 630 || points != 75 || lvl != 3 {
		t.Errorf("profile xp=%d points=%d level=%d, want 630 75 3", xp, points, lvl)
	}
	if !out.Awards[1].LevelUp || out.Awards[1].PreviousLevel != 2 || out.Awards[1].Level != 3 {
		t.Errorf("level up = %+v", out.Awards[1])
	}

	var codes []string
	for _, b := range out.UnlockedBadges() {
		codes = append(codes, b.Badge.Code)
	}
	if len(codes) != 1 || codes[0] != "three_missions" {
		t.Errorf("unlocked = %v, want [three_missions]", codes)
	}
}

func TestEventCountBadgeUnlocksOnce(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")

	out := apply(t, e, 1, EventApplicationSubmitted, "app-1", testDay)
	if len(out.Badges) != 1 || out.Badges[0].Badge.Code != "first_application" {
		t.Fatalf("badges = %+v, want first_application", out.Badges)
	}
	if out.Badges[0].ID == 0 {
		t.Error("unlock record has no id")
	}

	out = apply(t, e, 1, EventApplicationSubmitted, "app-2", testDay)
	if len(out.UnlockedBadges()) != 0 {
		t.Errorf("second application unlocked %+v", out.UnlockedBadges())
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM user_badges WHERE user_id = 1`).Scan(&n)
	if n != 1 {
		t.Errorf("user_badges = %d, want 1", n)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")

	apply(t, e, 1, EventGigCreated, "gig-1", testDay)
	out := apply(t, e, 2, EventGigCreated, "gig-1", testDay)
	if out.Duplicate || len(out.Awards) != 1 {
		t.Fatalf("second user outcome = %+v", out)
	}

	for _, uid := range []int64{1, 2} {
		if xp, _, _ := profile(t, db, uid); xp != 100 {
			t.Errorf("user %d xp = %d, want 100", uid, xp)
		}
	}
}

func TestSettlementIsAllOrNothing(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")

	// Badge evaluation fails inside the settlement transaction.
	if _, err := db.Exec(`DROP TABLE user_badges`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	_, err := e.RecordEvent(context.Background(), Event{UserID: 1, Type: EventGigCreated, EntityID: "gig-1", OccurredAt: testDay})
	if err == nil {
		t.Fatal("expected storage error")
	}

	var progressRows, claims int
	db.QueryRow(`SELECT COUNT(*) FROM mission_progress`).Scan(&progressRows)
	db.QueryRow(`SELECT COUNT(*) FROM processed_events`).Scan(&claims)
	if progressRows != 0 || claims != 0 {
		t.Errorf("progress=%d claims=%d after failed settle, want 0 and 0", progressRows, claims)
	}
	if xp, points, _ := profile(t, db, 1); xp != 0 || points != 0 {
		t.Errorf("xp=%d points=%d credited without completion", xp, points)
	}
}

func TestRecordEventValidation(t *testing.T) {
	e, _ := newTestEngine(t, ":memory:")
	ctx := context.Background()

	bad := []Event{
		{Type: EventGigCreated, EntityID: "x"},
		{UserID: 1, EntityID: "x"},
		{UserID: 1, Type: EventGigCreated},
	}
	for _, ev := range bad {
		if _, err := e.RecordEvent(ctx, ev); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("RecordEvent(%+v) = %v, want ErrInvalidEvent", ev, err)
		}
	}

	_, err := e.RecordEvent(ctx, Event{UserID: 1, Type: EventMissionCompleted, EntityID: "forged"})
	if !errors.Is(err, ErrReservedEvent) {
		t.Errorf("reserved event = %v, want ErrReservedEvent", err)
	}
}

func TestRecordEventDefaultsOccurredAt(t *testing.T) {
	e, _ := newTestEngine(t, ":memory:")

	out, err := e.RecordEvent(context.Background(), Event{UserID: 1, Type: EventApplicationSubmitted, EntityID: "app-1"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !out.Event.OccurredAt.Equal(testDay.Add(time.Hour)) {
		t.Errorf("occurred_at = %v, want engine clock", out.Event.OccurredAt)
	}
	if len(out.Changed) != 1 || out.Changed[0].WindowKey != "2024-05-03" {
		t.Errorf("changed = %+v", out.Changed)
	}
}

func TestLateAndEarlyEventsUseCurrentWindow(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")
	setClock(e, time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC))

	for i := 1; i <= 2; i++ {
		apply(t, e, 1, EventApplicationSubmitted, fmt.Sprintf("late-%d", i), time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	}
	out := apply(t, e, 1, EventApplicationSubmitted, "early-1", time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC))
	if len(out.Awards) != 1 {
		t.Fatalf("awards = %d, want 1 in the current window", len(out.Awards))
	}
	if !out.Event.OccurredAt.Equal(time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("occurred_at = %v, want the caller's timestamp", out.Event.OccurredAt)
	}

	rows, err := store.NewProgressStore(db, time.UTC).List(1, store.ProgressFilter{})
	if err != nil {
		t.Fatalf("list progress: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("progress rows = %d, want 1", len(rows))
	}
	if rows[0].WindowKey != "2024-05-03" || rows[0].CurrentCount != 3 || !rows[0].Completed {
		t.Errorf("row = %+v, want window 2024-05-03 completed at 3", rows[0].MissionProgress)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM mission_progress WHERE window_key IN ('2024-05-01', '2024-06-03')`).Scan(&n)
	if n != 0 {
		t.Errorf("rows outside the current window = %d, want 0", n)
	}
	if xp, _, _ := profile(t, db, 1); xp != 50 {
		t.Errorf("xp = %d, want 50", xp)
	}
}

func TestLoweredGoalSettlesOnNextEvent(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")

	apply(t, e, 1, EventApplicationSubmitted, "app-1", testDay)
	apply(t, e, 1, EventApplicationSubmitted, "app-2", testDay)

	c := testCatalog()
	c.Missions[0].GoalCount = 2
	if err := store.NewMissionStore(db).Sync(c.Missions); err != nil {
		t.Fatalf("resync: %v", err)
	}

	out := apply(t, e, 1, EventApplicationSubmitted, "app-3", testDay)
	if len(out.Awards) != 1 {
		t.Fatalf("awards = %d, want 1", len(out.Awards))
	}
	if xp, _, _ := profile(t, db, 1); xp != 50 {
		t.Errorf("xp = %d, want 50", xp)
	}

	out = apply(t, e, 1, EventApplicationSubmitted, "app-4", testDay)
	if len(out.Changed) != 0 || len(out.Awards) != 0 {
		t.Errorf("settled row changed again: %+v", out)
	}
}

func TestLevelMatchesCurveAfterManyAwards(t *testing.T) {
	e, db := newTestEngine(t, ":memory:")

	for d := 0; d < 10; d++ {
		day := testDay.AddDate(0, 0, d)
		setClock(e, day)
		for i := 0; i < 3; i++ {
			apply(t, e, 1, EventApplicationSubmitted, fmt.Sprintf("%d-%d", d, i), day)
		}
	}

	xp, _, lvl := profile(t, db, 1)
	if want := e.Curve().Level(xp); lvl != want {
		t.Errorf("stored level %d != curve level %d for xp %d", lvl, want, xp)
	}
}
