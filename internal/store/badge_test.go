package store

import (
	"testing"
	"time"
)

func TestBadgeUnlockOnce(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	bs := NewBadgeStore(db)

	badges, err := bs.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(badges) != 2 {
		t.Fatalf("badges = %d, want 2", len(badges))
	}
	if badges[0].Rule == "" || badges[0].Rule == "{}" {
		t.Errorf("rule not stored: %q", badges[0].Rule)
	}

	first := badges[0]
	ub, err := bs.Unlock(1, first, time.Now())
	if err != nil || ub == nil {
		t.Fatalf("unlock = %v, %v; want record", ub, err)
	}
	if ub.Badge.Code != first.Code || ub.ID == 0 {
		t.Errorf("unlock record = %+v", ub)
	}
	ub, err = bs.Unlock(1, first, time.Now())
	if err != nil || ub != nil {
		t.Fatalf("second unlock = %v, %v; want nil", ub, err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM user_badges WHERE user_id = 1`).Scan(&n)
	if n != 1 {
		t.Errorf("user_badges = %d, want 1", n)
	}

	locked, err := bs.ListLocked(1)
	if err != nil {
		t.Fatalf("list locked: %v", err)
	}
	if len(locked) != 1 || locked[0].ID == first.ID {
		t.Errorf("locked = %+v", locked)
	}

	status, err := bs.ListWithStatus(1)
	if err != nil {
		t.Fatalf("list with status: %v", err)
	}
	if !status[0].Unlocked || status[1].Unlocked {
		t.Errorf("status = %+v", status)
	}
}

func TestBadgeRecentUnseenAndMarkSeen(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	bs := NewBadgeStore(db)
	badges, _ := bs.List()
	now := time.Now()

	bs.Unlock(1, badges[1], now)
	bs.Unlock(1, badges[0], now.Add(time.Second))

	unseen, err := bs.ListRecentUnseen(1)
	if err != nil {
		t.Fatalf("list unseen: %v", err)
	}
	if len(unseen) != 2 {
		t.Fatalf("unseen = %d, want 2", len(unseen))
	}
	if unseen[0].BadgeID != badges[1].ID {
		t.Errorf("oldest unlock first: got badge %d", unseen[0].BadgeID)
	}
	if unseen[0].Badge.Code == "" {
		t.Error("badge not joined")
	}

	if err := bs.MarkSeen(2, unseen[0].ID); err != ErrNotFound {
		t.Errorf("mark other user's badge = %v, want ErrNotFound", err)
	}
	for i := 0; i < 2; i++ {
		if err := bs.MarkSeen(1, unseen[0].ID); err != nil {
			t.Fatalf("mark seen: %v", err)
		}
	}

	unseen, _ = bs.ListRecentUnseen(1)
	if len(unseen) != 1 {
		t.Errorf("unseen after mark = %d, want 1", len(unseen))
	}

	all, _ := bs.ListByUser(1)
	if len(all) != 2 {
		t.Errorf("user badges = %d, want 2", len(all))
	}
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	seedCatalog(t, db)
	ps := NewProgressStore(db, time.UTC)
	es := NewEventStore(db)
	now := time.Now()

	es.Claim(1, "application_submitted", "a1", now)
	es.Claim(1, "application_submitted", "a2", now)
	es.Claim(1, "gig_created", "g1", now)
	recordInTx(t, db, ps, 1, "gig_created", now)
	rows, _ := ps.List(1, ProgressFilter{})
	ps.MarkCompleted(rows[0].ID, now)

	st, err := es.Stats(1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.EventCounts["application_submitted"] != 2 || st.EventCounts["gig_created"] != 1 {
		t.Errorf("event counts = %v", st.EventCounts)
	}
	if st.MissionsCompleted != 1 || st.CompletedByCadence["once"] != 1 || st.CompletedByMission["first_gig"] != 1 {
		t.Errorf("completions = %d %v %v", st.MissionsCompleted, st.CompletedByCadence, st.CompletedByMission)
	}
	if st.Level != 1 {
		t.Errorf("level = %d, want 1 for user without profile", st.Level)
	}
}
