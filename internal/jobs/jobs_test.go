package jobs

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/freelancequest/internal/database"
	"github.com/dukerupert/freelancequest/internal/level"
	"github.com/dukerupert/freelancequest/internal/store"
)

type countingCleaner struct{ calls atomic.Int32 }

func (c *countingCleaner) Cleanup() int {
	c.calls.Add(1)
	return 0
}

type fakeRepairer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRepairer) RepairLevels(curve level.Table) (int, error) {
	f.calls.Add(1)
	return 0, f.err
}

func TestSchedulerRunsLevelRepairOnStart(t *testing.T) {
	repairer := &fakeRepairer{}
	s, err := New(Config{Curve: level.Default(), LevelRepairInterval: time.Hour}, repairer, &countingCleaner{}, slog.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start()
	defer s.Shutdown()

	deadline := time.Now().Add(2 * time.Second)
	for repairer.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("level repair did not run on start")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewRejectsBadInterval(t *testing.T) {
	if _, err := New(Config{Curve: level.Default()}, &fakeRepairer{}, &countingCleaner{}, slog.Default()); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestRepairLevelsLogsErrors(t *testing.T) {
	s := &Scheduler{logger: slog.Default()}
	// Must not panic when the store fails.
	s.repairLevels(&fakeRepairer{err: errors.New("disk I/O error")}, level.Default())
}

func TestRepairLevelsAgainstStore(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// A profile whose level lags its xp, as after a curve change.
	if _, err := db.Exec(`INSERT INTO gamification_profiles (user_id, xp, level) VALUES (1, 750, 1)`); err != nil {
		t.Fatalf("insert profile: %v", err)
	}

	s := &Scheduler{logger: slog.Default()}
	profiles := store.NewProfileStore(db)
	s.repairLevels(profiles, level.Default())

	p, _ := profiles.Get(1)
	if p.Level != 4 {
		t.Errorf("level = %d, want 4", p.Level)
	}
}
