package gamification

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/freelancequest/internal/model"
	"github.com/dukerupert/freelancequest/internal/store"
)

// settle transitions a progress row to completed and credits its rewards. It
// returns nil when another writer already settled the row, so rewards are
// granted at most once per (user, mission, window).
func (e *Engine) settle(tx *sql.Tx, p model.MissionProgress) (*AwardResult, error) {
	now := e.now()

	ok, err := e.progress.WithTx(tx).MarkCompleted(p.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	mission, err := store.NewMissionStore(tx).GetByID(p.MissionID)
	if err != nil {
		return nil, err
	}
	if mission == nil {
		return nil, fmt.Errorf("settle progress %d: mission %d: %w", p.ID, p.MissionID, store.ErrNotFound)
	}

	prev, profile, err := e.profiles.WithTx(tx).Credit(p.UserID, int64(mission.XPReward), int64(mission.PointReward), e.curve, now)
	if err != nil {
		return nil, err
	}

	unlocked, err := e.evaluateBadges(tx, p.UserID)
	if err != nil {
		return nil, err
	}

	p.Completed = true
	completedAt := now.UTC()
	p.CompletedAt = &completedAt

	return &AwardResult{
		Progress:      p,
		Mission:       *mission,
		PreviousLevel: prev,
		Level:         profile.Level,
		LevelUp:       profile.Level > prev,
		XP:            int64(mission.XPReward),
		Points:        int64(mission.PointReward),
		Badges:        unlocked,
	}, nil
}

// evaluateBadges unlocks every locked badge whose rule now holds. Unlocking
// is idempotent, so re-evaluation never duplicates a badge.
func (e *Engine) evaluateBadges(tx *sql.Tx, userID int64) ([]model.UserBadge, error) {
	if e.rules == nil || e.rules.Len() == 0 {
		return nil, nil
	}

	badges := e.badges.WithTx(tx)
	locked, err := badges.ListLocked(userID)
	if err != nil {
		return nil, err
	}
	if len(locked) == 0 {
		return nil, nil
	}

	stats, err := e.events.WithTx(tx).Stats(userID)
	if err != nil {
		return nil, err
	}

	var unlocked []model.UserBadge
	for _, b := range e.rules.Satisfied(stats, locked) {
		ub, err := badges.Unlock(userID, b, e.now())
		if err != nil {
			return nil, err
		}
		if ub != nil {
			unlocked = append(unlocked, *ub)
		}
	}
	return unlocked, nil
}
