package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/freelancequest/internal/level"
	"github.com/dukerupert/freelancequest/internal/model"
)

type ProfileStore struct {
	db Querier
}

func NewProfileStore(db Querier) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) WithTx(tx *sql.Tx) *ProfileStore {
	return &ProfileStore{db: tx}
}

const profileCols = `user_id, xp, level, points, updated_at`

func scanProfile(scanner interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	if err := scanner.Scan(&p.UserID, &p.XP, &p.Level, &p.Points, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns the user's profile, creating an empty one on first access.
func (s *ProfileStore) Get(userID int64) (*model.Profile, error) {
	if _, err := s.db.Exec(`INSERT INTO gamification_profiles (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+profileCols+` FROM gamification_profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Credit adds xp and points and raises the stored level to curve(xp). The
// level is never lowered. It returns the level before and the profile after
// the credit.
func (s *ProfileStore) Credit(userID int64, xp, points int64, curve level.Table, at time.Time) (int, *model.Profile, error) {
	before, err := s.Get(userID)
	if err != nil {
		return 0, nil, err
	}

	newXP := before.XP + xp
	newLevel := curve.Level(newXP)
	if newLevel < before.Level {
		newLevel = before.Level
	}

	_, err = s.db.Exec(
		`UPDATE gamification_profiles SET xp = ?, points = points + ?, level = ?, updated_at = ? WHERE user_id = ?`,
		newXP, points, newLevel, at.UTC(), userID,
	)
	if err != nil {
		return 0, nil, fmt.Errorf("credit profile: %w", err)
	}

	after, err := s.Get(userID)
	if err != nil {
		return 0, nil, err
	}
	return before.Level, after, nil
}

// DeductPoints is the compare-and-decrement used by benefit redemption. It
// never touches xp or level.
func (s *ProfileStore) DeductPoints(userID, amount int64) error {
	res, err := s.db.Exec(
		`UPDATE gamification_profiles SET points = points - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ? AND points >= ?`,
		amount, userID, amount,
	)
	if err != nil {
		return fmt.Errorf("deduct points: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrInsufficientPoints
	}
	return nil
}

// RepairLevels raises any stored level that lags behind curve(xp), for
// example after the curve configuration changed. It returns the number of
// profiles updated.
func (s *ProfileStore) RepairLevels(curve level.Table) (int, error) {
	rows, err := s.db.Query(`SELECT user_id, xp, level FROM gamification_profiles`)
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}

	type fix struct {
		userID int64
		level  int
	}
	var fixes []fix
	for rows.Next() {
		var userID, xp int64
		var lvl int
		if err := rows.Scan(&userID, &xp, &lvl); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan profile: %w", err)
		}
		if want := curve.Level(xp); want > lvl {
			fixes = append(fixes, fix{userID: userID, level: want})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate profiles: %w", err)
	}
	rows.Close()

	for _, f := range fixes {
		if _, err := s.db.Exec(
			`UPDATE gamification_profiles SET level = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ? AND level < ?`,
			f.level, f.userID, f.level,
		); err != nil {
			return 0, fmt.Errorf("repair level for user %d: %w", f.userID, err)
		}
	}
	return len(fixes), nil
}

// Leaderboard returns registered users of role ordered by xp, then level.
func (s *ProfileStore) Leaderboard(role string, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT u.id, u.username, u.role, COALESCE(p.level, 1), COALESCE(p.xp, 0), COALESCE(p.points, 0)
		 FROM users u LEFT JOIN gamification_profiles p ON p.user_id = u.id
		 WHERE u.role = ?
		 ORDER BY COALESCE(p.xp, 0) DESC, COALESCE(p.level, 1) DESC, u.id ASC
		 LIMIT ?`,
		role, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Role, &e.Level, &e.XP, &e.Points); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
