package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/freelancequest/internal/catalog"
	"github.com/dukerupert/freelancequest/internal/model"
)

type BadgeStore struct {
	db Querier
}

func NewBadgeStore(db Querier) *BadgeStore {
	return &BadgeStore{db: db}
}

func (s *BadgeStore) WithTx(tx *sql.Tx) *BadgeStore {
	return &BadgeStore{db: tx}
}

func scanBadge(scanner interface{ Scan(...any) error }) (*model.Badge, error) {
	var b model.Badge
	if err := scanner.Scan(&b.ID, &b.Code, &b.Name, &b.Description, &b.Icon, &b.Rule, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

const badgeCols = `b.id, b.code, b.name, b.description, b.icon, b.rule, b.created_at`

// Sync upserts catalog badges by code. Badges are never deleted because
// unlock records reference them.
func (s *BadgeStore) Sync(badges []catalog.Badge) error {
	for _, b := range badges {
		rule, err := b.Rule.Encode()
		if err != nil {
			return fmt.Errorf("badge %s: %w", b.Code, err)
		}
		_, err = s.db.Exec(
			`INSERT INTO badges (code, name, description, icon, rule) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (code) DO UPDATE SET
			   name = excluded.name, description = excluded.description,
			   icon = excluded.icon, rule = excluded.rule`,
			b.Code, b.Name, b.Description, b.Icon, rule,
		)
		if err != nil {
			return fmt.Errorf("upsert badge %s: %w", b.Code, err)
		}
	}
	return nil
}

func (s *BadgeStore) List() ([]model.Badge, error) {
	rows, err := s.db.Query(`SELECT ` + badgeCols + ` FROM badges b ORDER BY b.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var badges []model.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, *b)
	}
	return badges, rows.Err()
}

// ListWithStatus returns the whole catalog annotated with the user's unlocks.
func (s *BadgeStore) ListWithStatus(userID int64) ([]model.BadgeWithStatus, error) {
	rows, err := s.db.Query(
		`SELECT `+badgeCols+`, EXISTS (SELECT 1 FROM user_badges ub WHERE ub.badge_id = b.id AND ub.user_id = ?)
		 FROM badges b ORDER BY b.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list badges with status: %w", err)
	}
	defer rows.Close()

	var out []model.BadgeWithStatus
	for rows.Next() {
		var b model.BadgeWithStatus
		var unlocked int
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.Description, &b.Icon, &b.Rule, &b.CreatedAt, &unlocked); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		b.Unlocked = unlocked != 0
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListLocked returns the badges the user has not unlocked yet.
func (s *BadgeStore) ListLocked(userID int64) ([]model.Badge, error) {
	rows, err := s.db.Query(
		`SELECT `+badgeCols+` FROM badges b
		 WHERE NOT EXISTS (SELECT 1 FROM user_badges ub WHERE ub.badge_id = b.id AND ub.user_id = ?)
		 ORDER BY b.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list locked badges: %w", err)
	}
	defer rows.Close()

	var badges []model.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, *b)
	}
	return badges, rows.Err()
}

// Unlock records the badge for the user. It returns nil when the badge was
// already unlocked; unlocks are never duplicated or revoked.
func (s *BadgeStore) Unlock(userID int64, b model.Badge, at time.Time) (*model.UserBadge, error) {
	res, err := s.db.Exec(
		`INSERT INTO user_badges (user_id, badge_id, unlocked_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, badge_id) DO NOTHING`,
		userID, b.ID, at.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("unlock badge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &model.UserBadge{
		ID:         id,
		UserID:     userID,
		BadgeID:    b.ID,
		UnlockedAt: at.UTC(),
		Badge:      b,
	}, nil
}

const userBadgeSelect = `SELECT ub.id, ub.user_id, ub.badge_id, ub.unlocked_at, ub.seen, ` + badgeCols + `
	FROM user_badges ub JOIN badges b ON b.id = ub.badge_id`

func scanUserBadge(scanner interface{ Scan(...any) error }) (*model.UserBadge, error) {
	var ub model.UserBadge
	var seen int
	err := scanner.Scan(&ub.ID, &ub.UserID, &ub.BadgeID, &ub.UnlockedAt, &seen,
		&ub.Badge.ID, &ub.Badge.Code, &ub.Badge.Name, &ub.Badge.Description, &ub.Badge.Icon, &ub.Badge.Rule, &ub.Badge.CreatedAt)
	if err != nil {
		return nil, err
	}
	ub.Seen = seen != 0
	return &ub, nil
}

// ListByUser returns the user's unlocked badges, most recent first.
func (s *BadgeStore) ListByUser(userID int64) ([]model.UserBadge, error) {
	return s.listUserBadges(userBadgeSelect+` WHERE ub.user_id = ? ORDER BY ub.unlocked_at DESC, ub.id DESC`, userID)
}

// ListRecentUnseen returns unacknowledged unlocks, oldest first.
func (s *BadgeStore) ListRecentUnseen(userID int64) ([]model.UserBadge, error) {
	return s.listUserBadges(userBadgeSelect+` WHERE ub.user_id = ? AND ub.seen = 0 ORDER BY ub.unlocked_at ASC, ub.id ASC`, userID)
}

func (s *BadgeStore) listUserBadges(query string, args ...any) ([]model.UserBadge, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list user badges: %w", err)
	}
	defer rows.Close()

	var out []model.UserBadge
	for rows.Next() {
		ub, err := scanUserBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user badge: %w", err)
		}
		out = append(out, *ub)
	}
	return out, rows.Err()
}

// MarkSeen acknowledges an unlock owned by userID. Idempotent.
func (s *BadgeStore) MarkSeen(userID, userBadgeID int64) error {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM user_badges WHERE id = ? AND user_id = ?`, userBadgeID, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get user badge: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE user_badges SET seen = 1 WHERE id = ? AND seen = 0`, userBadgeID); err != nil {
		return fmt.Errorf("mark badge seen: %w", err)
	}
	return nil
}
