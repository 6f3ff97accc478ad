package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/freelancequest/internal/cadence"
	"github.com/dukerupert/freelancequest/internal/model"
)

type ProgressStore struct {
	db  Querier
	loc *time.Location
}

// NewProgressStore returns a store that resolves cadence windows in loc.
func NewProgressStore(db Querier, loc *time.Location) *ProgressStore {
	if loc == nil {
		loc = time.UTC
	}
	return &ProgressStore{db: db, loc: loc}
}

// WithTx returns a copy of the store bound to tx.
func (s *ProgressStore) WithTx(tx *sql.Tx) *ProgressStore {
	return &ProgressStore{db: tx, loc: s.loc}
}

// Location is the timezone window boundaries are computed in.
func (s *ProgressStore) Location() *time.Location {
	return s.loc
}

func scanProgress(scanner interface{ Scan(...any) error }, extra ...any) (*model.MissionProgress, error) {
	var p model.MissionProgress
	var completed, seen int
	var windowStart, completedAt sql.NullTime

	dest := []any{&p.ID, &p.UserID, &p.MissionID, &p.WindowKey, &windowStart, &p.CurrentCount,
		&p.GoalCount, &completed, &completedAt, &seen, &p.CreatedAt, &p.UpdatedAt}
	if err := scanner.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	p.Completed = completed != 0
	p.Seen = seen != 0
	if windowStart.Valid {
		ws := windowStart.Time
		p.WindowStart = &ws
	}
	if completedAt.Valid {
		ca := completedAt.Time
		p.CompletedAt = &ca
	}
	return &p, nil
}

const progressCols = `p.id, p.user_id, p.mission_id, p.window_key, p.window_start, p.current_count,
	m.goal_count, p.completed, p.completed_at, p.seen, p.created_at, p.updated_at`

const progressFrom = ` FROM mission_progress p JOIN missions m ON m.id = p.mission_id`

const progressMissionCols = `, m.code, m.title, m.description, m.cadence, m.xp_reward, m.point_reward, m.active`

// RecordEvent increments the current-window progress of every active mission
// triggered by eventType and returns the rows that changed. Rows are created
// lazily on the first event of a window. An increment on a completed row, or
// one that would pass goal_count, is a silent no-op.
//
// The store must be bound to a write transaction (WithTx) for the
// increment-then-compare sequence to be atomic per row.
func (s *ProgressStore) RecordEvent(userID int64, eventType string, occurredAt time.Time) ([]model.MissionProgress, error) {
	missions, err := NewMissionStore(s.db).ListByTrigger(eventType)
	if err != nil {
		return nil, fmt.Errorf("resolve missions: %w", err)
	}

	var changed []model.MissionProgress
	for _, m := range missions {
		w, err := cadence.Resolve(m.Cadence, occurredAt, s.loc)
		if err != nil {
			return nil, fmt.Errorf("mission %s: %w", m.Code, err)
		}

		p, err := s.increment(userID, m, w)
		if err != nil {
			return nil, err
		}
		if p != nil {
			changed = append(changed, *p)
		}
	}
	return changed, nil
}

// increment returns nil when the row was already completed.
func (s *ProgressStore) increment(userID int64, m model.Mission, w cadence.Window) (*model.MissionProgress, error) {
	var start any
	if !w.IsOnce() {
		start = w.Start.UTC()
	}

	// Completed rows already exist, so a no-op increment never creates one.
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM mission_progress WHERE user_id = ? AND mission_id = ? AND window_key = ?`,
		userID, m.ID, w.Key,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check progress: %w", err)
	}
	if exists == 0 {
		if _, err := s.db.Exec(
			`INSERT INTO mission_progress (user_id, mission_id, window_key, window_start) VALUES (?, ?, ?, ?)
			 ON CONFLICT (user_id, mission_id, window_key) DO NOTHING`,
			userID, m.ID, w.Key, start,
		); err != nil {
			return nil, fmt.Errorf("create progress: %w", err)
		}
	}

	res, err := s.db.Exec(
		`UPDATE mission_progress SET current_count = current_count + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ? AND mission_id = ? AND window_key = ? AND completed = 0 AND current_count < ?`,
		userID, m.ID, w.Key, m.GoalCount,
	)
	if err != nil {
		return nil, fmt.Errorf("increment progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return s.pendingSettlement(userID, m, w)
	}

	row := s.db.QueryRow(
		`SELECT `+progressCols+progressFrom+` WHERE p.user_id = ? AND p.mission_id = ? AND p.window_key = ?`,
		userID, m.ID, w.Key,
	)
	p, err := scanProgress(row)
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

// pendingSettlement returns the open row of the window when it already meets
// the goal, which happens after a catalog sync lowered goal_count. The row is
// reported unchanged so the caller settles it.
func (s *ProgressStore) pendingSettlement(userID int64, m model.Mission, w cadence.Window) (*model.MissionProgress, error) {
	row := s.db.QueryRow(
		`SELECT `+progressCols+progressFrom+`
		 WHERE p.user_id = ? AND p.mission_id = ? AND p.window_key = ? AND p.completed = 0 AND p.current_count >= ?`,
		userID, m.ID, w.Key, m.GoalCount,
	)
	p, err := scanProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending progress: %w", err)
	}
	return p, nil
}

// MarkCompleted flips an incomplete row to completed. It reports false when
// the row was already completed, which makes settlement fire at most once.
func (s *ProgressStore) MarkCompleted(id int64, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE mission_progress SET completed = 1, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND completed = 0`,
		at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("complete progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *ProgressStore) GetByID(id int64) (*model.MissionProgress, error) {
	row := s.db.QueryRow(`SELECT `+progressCols+progressFrom+` WHERE p.id = ?`, id)
	p, err := scanProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

// ProgressFilter narrows List. Zero values mean no filter.
type ProgressFilter struct {
	MissionID  int64
	UnseenOnly bool
}

// List returns the user's progress rows, newest window first.
func (s *ProgressStore) List(userID int64, f ProgressFilter) ([]model.ProgressWithMission, error) {
	query := `SELECT ` + progressCols + progressMissionCols + progressFrom + ` WHERE p.user_id = ?`
	args := []any{userID}
	if f.MissionID != 0 {
		query += ` AND p.mission_id = ?`
		args = append(args, f.MissionID)
	}
	if f.UnseenOnly {
		query += ` AND p.completed = 1 AND p.seen = 0`
	}
	query += ` ORDER BY p.created_at DESC, p.id DESC`
	return s.listWithMission(query, args...)
}

// ListRecentUnseen returns completed rows the user has not acknowledged,
// oldest completion first.
func (s *ProgressStore) ListRecentUnseen(userID int64) ([]model.ProgressWithMission, error) {
	return s.listWithMission(
		`SELECT `+progressCols+progressMissionCols+progressFrom+`
		 WHERE p.user_id = ? AND p.completed = 1 AND p.seen = 0
		 ORDER BY p.completed_at ASC, p.id ASC`,
		userID,
	)
}

func (s *ProgressStore) listWithMission(query string, args ...any) ([]model.ProgressWithMission, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []model.ProgressWithMission
	for rows.Next() {
		var m model.Mission
		var active int
		p, err := scanProgress(rows, &m.Code, &m.Title, &m.Description, &m.Cadence, &m.XPReward, &m.PointReward, &active)
		if err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		m.ID = p.MissionID
		m.GoalCount = p.GoalCount
		m.Active = active != 0
		out = append(out, model.ProgressWithMission{MissionProgress: *p, Mission: m})
	}
	return out, rows.Err()
}

// MarkSeen acknowledges a completed row owned by userID. It is idempotent:
// repeating it leaves the row unchanged. ErrNotFound is returned when the row
// does not exist, belongs to another user, or is not completed.
func (s *ProgressStore) MarkSeen(userID, id int64) error {
	var completed int
	err := s.db.QueryRow(
		`SELECT completed FROM mission_progress WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&completed)
	if err == sql.ErrNoRows || (err == nil && completed == 0) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get progress: %w", err)
	}

	if _, err := s.db.Exec(
		`UPDATE mission_progress SET seen = 1 WHERE id = ? AND user_id = ? AND seen = 0`,
		id, userID,
	); err != nil {
		return fmt.Errorf("mark progress seen: %w", err)
	}
	return nil
}
