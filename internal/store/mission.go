package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/freelancequest/internal/catalog"
	"github.com/dukerupert/freelancequest/internal/model"
)

type MissionStore struct {
	db Querier
}

func NewMissionStore(db Querier) *MissionStore {
	return &MissionStore{db: db}
}

func scanMission(scanner interface{ Scan(...any) error }) (*model.Mission, error) {
	var m model.Mission
	var active int
	var triggers sql.NullString

	err := scanner.Scan(&m.ID, &m.Code, &m.Title, &m.Description, &m.Cadence, &m.GoalCount,
		&m.XPReward, &m.PointReward, &active, &m.CreatedAt, &m.UpdatedAt, &triggers)
	if err != nil {
		return nil, err
	}

	m.Active = active != 0
	m.Triggers = []string{}
	if triggers.Valid && triggers.String != "" {
		m.Triggers = strings.Split(triggers.String, ",")
	}
	return &m, nil
}

const missionSelect = `SELECT m.id, m.code, m.title, m.description, m.cadence, m.goal_count,
	m.xp_reward, m.point_reward, m.active, m.created_at, m.updated_at,
	(SELECT GROUP_CONCAT(t.event_type, ',') FROM mission_triggers t WHERE t.mission_id = m.id)
	FROM missions m`

// Sync upserts every catalog mission by code and replaces its trigger set.
// Missions that disappeared from the catalog are deactivated, never deleted,
// because progress rows reference them.
func (s *MissionStore) Sync(missions []catalog.Mission) error {
	codes := make([]any, 0, len(missions))
	for _, m := range missions {
		_, err := s.db.Exec(
			`INSERT INTO missions (code, title, description, cadence, goal_count, xp_reward, point_reward, active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (code) DO UPDATE SET
			   title = excluded.title, description = excluded.description, cadence = excluded.cadence,
			   goal_count = excluded.goal_count, xp_reward = excluded.xp_reward,
			   point_reward = excluded.point_reward, active = excluded.active,
			   updated_at = CURRENT_TIMESTAMP`,
			m.Code, m.Title, m.Description, m.Cadence, m.GoalCount, m.XPReward, m.PointReward, boolInt(m.IsActive()),
		)
		if err != nil {
			return fmt.Errorf("upsert mission %s: %w", m.Code, err)
		}

		var id int64
		if err := s.db.QueryRow(`SELECT id FROM missions WHERE code = ?`, m.Code).Scan(&id); err != nil {
			return fmt.Errorf("get mission id %s: %w", m.Code, err)
		}
		if _, err := s.db.Exec(`DELETE FROM mission_triggers WHERE mission_id = ?`, id); err != nil {
			return fmt.Errorf("clear triggers %s: %w", m.Code, err)
		}
		for _, t := range m.Triggers {
			if _, err := s.db.Exec(
				`INSERT INTO mission_triggers (mission_id, event_type) VALUES (?, ?) ON CONFLICT DO NOTHING`,
				id, t,
			); err != nil {
				return fmt.Errorf("insert trigger %s/%s: %w", m.Code, t, err)
			}
		}
		codes = append(codes, m.Code)
	}

	query := `UPDATE missions SET active = 0, updated_at = CURRENT_TIMESTAMP WHERE active = 1`
	if len(codes) > 0 {
		query += ` AND code NOT IN (?` + strings.Repeat(", ?", len(codes)-1) + `)`
	}
	if _, err := s.db.Exec(query, codes...); err != nil {
		return fmt.Errorf("deactivate removed missions: %w", err)
	}
	return nil
}

func (s *MissionStore) GetByID(id int64) (*model.Mission, error) {
	row := s.db.QueryRow(missionSelect+` WHERE m.id = ?`, id)
	m, err := scanMission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mission: %w", err)
	}
	return m, nil
}

// ListActive returns active missions, optionally restricted to one cadence.
func (s *MissionStore) ListActive(cadence string) ([]model.Mission, error) {
	query := missionSelect + ` WHERE m.active = 1`
	var args []any
	if cadence != "" {
		query += ` AND m.cadence = ?`
		args = append(args, cadence)
	}
	query += ` ORDER BY m.id ASC`
	return s.list(query, args...)
}

// ListByTrigger returns the active missions that count eventType.
func (s *MissionStore) ListByTrigger(eventType string) ([]model.Mission, error) {
	return s.list(
		missionSelect+` WHERE m.active = 1
		  AND EXISTS (SELECT 1 FROM mission_triggers t WHERE t.mission_id = m.id AND t.event_type = ?)
		 ORDER BY m.id ASC`,
		eventType,
	)
}

func (s *MissionStore) list(query string, args ...any) ([]model.Mission, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var missions []model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}
