package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/freelancequest/internal/model"
)

// EventStore is the idempotency ledger for ingested domain events. Its rows
// also serve as per-event-type tallies for badge rules.
type EventStore struct {
	db Querier
}

func NewEventStore(db Querier) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) WithTx(tx *sql.Tx) *EventStore {
	return &EventStore{db: tx}
}

// Claim records (userID, eventType, entityID) as processed. It reports false
// when the same event was already claimed, i.e. a duplicate delivery.
func (s *EventStore) Claim(userID int64, eventType, entityID string, occurredAt time.Time) (bool, error) {
	res, err := s.db.Exec(
		`INSERT INTO processed_events (user_id, event_type, entity_id, occurred_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, event_type, entity_id) DO NOTHING`,
		userID, eventType, entityID, occurredAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ListByUser returns the most recent processed events for a user.
func (s *EventStore) ListByUser(userID int64, limit int) ([]model.ProcessedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, user_id, event_type, entity_id, occurred_at, processed_at
		 FROM processed_events WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.ProcessedEvent
	for rows.Next() {
		var e model.ProcessedEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.EntityID, &e.OccurredAt, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Stats aggregates the gamification state badge rules are evaluated over.
func (s *EventStore) Stats(userID int64) (model.Stats, error) {
	st := model.Stats{
		UserID:             userID,
		Level:              1,
		CompletedByCadence: make(map[string]int),
		CompletedByMission: make(map[string]int),
		EventCounts:        make(map[string]int),
	}

	err := s.db.QueryRow(
		`SELECT xp, level, points FROM gamification_profiles WHERE user_id = ?`, userID,
	).Scan(&st.XP, &st.Level, &st.Points)
	if err != nil && err != sql.ErrNoRows {
		return st, fmt.Errorf("get profile: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT m.code, m.cadence, COUNT(*) FROM mission_progress p JOIN missions m ON m.id = p.mission_id
		 WHERE p.user_id = ? AND p.completed = 1 GROUP BY m.id`,
		userID,
	)
	if err != nil {
		return st, fmt.Errorf("count completions: %w", err)
	}
	for rows.Next() {
		var code, cad string
		var n int
		if err := rows.Scan(&code, &cad, &n); err != nil {
			rows.Close()
			return st, fmt.Errorf("scan completions: %w", err)
		}
		st.CompletedByMission[code] = n
		st.CompletedByCadence[cad] += n
		st.MissionsCompleted += n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return st, fmt.Errorf("iterate completions: %w", err)
	}
	rows.Close()

	rows, err = s.db.Query(
		`SELECT event_type, COUNT(*) FROM processed_events WHERE user_id = ? GROUP BY event_type`,
		userID,
	)
	if err != nil {
		return st, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var et string
		var n int
		if err := rows.Scan(&et, &n); err != nil {
			return st, fmt.Errorf("scan event counts: %w", err)
		}
		st.EventCounts[et] = n
	}
	return st, rows.Err()
}
