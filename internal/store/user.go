package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/freelancequest/internal/model"
)

type UserStore struct {
	db Querier
}

func NewUserStore(db Querier) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	if err := scanner.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, username, role, created_at, updated_at`

// Upsert registers the identity owned by the auth collaborator, or refreshes
// its username and role.
func (s *UserStore) Upsert(id int64, username, role string) (*model.User, error) {
	_, err := s.db.Exec(
		`INSERT INTO users (id, username, role) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET username = excluded.username, role = excluded.role, updated_at = CURRENT_TIMESTAMP`,
		id, username, role,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO gamification_profiles (user_id) VALUES (?) ON CONFLICT (user_id) DO NOTHING`, id); err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
