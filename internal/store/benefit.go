package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/freelancequest/internal/catalog"
	"github.com/dukerupert/freelancequest/internal/model"
)

type BenefitStore struct {
	db *sql.DB
}

func NewBenefitStore(db *sql.DB) *BenefitStore {
	return &BenefitStore{db: db}
}

const benefitCols = `b.id, b.code, b.name, b.description, b.cost`

func scanBenefit(scanner interface{ Scan(...any) error }) (*model.Benefit, error) {
	var b model.Benefit
	if err := scanner.Scan(&b.ID, &b.Code, &b.Name, &b.Description, &b.Cost); err != nil {
		return nil, err
	}
	return &b, nil
}

// Sync upserts catalog benefits by code.
func (s *BenefitStore) Sync(benefits []catalog.Benefit) error {
	for _, b := range benefits {
		_, err := s.db.Exec(
			`INSERT INTO platform_benefits (code, name, description, cost) VALUES (?, ?, ?, ?)
			 ON CONFLICT (code) DO UPDATE SET
			   name = excluded.name, description = excluded.description, cost = excluded.cost`,
			b.Code, b.Name, b.Description, b.Cost,
		)
		if err != nil {
			return fmt.Errorf("upsert benefit %s: %w", b.Code, err)
		}
	}
	return nil
}

func (s *BenefitStore) List() ([]model.Benefit, error) {
	rows, err := s.db.Query(`SELECT ` + benefitCols + ` FROM platform_benefits b ORDER BY b.cost ASC, b.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list benefits: %w", err)
	}
	defer rows.Close()

	var benefits []model.Benefit
	for rows.Next() {
		b, err := scanBenefit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan benefit: %w", err)
		}
		benefits = append(benefits, *b)
	}
	return benefits, rows.Err()
}

func (s *BenefitStore) GetByID(id int64) (*model.Benefit, error) {
	row := s.db.QueryRow(`SELECT `+benefitCols+` FROM platform_benefits b WHERE b.id = ?`, id)
	b, err := scanBenefit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get benefit: %w", err)
	}
	return b, nil
}

// ListByUser returns the benefits the user has acquired, newest first.
func (s *BenefitStore) ListByUser(userID int64) ([]model.UserBenefit, error) {
	rows, err := s.db.Query(
		`SELECT ub.id, ub.user_id, ub.benefit_id, ub.acquired_at, `+benefitCols+`
		 FROM user_benefits ub JOIN platform_benefits b ON b.id = ub.benefit_id
		 WHERE ub.user_id = ? ORDER BY ub.acquired_at DESC, ub.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user benefits: %w", err)
	}
	defer rows.Close()

	var out []model.UserBenefit
	for rows.Next() {
		var ub model.UserBenefit
		err := rows.Scan(&ub.ID, &ub.UserID, &ub.BenefitID, &ub.AcquiredAt,
			&ub.Benefit.ID, &ub.Benefit.Code, &ub.Benefit.Name, &ub.Benefit.Description, &ub.Benefit.Cost)
		if err != nil {
			return nil, fmt.Errorf("scan user benefit: %w", err)
		}
		out = append(out, ub)
	}
	return out, rows.Err()
}

// Redeem spends points on a benefit. Each benefit can be owned once. The
// points are taken with a compare-and-decrement inside the same write
// transaction as the ownership record, so it cannot race reward credits.
func (s *BenefitStore) Redeem(ctx context.Context, userID, benefitID int64) (*model.UserBenefit, *model.Profile, error) {
	var acquired *model.UserBenefit
	var profile *model.Profile

	err := WithTx(ctx, s.db, func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+benefitCols+` FROM platform_benefits b WHERE b.id = ?`, benefitID)
		benefit, err := scanBenefit(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get benefit: %w", err)
		}

		var owned int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM user_benefits WHERE user_id = ? AND benefit_id = ?`, userID, benefitID,
		).Scan(&owned); err != nil {
			return fmt.Errorf("check ownership: %w", err)
		}
		if owned > 0 {
			return ErrAlreadyOwned
		}

		profiles := NewProfileStore(tx)
		if _, err := profiles.Get(userID); err != nil {
			return err
		}
		if err := profiles.DeductPoints(userID, benefit.Cost); err != nil {
			return err
		}

		res, err := tx.Exec(`INSERT INTO user_benefits (user_id, benefit_id) VALUES (?, ?)`, userID, benefitID)
		if err != nil {
			return fmt.Errorf("insert user benefit: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		var ub model.UserBenefit
		if err := tx.QueryRow(
			`SELECT id, user_id, benefit_id, acquired_at FROM user_benefits WHERE id = ?`, id,
		).Scan(&ub.ID, &ub.UserID, &ub.BenefitID, &ub.AcquiredAt); err != nil {
			return fmt.Errorf("get user benefit: %w", err)
		}
		ub.Benefit = *benefit
		acquired = &ub

		profile, err = profiles.Get(userID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return acquired, profile, nil
}
