package model

import "time"

type Benefit struct {
	ID          int64  `json:"id"`
	Code        string `json:"effect_code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Cost        int64  `json:"cost"`
}

type UserBenefit struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	BenefitID  int64     `json:"benefit_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	Benefit    Benefit   `json:"benefit"`
}
