package model

import "time"

const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidRole reports whether role is one of the marketplace roles.
func ValidRole(role string) bool {
	return role == RoleClient || role == RoleFreelancer
}
