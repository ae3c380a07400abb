package domain

import "time"

type Role struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Well-known role names seeded by the initial migration.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
