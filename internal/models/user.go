package models

import "time"

// UserRole represents the available roles for dashboard access.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleBusiness UserRole = "BUSINESS"
)

// User represents an account stored in the users table. Businesses sign
// up to create feedback forms and QR codes; the auth core only cares
// about credentials, role and the active flag.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Name         string     `db:"name" json:"name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
