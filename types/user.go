package types

import (
	"time"

	"github.com/google/uuid"
)

// Role is an authorization level. The same set of values is used on two
// independent axes: a user's global role and a member's role within a
// single project.
type Role string

const (
	// RoleAdmin grants full access. As a global role it bypasses all
	// project-level checks; as a project role it allows managing that
	// project.
	RoleAdmin Role = "ADMIN"

	// RoleTester is the default role for newly registered users.
	RoleTester Role = "TESTER"

	// RoleViewer grants read-only access.
	RoleViewer Role = "VIEWER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTester, RoleViewer:
		return true
	}
	return false
}

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID uuid.UUID `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// Role is the user's global authorization level. It is fixed at
	// registration and independent of any per-project membership role.
	Role Role `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Caller is the authenticated identity a request acts as. It is decoded
// from the bearer token at the boundary and passed explicitly into
// service operations, so the core never reads ambient request state.
type Caller struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
}

// IsGlobalAdmin reports whether the caller holds the global ADMIN role.
func (c Caller) IsGlobalAdmin() bool {
	return c.Role == RoleAdmin
}
