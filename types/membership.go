package types

import (
	"time"

	"github.com/google/uuid"
)

// Membership links one user to one project with a project-scoped role.
// A user holds at most one membership per project.
type Membership struct {
	// ID is the unique identifier of the membership row.
	ID uuid.UUID `json:"id" db:"id"`

	// ProjectID is the project this membership belongs to. Membership
	// rows are removed when their project is removed.
	ProjectID uuid.UUID `json:"project_id" db:"project_id"`

	// User is the member. Populated when memberships are listed.
	User User `json:"user" db:"-"`

	// Role is the member's authorization level within the project,
	// independent of the user's global role.
	Role Role `json:"role" db:"role"`

	// AssignedAt is the timestamp at which the membership was created.
	AssignedAt time.Time `json:"assigned_at" db:"assigned_at"`
}
