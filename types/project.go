package types

import (
	"time"

	"github.com/google/uuid"
)

// Project represents a test-case-management project: the unit that test
// suites, runs, and memberships hang off.
type Project struct {
	// ID is the unique identifier of the project.
	ID uuid.UUID `json:"id" db:"id"`

	// Name is the project name, unique across all projects.
	Name string `json:"name" db:"name"`

	// Description is optional free-form text. It may be empty.
	Description string `json:"description,omitempty" db:"description"`

	// Creator is the user that created the project. Immutable after
	// creation.
	Creator User `json:"creator" db:"-"`

	// CreatedAt is the timestamp at which the project was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the project.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProjectPatch carries a partial update for a project. Nil fields are
// left untouched.
type ProjectPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}
