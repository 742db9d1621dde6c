package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tcmhub/apiserver/internal/dbx"
	"github.com/tcmhub/apiserver/types"
)

// MembershipRepository handles persistence for project memberships.
// The (project_id, user_id) pair is unique at the storage layer.
type MembershipRepository struct {
	db dbx.DBTX
}

func NewMembershipRepository(db dbx.DBTX) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Exists reports whether userID holds a membership in projectID.
func (r *MembershipRepository) Exists(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM project_memberships
			WHERE project_id = $1 AND user_id = $2
		)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, projectID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// GetRole returns userID's role within projectID, or ErrNotFound when
// no membership row exists.
func (r *MembershipRepository) GetRole(ctx context.Context, projectID, userID uuid.UUID) (types.Role, error) {
	const query = `
		SELECT role FROM project_memberships
		WHERE project_id = $1 AND user_id = $2`
	var role types.Role
	if err := r.db.QueryRowContext(ctx, query, projectID, userID).Scan(&role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return role, nil
}

// ListForProject returns all memberships of a project with each member
// user populated. A project with no rows (or no project at all) yields
// an empty slice, not an error.
func (r *MembershipRepository) ListForProject(ctx context.Context, projectID uuid.UUID) ([]types.Membership, error) {
	const query = `
		SELECT m.id, m.project_id, m.role, m.assigned_at,
			u.id, u.username, u.email, u.role, u.created_at, u.updated_at
		FROM project_memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.project_id = $1`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	memberships := make([]types.Membership, 0)
	for rows.Next() {
		var m types.Membership
		if err := rows.Scan(
			&m.ID,
			&m.ProjectID,
			&m.Role,
			&m.AssignedAt,
			&m.User.ID,
			&m.User.Username,
			&m.User.Email,
			&m.User.Role,
			&m.User.CreatedAt,
			&m.User.UpdatedAt,
		); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memberships, nil
}

// Create inserts a membership inside the given transaction.
func (r *MembershipRepository) Create(ctx context.Context, tx dbx.DBTX, membership types.Membership) (types.Membership, error) {
	if membership.ID == uuid.Nil {
		membership.ID = uuid.New()
	}
	membership.AssignedAt = time.Now()

	const query = `
		INSERT INTO project_memberships (id, project_id, user_id, role, assigned_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(
		ctx,
		query,
		membership.ID,
		membership.ProjectID,
		membership.User.ID,
		membership.Role,
		membership.AssignedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.Membership{}, ErrConflict
		}
		return types.Membership{}, err
	}
	return membership, nil
}
