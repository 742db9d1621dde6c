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

// Every project read joins the creator so callers always get a
// populated Project.Creator.
const projectSelect = `
	SELECT p.id, p.name, COALESCE(p.description, ''), p.created_at, p.updated_at,
		u.id, u.username, u.email, u.role, u.created_at, u.updated_at
	FROM projects p
	JOIN users u ON u.id = p.creator_id`

// ProjectRepository handles persistence for projects.
type ProjectRepository struct {
	db dbx.DBTX
}

func NewProjectRepository(db dbx.DBTX) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (types.Project, error) {
	const query = projectSelect + `
	WHERE p.id = $1`
	return scanProject(r.db.QueryRowContext(ctx, query, id))
}

// GetByIDTx is GetByID against a transactional handle. Used by the
// create flow to re-read the project before the transaction commits.
func (r *ProjectRepository) GetByIDTx(ctx context.Context, tx dbx.DBTX, id uuid.UUID) (types.Project, error) {
	const query = projectSelect + `
	WHERE p.id = $1`
	return scanProject(tx.QueryRowContext(ctx, query, id))
}

// GetByIDForMember returns the project only if a membership row links
// it to userID. A project that exists but is not visible to userID is
// reported as ErrNotFound, same as a nonexistent one.
func (r *ProjectRepository) GetByIDForMember(ctx context.Context, id, userID uuid.UUID) (types.Project, error) {
	const query = projectSelect + `
	JOIN project_memberships m ON m.project_id = p.id
	WHERE p.id = $1 AND m.user_id = $2`
	return scanProject(r.db.QueryRowContext(ctx, query, id, userID))
}

func (r *ProjectRepository) GetByName(ctx context.Context, name string) (types.Project, error) {
	const query = projectSelect + `
	WHERE p.name = $1`
	return scanProject(r.db.QueryRowContext(ctx, query, name))
}

func (r *ProjectRepository) ListWithCreator(ctx context.Context) ([]types.Project, error) {
	rows, err := r.db.QueryContext(ctx, projectSelect)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

// ListForMember returns the projects userID holds a membership in.
func (r *ProjectRepository) ListForMember(ctx context.Context, userID uuid.UUID) ([]types.Project, error) {
	const query = projectSelect + `
	JOIN project_memberships m ON m.project_id = p.id
	WHERE m.user_id = $1`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectProjects(rows)
}

// Create inserts a project inside the given transaction. A duplicate
// name is reported as ErrConflict (the unique constraint is the
// backstop for concurrent creates that pass the service's pre-check).
func (r *ProjectRepository) Create(ctx context.Context, tx dbx.DBTX, project types.Project) (types.Project, error) {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	const query = `
		INSERT INTO projects (id, name, description, creator_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(
		ctx,
		query,
		project.ID,
		project.Name,
		project.Description,
		project.Creator.ID,
		project.CreatedAt,
		project.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.Project{}, ErrConflict
		}
		return types.Project{}, err
	}
	return project, nil
}

func (r *ProjectRepository) Update(ctx context.Context, project types.Project) (types.Project, error) {
	project.UpdatedAt = time.Now()

	const query = `
		UPDATE projects
		SET name = $1,
			description = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(
		ctx,
		query,
		project.Name,
		project.Description,
		project.UpdatedAt,
		project.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Project{}, ErrConflict
		}
		return types.Project{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Project{}, err
	}
	if affected == 0 {
		return types.Project{}, ErrNotFound
	}
	return project, nil
}

// Delete removes a project by id. Membership and attachment rows go
// with it via the schema's ON DELETE CASCADE.
func (r *ProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM projects WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProjectRow(row rowScanner) (types.Project, error) {
	var project types.Project
	err := row.Scan(
		&project.ID,
		&project.Name,
		&project.Description,
		&project.CreatedAt,
		&project.UpdatedAt,
		&project.Creator.ID,
		&project.Creator.Username,
		&project.Creator.Email,
		&project.Creator.Role,
		&project.Creator.CreatedAt,
		&project.Creator.UpdatedAt,
	)
	return project, err
}

func scanProject(row *sql.Row) (types.Project, error) {
	project, err := scanProjectRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Project{}, ErrNotFound
		}
		return types.Project{}, err
	}
	return project, nil
}

func collectProjects(rows *sql.Rows) ([]types.Project, error) {
	defer rows.Close()

	projects := make([]types.Project, 0)
	for rows.Next() {
		project, err := scanProjectRow(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return projects, nil
}
