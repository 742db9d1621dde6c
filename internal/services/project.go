package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tcmhub/apiserver/internal/dbx"
	"github.com/tcmhub/apiserver/internal/events"
	"github.com/tcmhub/apiserver/internal/store"
	"github.com/tcmhub/apiserver/types"
)

// ProjectRepository defines persistence operations for projects.
// Create and GetByIDTx run against the transactional handle they are
// given; everything else runs on the pool.
type ProjectRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.Project, error)
	GetByIDTx(ctx context.Context, tx dbx.DBTX, id uuid.UUID) (types.Project, error)
	GetByIDForMember(ctx context.Context, id, userID uuid.UUID) (types.Project, error)
	GetByName(ctx context.Context, name string) (types.Project, error)
	ListWithCreator(ctx context.Context) ([]types.Project, error)
	ListForMember(ctx context.Context, userID uuid.UUID) ([]types.Project, error)
	Create(ctx context.Context, tx dbx.DBTX, project types.Project) (types.Project, error)
	Update(ctx context.Context, project types.Project) (types.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MembershipRepository defines persistence operations for project
// memberships.
type MembershipRepository interface {
	Exists(ctx context.Context, projectID, userID uuid.UUID) (bool, error)
	GetRole(ctx context.Context, projectID, userID uuid.UUID) (types.Role, error)
	ListForProject(ctx context.Context, projectID uuid.UUID) ([]types.Membership, error)
	Create(ctx context.Context, tx dbx.DBTX, membership types.Membership) (types.Membership, error)
}

// ProjectService composes the project directory and the membership
// ledger with the caller's identity to authorize and execute project
// operations. Authorization runs on two independent axes: the caller's
// global role (ADMIN bypasses all project-level checks) and, for
// everyone else, the caller's membership role within the one project
// being touched.
type ProjectService struct {
	projects    ProjectRepository
	memberships MembershipRepository
	publisher   events.Publisher
	logger      *slog.Logger

	// runTx wraps the create flow's writes in one transaction.
	runTx dbx.TxRunner
}

// NewProjectService constructs the service. publisher may be nil to
// disable lifecycle events.
func NewProjectService(runTx dbx.TxRunner, projects ProjectRepository, memberships MembershipRepository, publisher events.Publisher, logger *slog.Logger) *ProjectService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectService{
		projects:    projects,
		memberships: memberships,
		publisher:   publisher,
		logger:      logger,
		runTx:       runTx,
	}
}

// Create inserts a new project and, in the same transaction, a
// membership row making the creator a project ADMIN, then re-reads the
// project joined with its creator. A duplicate name is store.ErrConflict,
// whether caught by the pre-check or by the unique constraint during a
// concurrent race. Any other transactional failure comes back as an
// opaque internal error; callers never see storage details.
//
// The routing layer restricts this operation to global ADMIN callers;
// the service itself does not re-check the creator's role.
func (s *ProjectService) Create(ctx context.Context, name, description string, creator types.Caller) (types.Project, error) {
	if _, err := s.projects.GetByName(ctx, name); err == nil {
		return types.Project{}, fmt.Errorf("project name %q: %w", name, store.ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Project{}, fmt.Errorf("check project name: %w", err)
	}

	var created types.Project
	err := s.runTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		project, err := s.projects.Create(ctx, tx, types.Project{
			Name:        name,
			Description: description,
			Creator:     types.User{ID: creator.ID},
		})
		if err != nil {
			return err
		}

		if _, err := s.memberships.Create(ctx, tx, types.Membership{
			ProjectID: project.ID,
			User:      types.User{ID: creator.ID},
			Role:      types.RoleAdmin,
		}); err != nil {
			return err
		}

		created, err = s.projects.GetByIDTx(ctx, tx, project.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return errors.New("project missing on re-read after create")
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Project{}, fmt.Errorf("project name %q: %w", name, store.ErrConflict)
		}
		return types.Project{}, fmt.Errorf("create project: %w", err)
	}

	s.publish(ctx, events.ProjectEvent{
		Type:      events.ProjectCreated,
		ProjectID: created.ID,
		Name:      created.Name,
		ActorID:   creator.ID,
	})
	return created, nil
}

// ListForCaller returns every project for a global ADMIN, and only the
// projects the caller is a member of for everyone else.
func (s *ProjectService) ListForCaller(ctx context.Context, caller types.Caller) ([]types.Project, error) {
	if caller.IsGlobalAdmin() {
		return s.projects.ListWithCreator(ctx)
	}
	return s.projects.ListForMember(ctx, caller.ID)
}

// GetByIDForCaller resolves a project the caller may see. For
// non-admins the lookup is scoped to their memberships, so a project
// they are not a member of is store.ErrNotFound — indistinguishable
// from a project that does not exist.
func (s *ProjectService) GetByIDForCaller(ctx context.Context, id uuid.UUID, caller types.Caller) (types.Project, error) {
	if caller.IsGlobalAdmin() {
		return s.projects.GetByID(ctx, id)
	}
	return s.projects.GetByIDForMember(ctx, id, caller.ID)
}

// Update applies a partial patch to a project. The target is resolved
// through GetByIDForCaller, which both authorizes visibility and keeps
// missing and invisible projects uniformly NotFound. Non-global-admins
// must additionally hold a project-ADMIN membership. A name change that
// collides with a different project is store.ErrConflict. Fields absent
// from the patch keep their prior values.
func (s *ProjectService) Update(ctx context.Context, id uuid.UUID, patch types.ProjectPatch, caller types.Caller) (types.Project, error) {
	project, err := s.GetByIDForCaller(ctx, id, caller)
	if err != nil {
		return types.Project{}, err
	}

	if !caller.IsGlobalAdmin() {
		role, err := s.memberships.GetRole(ctx, id, caller.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return types.Project{}, fmt.Errorf("check membership role: %w", err)
		}
		if role != types.RoleAdmin {
			return types.Project{}, fmt.Errorf("update project: %w", ErrForbidden)
		}
	}

	if patch.Name != nil && *patch.Name != project.Name {
		existing, err := s.projects.GetByName(ctx, *patch.Name)
		if err == nil && existing.ID != id {
			return types.Project{}, fmt.Errorf("project name %q: %w", *patch.Name, store.ErrConflict)
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return types.Project{}, fmt.Errorf("check project name: %w", err)
		}
	}

	if patch.Name != nil {
		project.Name = *patch.Name
	}
	if patch.Description != nil {
		project.Description = *patch.Description
	}

	updated, err := s.projects.Update(ctx, project)
	if err != nil {
		return types.Project{}, err
	}

	s.publish(ctx, events.ProjectEvent{
		Type:      events.ProjectUpdated,
		ProjectID: updated.ID,
		Name:      updated.Name,
		ActorID:   caller.ID,
	})
	return updated, nil
}

// Remove deletes a project by id; membership rows cascade at the
// storage layer. Deleting a project that does not exist (including one
// already deleted) is store.ErrNotFound.
//
// Remove takes no caller: the routing layer alone restricts it to
// global ADMIN callers. The asymmetry with the other mutating
// operations is intentional and part of the service's contract.
func (s *ProjectService) Remove(ctx context.Context, id uuid.UUID) error {
	if err := s.projects.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, events.ProjectEvent{
		Type:      events.ProjectDeleted,
		ProjectID: id,
	})
	return nil
}

// ListMembers returns the membership rows of a project with users
// populated. Global ADMINs get the rows unconditionally — an unknown
// project simply yields an empty set. Everyone else must themselves be
// a member, otherwise ErrForbidden.
func (s *ProjectService) ListMembers(ctx context.Context, projectID uuid.UUID, caller types.Caller) ([]types.Membership, error) {
	if !caller.IsGlobalAdmin() {
		member, err := s.memberships.Exists(ctx, projectID, caller.ID)
		if err != nil {
			return nil, fmt.Errorf("check membership: %w", err)
		}
		if !member {
			return nil, fmt.Errorf("list members: %w", ErrForbidden)
		}
	}
	return s.memberships.ListForProject(ctx, projectID)
}

func (s *ProjectService) publish(ctx context.Context, event events.ProjectEvent) {
	if s.publisher == nil {
		return
	}
	event.OccurredAt = time.Now()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("publish project event failed",
			"type", event.Type,
			"project_id", event.ProjectID,
			"error", err,
		)
	}
}
