package handlers

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tcmhub/apiserver/internal/dbx"
	"github.com/tcmhub/apiserver/internal/services"
	"github.com/tcmhub/apiserver/internal/store"
	"github.com/tcmhub/apiserver/types"
)

const testJWTSecret = "handler-test-secret"

// memUserRepo is an in-memory services.UserRepository.
type memUserRepo struct {
	users map[uuid.UUID]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]types.User)}
}

func (r *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	r.users[user.ID] = user
	return user, nil
}

// memState backs the project and membership fakes.
type memState struct {
	projects    map[uuid.UUID]types.Project
	memberships []types.Membership
}

func newMemState() *memState {
	return &memState{projects: make(map[uuid.UUID]types.Project)}
}

func (s *memState) membership(projectID, userID uuid.UUID) (types.Membership, bool) {
	for _, m := range s.memberships {
		if m.ProjectID == projectID && m.User.ID == userID {
			return m, true
		}
	}
	return types.Membership{}, false
}

type memProjectRepo struct {
	s *memState
}

func (r *memProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (types.Project, error) {
	project, ok := r.s.projects[id]
	if !ok {
		return types.Project{}, store.ErrNotFound
	}
	return project, nil
}

func (r *memProjectRepo) GetByIDTx(ctx context.Context, tx dbx.DBTX, id uuid.UUID) (types.Project, error) {
	return r.GetByID(ctx, id)
}

func (r *memProjectRepo) GetByIDForMember(ctx context.Context, id, userID uuid.UUID) (types.Project, error) {
	if _, ok := r.s.membership(id, userID); !ok {
		return types.Project{}, store.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *memProjectRepo) GetByName(ctx context.Context, name string) (types.Project, error) {
	for _, project := range r.s.projects {
		if project.Name == name {
			return project, nil
		}
	}
	return types.Project{}, store.ErrNotFound
}

func (r *memProjectRepo) ListWithCreator(ctx context.Context) ([]types.Project, error) {
	projects := make([]types.Project, 0, len(r.s.projects))
	for _, project := range r.s.projects {
		projects = append(projects, project)
	}
	return projects, nil
}

func (r *memProjectRepo) ListForMember(ctx context.Context, userID uuid.UUID) ([]types.Project, error) {
	projects := make([]types.Project, 0)
	for _, m := range r.s.memberships {
		if m.User.ID != userID {
			continue
		}
		if project, ok := r.s.projects[m.ProjectID]; ok {
			projects = append(projects, project)
		}
	}
	return projects, nil
}

func (r *memProjectRepo) Create(ctx context.Context, tx dbx.DBTX, project types.Project) (types.Project, error) {
	for _, existing := range r.s.projects {
		if existing.Name == project.Name {
			return types.Project{}, store.ErrConflict
		}
	}
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	r.s.projects[project.ID] = project
	return project, nil
}

func (r *memProjectRepo) Update(ctx context.Context, project types.Project) (types.Project, error) {
	if _, ok := r.s.projects[project.ID]; !ok {
		return types.Project{}, store.ErrNotFound
	}
	r.s.projects[project.ID] = project
	return project, nil
}

func (r *memProjectRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.s.projects[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.projects, id)
	return nil
}

type memMembershipRepo struct {
	s *memState
}

func (r *memMembershipRepo) Exists(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	_, ok := r.s.membership(projectID, userID)
	return ok, nil
}

func (r *memMembershipRepo) GetRole(ctx context.Context, projectID, userID uuid.UUID) (types.Role, error) {
	m, ok := r.s.membership(projectID, userID)
	if !ok {
		return "", store.ErrNotFound
	}
	return m.Role, nil
}

func (r *memMembershipRepo) ListForProject(ctx context.Context, projectID uuid.UUID) ([]types.Membership, error) {
	memberships := make([]types.Membership, 0)
	for _, m := range r.s.memberships {
		if m.ProjectID == projectID {
			memberships = append(memberships, m)
		}
	}
	return memberships, nil
}

func (r *memMembershipRepo) Create(ctx context.Context, tx dbx.DBTX, membership types.Membership) (types.Membership, error) {
	if membership.ID == uuid.Nil {
		membership.ID = uuid.New()
	}
	r.s.memberships = append(r.s.memberships, membership)
	return membership, nil
}

func newTestProjectService(s *memState) *services.ProjectService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	passthrough := func(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
		return fn(ctx, nil)
	}
	return services.NewProjectService(passthrough, &memProjectRepo{s: s}, &memMembershipRepo{s: s}, nil, logger)
}
