package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tcmhub/apiserver/internal/services"
	"github.com/tcmhub/apiserver/internal/store"
	"github.com/tcmhub/apiserver/types"
)

const maxProjectNameLength = 255

// ProjectHandler provides HTTP handlers for projects and their
// memberships.
type ProjectHandler struct {
	projectService *services.ProjectService
}

func NewProjectHandler(projectService *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

// ProjectRouter registers project routes on the given router. Role
// gating happens here, before the service runs: creation and deletion
// are restricted to global ADMINs, everything else is open to any
// authenticated caller and scoped inside the service.
// attachmentService may be nil when no object storage is configured.
func ProjectRouter(r chi.Router, projectService *services.ProjectService, attachmentService *services.AttachmentService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewProjectHandler(projectService)

	r.Use(authMiddleware)

	r.With(requireGlobalRole(types.RoleAdmin)).Post("/", handler.CreateProject)
	r.Get("/", handler.ListProjects)
	r.Route("/{projectID}", func(r chi.Router) {
		r.Get("/", handler.GetProject)
		r.Patch("/", handler.UpdateProject)
		r.With(requireGlobalRole(types.RoleAdmin)).Delete("/", handler.DeleteProject)
		r.Get("/members", handler.ListMembers)
		if attachmentService != nil {
			r.Route("/attachments", func(r chi.Router) {
				AttachmentRouter(r, attachmentService)
			})
		}
	})
}

// requireGlobalRole gates a route on the caller's global role. Project
// level permissions are the service's business; this is only the outer
// capability check.
func requireGlobalRole(role types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := callerFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if caller.Role != role {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > maxProjectNameLength {
		writeError(w, http.StatusBadRequest, "name must be 1-255 characters")
		return
	}

	created, err := h.projectService.Create(r.Context(), req.Name, req.Description, caller)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "project name already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projects, err := h.projectService.ListForCaller(r.Context(), caller)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	writeJSON(w, http.StatusOK, projects)
}

func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseUUIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.projectService.GetByIDForCaller(r.Context(), id, caller)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch project")
		return
	}

	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseUUIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var patch types.ProjectPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" || len(trimmed) > maxProjectNameLength {
			writeError(w, http.StatusBadRequest, "name must be 1-255 characters")
			return
		}
		patch.Name = &trimmed
	}

	updated, err := h.projectService.Update(r.Context(), id, patch, caller)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "project not found")
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "you do not have permission to update this project")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "project name already exists")
		default:
			writeError(w, http.StatusInternalServerError, "failed to update project")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.projectService.Remove(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete project")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseUUIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	members, err := h.projectService.ListMembers(r.Context(), id, caller)
	if err != nil {
		if errors.Is(err, services.ErrForbidden) {
			writeError(w, http.StatusForbidden, "you do not have access to this project's members")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}

	writeJSON(w, http.StatusOK, members)
}

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
