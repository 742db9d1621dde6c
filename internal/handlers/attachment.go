package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tcmhub/apiserver/internal/services"
	"github.com/tcmhub/apiserver/internal/store"
)

const (
	maxAttachmentMemory = 32 << 20
	maxAttachmentBytes  = 128 << 20
	formFieldFile       = "file"
)

// AttachmentHandler provides HTTP handlers for project attachments.
type AttachmentHandler struct {
	attachmentService *services.AttachmentService
}

func NewAttachmentHandler(attachmentService *services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

// AttachmentRouter registers attachment routes under a project route
// that already carries the auth middleware and {projectID} parameter.
func AttachmentRouter(r chi.Router, attachmentService *services.AttachmentService) {
	handler := NewAttachmentHandler(attachmentService)

	r.Post("/", handler.Upload)
	r.Get("/", handler.List)
	r.Route("/{attachmentID}", func(r chi.Router) {
		r.Get("/", handler.Download)
		r.Delete("/", handler.Delete)
	})
}

func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := parseUUIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBytes)
	if err := r.ParseMultipartForm(maxAttachmentMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attachment, err := h.attachmentService.Upload(
		r.Context(),
		projectID,
		caller,
		header.Filename,
		contentType,
		header.Size,
		file,
	)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "project not found")
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "you do not have permission to upload to this project")
		default:
			writeError(w, http.StatusInternalServerError, "failed to store attachment")
		}
		return
	}

	writeJSON(w, http.StatusCreated, attachment)
}

func (h *AttachmentHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := parseUUIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	attachments, err := h.attachmentService.ListForProject(r.Context(), projectID, caller)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list attachments")
		return
	}

	writeJSON(w, http.StatusOK, attachments)
}

func (h *AttachmentHandler) Download(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := parseUUIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	attachmentID, err := parseUUIDParam(r, "attachmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	attachment, reader, err := h.attachmentService.Open(r.Context(), projectID, attachmentID, caller)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "attachment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to open attachment")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", attachment.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(attachment.SizeBytes, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+attachment.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func (h *AttachmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := parseUUIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	attachmentID, err := parseUUIDParam(r, "attachmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.attachmentService.Remove(r.Context(), projectID, attachmentID, caller); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "attachment not found")
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "you do not have permission to delete this attachment")
		default:
			writeError(w, http.StatusInternalServerError, "failed to delete attachment")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
