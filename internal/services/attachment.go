package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tcmhub/apiserver/internal/storage"
	"github.com/tcmhub/apiserver/internal/store"
	"github.com/tcmhub/apiserver/types"
)

// AttachmentRepository defines persistence operations for attachment
// catalog rows.
type AttachmentRepository interface {
	Get(ctx context.Context, projectID, id uuid.UUID) (types.Attachment, error)
	ListForProject(ctx context.Context, projectID uuid.UUID) ([]types.Attachment, error)
	Create(ctx context.Context, attachment types.Attachment) (types.Attachment, error)
	Delete(ctx context.Context, projectID, id uuid.UUID) error
}

// AttachmentService stores project files: catalog rows in Postgres,
// bytes in object storage. Visibility piggybacks on the project
// service, so a caller who cannot see a project cannot see (or probe
// for) its attachments either.
type AttachmentService struct {
	projects    *ProjectService
	memberships MembershipRepository
	attachments AttachmentRepository
	objects     storage.ObjectStorage
	logger      *slog.Logger
}

func NewAttachmentService(projects *ProjectService, memberships MembershipRepository, attachments AttachmentRepository, objects storage.ObjectStorage, logger *slog.Logger) *AttachmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentService{
		projects:    projects,
		memberships: memberships,
		attachments: attachments,
		objects:     objects,
		logger:      logger,
	}
}

// Upload stores a file against a project. The caller must see the
// project and must not be limited to a VIEWER project role; global
// ADMINs may always upload.
func (s *AttachmentService) Upload(ctx context.Context, projectID uuid.UUID, caller types.Caller, filename, contentType string, size int64, r io.Reader) (types.Attachment, error) {
	project, err := s.projects.GetByIDForCaller(ctx, projectID, caller)
	if err != nil {
		return types.Attachment{}, err
	}

	if !caller.IsGlobalAdmin() {
		role, err := s.memberships.GetRole(ctx, project.ID, caller.ID)
		if err != nil {
			return types.Attachment{}, fmt.Errorf("check membership role: %w", err)
		}
		if role == types.RoleViewer {
			return types.Attachment{}, fmt.Errorf("upload attachment: %w", ErrForbidden)
		}
	}

	id := uuid.New()
	key := objectKey(project.ID, id, filename)
	if err := s.objects.Put(ctx, key, r, size, contentType); err != nil {
		return types.Attachment{}, fmt.Errorf("store attachment object: %w", err)
	}

	attachment, err := s.attachments.Create(ctx, types.Attachment{
		ID:          id,
		ProjectID:   project.ID,
		UploadedBy:  caller.ID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   size,
		ObjectKey:   key,
	})
	if err != nil {
		// The blob is orphaned if this cleanup fails too; log and move on.
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			s.logger.Error("orphaned attachment object", "key", key, "error", delErr)
		}
		return types.Attachment{}, fmt.Errorf("record attachment: %w", err)
	}
	return attachment, nil
}

// ListForProject returns the attachment rows of a project the caller
// can see.
func (s *AttachmentService) ListForProject(ctx context.Context, projectID uuid.UUID, caller types.Caller) ([]types.Attachment, error) {
	if _, err := s.projects.GetByIDForCaller(ctx, projectID, caller); err != nil {
		return nil, err
	}
	return s.attachments.ListForProject(ctx, projectID)
}

// Open returns an attachment row and a reader over its bytes. The
// caller closes the reader.
func (s *AttachmentService) Open(ctx context.Context, projectID, id uuid.UUID, caller types.Caller) (types.Attachment, io.ReadCloser, error) {
	if _, err := s.projects.GetByIDForCaller(ctx, projectID, caller); err != nil {
		return types.Attachment{}, nil, err
	}

	attachment, err := s.attachments.Get(ctx, projectID, id)
	if err != nil {
		return types.Attachment{}, nil, err
	}

	reader, err := s.objects.Get(ctx, attachment.ObjectKey)
	if err != nil {
		return types.Attachment{}, nil, fmt.Errorf("open attachment object: %w", err)
	}
	return attachment, reader, nil
}

// Remove deletes an attachment. Allowed for the uploader, a
// project-ADMIN member, or a global ADMIN. The catalog row goes first;
// blob removal is best-effort afterwards.
func (s *AttachmentService) Remove(ctx context.Context, projectID, id uuid.UUID, caller types.Caller) error {
	if _, err := s.projects.GetByIDForCaller(ctx, projectID, caller); err != nil {
		return err
	}

	attachment, err := s.attachments.Get(ctx, projectID, id)
	if err != nil {
		return err
	}

	if !caller.IsGlobalAdmin() && attachment.UploadedBy != caller.ID {
		role, err := s.memberships.GetRole(ctx, projectID, caller.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("check membership role: %w", err)
		}
		if role != types.RoleAdmin {
			return fmt.Errorf("remove attachment: %w", ErrForbidden)
		}
	}

	if err := s.attachments.Delete(ctx, projectID, id); err != nil {
		return err
	}
	if err := s.objects.Delete(ctx, attachment.ObjectKey); err != nil {
		s.logger.Error("delete attachment object failed", "key", attachment.ObjectKey, "error", err)
	}
	return nil
}

func objectKey(projectID, attachmentID uuid.UUID, filename string) string {
	return fmt.Sprintf("projects/%s/%s/%s", projectID, attachmentID, filename)
}
