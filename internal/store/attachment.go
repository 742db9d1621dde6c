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

// AttachmentRepository handles persistence for attachment catalog rows.
// The file bytes themselves live in object storage.
type AttachmentRepository struct {
	db dbx.DBTX
}

func NewAttachmentRepository(db dbx.DBTX) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

const attachmentColumns = `id, project_id, uploaded_by, filename, content_type, size_bytes, object_key, created_at`

func (r *AttachmentRepository) Get(ctx context.Context, projectID, id uuid.UUID) (types.Attachment, error) {
	const query = `
		SELECT ` + attachmentColumns + `
		FROM project_attachments
		WHERE project_id = $1 AND id = $2`
	var a types.Attachment
	err := r.db.QueryRowContext(ctx, query, projectID, id).Scan(
		&a.ID,
		&a.ProjectID,
		&a.UploadedBy,
		&a.Filename,
		&a.ContentType,
		&a.SizeBytes,
		&a.ObjectKey,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Attachment{}, ErrNotFound
		}
		return types.Attachment{}, err
	}
	return a, nil
}

func (r *AttachmentRepository) ListForProject(ctx context.Context, projectID uuid.UUID) ([]types.Attachment, error) {
	const query = `
		SELECT ` + attachmentColumns + `
		FROM project_attachments
		WHERE project_id = $1
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attachments := make([]types.Attachment, 0)
	for rows.Next() {
		var a types.Attachment
		if err := rows.Scan(
			&a.ID,
			&a.ProjectID,
			&a.UploadedBy,
			&a.Filename,
			&a.ContentType,
			&a.SizeBytes,
			&a.ObjectKey,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attachments, nil
}

func (r *AttachmentRepository) Create(ctx context.Context, attachment types.Attachment) (types.Attachment, error) {
	if attachment.ID == uuid.Nil {
		attachment.ID = uuid.New()
	}
	attachment.CreatedAt = time.Now()

	const query = `
		INSERT INTO project_attachments (` + attachmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		attachment.ID,
		attachment.ProjectID,
		attachment.UploadedBy,
		attachment.Filename,
		attachment.ContentType,
		attachment.SizeBytes,
		attachment.ObjectKey,
		attachment.CreatedAt,
	); err != nil {
		return types.Attachment{}, err
	}
	return attachment, nil
}

func (r *AttachmentRepository) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	const query = `DELETE FROM project_attachments WHERE project_id = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, projectID, id)
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
