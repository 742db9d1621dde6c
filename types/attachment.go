package types

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is a file stored against a project (test evidence,
// specifications, exports). The bytes live in object storage under
// ObjectKey; this row is the catalog entry.
type Attachment struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ProjectID   uuid.UUID `json:"project_id" db:"project_id"`
	UploadedBy  uuid.UUID `json:"uploaded_by" db:"uploaded_by"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"content_type" db:"content_type"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	ObjectKey   string    `json:"-" db:"object_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
