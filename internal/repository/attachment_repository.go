package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/database"
	"github.com/Bouchary/saas-tracker-app-sub001/internal/errors"
)

// AttachmentRepository records which externally stored documents belong to a
// request. Deletion is soft; the storage service owns the bytes.
type AttachmentRepository struct {
	db *database.DB
}

// NewAttachmentRepository creates a new AttachmentRepository.
func NewAttachmentRepository(db *database.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create records a new attachment association.
func (r *AttachmentRepository) Create(ctx context.Context, att *Attachment) error {
	att.ID = uuid.NewString()

	query := `
		INSERT INTO request_attachments
		    (id, request_id, organization_id, file_name, content_type,
		     size_bytes, storage_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING uploaded_at
	`

	return r.db.QueryRow(ctx, query,
		att.ID,
		att.RequestID,
		att.OrganizationID,
		att.FileName,
		att.ContentType,
		att.SizeBytes,
		att.StorageKey,
		att.UploadedBy,
	).Scan(&att.UploadedAt)
}

// ListForRequest returns non-deleted attachments for a request.
func (r *AttachmentRepository) ListForRequest(ctx context.Context, requestID, organizationID string) ([]*Attachment, error) {
	query := `
		SELECT id, request_id, organization_id, file_name, content_type,
		       size_bytes, storage_key, uploaded_by, uploaded_at, deleted_at
		FROM request_attachments
		WHERE request_id = $1 AND organization_id = $2 AND deleted_at IS NULL
		ORDER BY uploaded_at ASC
	`

	rows, err := r.db.Query(ctx, query, requestID, organizationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list attachments")
	}
	defer rows.Close()

	var attachments []*Attachment
	for rows.Next() {
		att := &Attachment{}
		err := rows.Scan(
			&att.ID,
			&att.RequestID,
			&att.OrganizationID,
			&att.FileName,
			&att.ContentType,
			&att.SizeBytes,
			&att.StorageKey,
			&att.UploadedBy,
			&att.UploadedAt,
			&att.DeletedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan attachment")
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}

// GetByID retrieves a single attachment.
func (r *AttachmentRepository) GetByID(ctx context.Context, id, organizationID string) (*Attachment, error) {
	query := `
		SELECT id, request_id, organization_id, file_name, content_type,
		       size_bytes, storage_key, uploaded_by, uploaded_at, deleted_at
		FROM request_attachments
		WHERE id = $1 AND organization_id = $2
	`

	att := &Attachment{}
	err := r.db.QueryRow(ctx, query, id, organizationID).Scan(
		&att.ID,
		&att.RequestID,
		&att.OrganizationID,
		&att.FileName,
		&att.ContentType,
		&att.SizeBytes,
		&att.StorageKey,
		&att.UploadedBy,
		&att.UploadedAt,
		&att.DeletedAt,
	)
	if err != nil {
		return nil, errors.NotFound("attachment", id)
	}
	return att, nil
}

// SoftDelete stamps deleted_at; the row stays for the audit trail.
func (r *AttachmentRepository) SoftDelete(ctx context.Context, id, organizationID string) error {
	query := `
		UPDATE request_attachments
		SET deleted_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id, organizationID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete attachment")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("attachment", id)
	}
	return nil
}
